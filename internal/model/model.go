// Package model holds the entities shared across the memory service: users,
// blobs, buffered entries, profiles, events and project configuration.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RootProjectID is the always-present project scope; only its ProfileConfig
// is mutable and it can never be deleted.
const RootProjectID = "__root__"

// BlobType discriminates the variant of an ingested Blob. Only Chat and Doc
// are fully supported; the rest exist so callers get a typed NotImplemented
// instead of silently falling through.
type BlobType string

const (
	BlobTypeChat       BlobType = "chat"
	BlobTypeDoc        BlobType = "doc"
	BlobTypeCode       BlobType = "code"
	BlobTypeImage      BlobType = "image"
	BlobTypeTranscript BlobType = "transcript"
)

// Supported reports whether the core pipeline can process this blob type.
func (t BlobType) Supported() bool {
	return t == BlobTypeChat || t == BlobTypeDoc
}

// ChatMessage is one turn of a chat Blob.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Alias     string    `json:"alias,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Blob is an opaque, typed unit of ingested content.
type Blob struct {
	ID        string         `json:"id"`
	Type      BlobType       `json:"type"`
	Messages  []ChatMessage  `json:"messages,omitempty"` // chat
	Content   string         `json:"content,omitempty"`  // doc
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// BufferEntry is a lightweight pointer into a buffered blob, scoped to
// (user, project, blob_type) and ordered by CreatedAt.
type BufferEntry struct {
	BlobID    string
	BlobType  BlobType
	TokenSize int
	CreatedAt time.Time
}

// ProfileAttributes carries the normalized topic/sub_topic key plus optional
// bookkeeping fields. Topic and SubTopic are stored already normalized;
// callers should go through NormalizeTopic before constructing one of these
// for comparison or insertion.
type ProfileAttributes struct {
	Topic      string `json:"topic"`
	SubTopic   string `json:"sub_topic"`
	UpdateHits int    `json:"update_hits,omitempty"`
}

// Profile is a keyed memo: (topic, sub_topic) -> content.
type Profile struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Attributes ProfileAttributes `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Key returns the normalized (topic, sub_topic) key for this profile.
func (p Profile) Key() ProfileKey {
	return ProfileKey{Topic: p.Attributes.Topic, SubTopic: p.Attributes.SubTopic}
}

// ProfileKey is the normalized two-level key profiles are stored under.
type ProfileKey struct {
	Topic    string
	SubTopic string
}

// NormalizeTopic lower-cases, trims, and replaces internal spaces with
// underscores, per the store's key normalization rule (spec invariant 1).
func NormalizeTopic(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "_")
	return s
}

// NewProfileKey builds an already-normalized key from raw topic/sub_topic text.
func NewProfileKey(topic, subTopic string) ProfileKey {
	return ProfileKey{Topic: NormalizeTopic(topic), SubTopic: NormalizeTopic(subTopic)}
}

// EventTag is a single {tag, value} annotation extracted during event
// tagging (Stage 4 of the flush pipeline).
type EventTag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// ProfileDelta is a (content, attributes) pair recorded against an event so
// the event can cite the profile mutation it caused, by key rather than id
// (spec invariant 2).
type ProfileDelta struct {
	Content    string            `json:"content"`
	Attributes ProfileAttributes `json:"attributes"`
}

// EventData is the payload of an Event.
type EventData struct {
	EventTip     string         `json:"event_tip,omitempty"`
	EventTags    []EventTag     `json:"event_tags,omitempty"`
	ProfileDelta []ProfileDelta `json:"profile_delta,omitempty"`
}

// Event is a timestamped, mostly-immutable record of what changed.
type Event struct {
	ID         string    `json:"id"`
	EventData  EventData `json:"event_data"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Similarity float64   `json:"similarity,omitempty"` // read-only, set by search
}

// EventPatch carries the sparse fields an Event.update may overwrite; a nil
// field leaves the corresponding stored field untouched.
type EventPatch struct {
	EventTip  *string
	EventTags []EventTag
}

// ProjectStatus is the billing/activity state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPro       ProjectStatus = "pro"
	ProjectUltra     ProjectStatus = "ultra"
	ProjectSuspended ProjectStatus = "suspended"
)

// TopicSpec describes one configured top-level topic and its sub-topics.
type TopicSpec struct {
	Topic       string        `yaml:"topic" json:"topic"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	SubTopics   []SubTopicSpec `yaml:"sub_topics" json:"sub_topics"`
}

// SubTopicSpec describes one sub-topic of a TopicSpec.
type SubTopicSpec struct {
	Name               string `yaml:"name" json:"name"`
	Description        string `yaml:"description,omitempty" json:"description,omitempty"`
	UpdateDescription  string `yaml:"update_description,omitempty" json:"update_description,omitempty"`
	ValidateValue      bool   `yaml:"validate_value,omitempty" json:"validate_value,omitempty"`
}

// EventTagSpec names one allowed event tag.
type EventTagSpec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Language selects the prompt-pack language for a project.
type Language string

const (
	LanguageEN Language = "en"
	LanguageZH Language = "zh"
)

// ProfileConfig is the structured per-project document controlling how the
// chat pipeline extracts, merges and organizes profiles.
type ProfileConfig struct {
	Language                  Language       `yaml:"language,omitempty" json:"language,omitempty"`
	StrictMode                *bool          `yaml:"strict_mode,omitempty" json:"strict_mode,omitempty"`
	ValidateMode              *bool          `yaml:"validate_mode,omitempty" json:"validate_mode,omitempty"`
	AdditionalUserProfiles    []TopicSpec    `yaml:"additional_user_profiles,omitempty" json:"additional_user_profiles,omitempty"`
	OverwriteUserProfiles     []TopicSpec    `yaml:"overwrite_user_profiles,omitempty" json:"overwrite_user_profiles,omitempty"`
	EventTags                 []EventTagSpec `yaml:"event_tags,omitempty" json:"event_tags,omitempty"`
	EnableEventSummary        *bool          `yaml:"enable_event_summary,omitempty" json:"enable_event_summary,omitempty"`
}

// Project is a tenant scope; __root__ always exists and cannot be deleted.
type Project struct {
	ProjectID     string        `json:"project_id"`
	Secret        string        `json:"secret"`
	Status        ProjectStatus `json:"status"`
	ProfileConfig string        `json:"profile_config,omitempty"` // serialized YAML document
}

// Billing is one project's quota + monthly cost snapshot (spec §6
// GET /project/billing). TokenQuota of nil means unlimited.
type Billing struct {
	ProjectID          string     `json:"project_id"`
	TokenQuota         *int64     `json:"token_quota,omitempty"`
	TokensUsed         int64      `json:"tokens_used"`
	CostMicroUSD       int64      `json:"cost_micro_usd"`
	BillingPeriodStart time.Time  `json:"billing_period_start"`
}

// User is an end-user scoped to a project.
type User struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewID generates a fresh entity identifier.
func NewID() string { return uuid.NewString() }

// ChatModalResponse describes what one flush of the chat pipeline changed:
// the event it appended plus the profile ids it added, updated or deleted.
type ChatModalResponse struct {
	EventID        string   `json:"event_id,omitempty"`
	AddProfiles    []string `json:"add_profiles,omitempty"`
	UpdateProfiles []string `json:"update_profiles,omitempty"`
	DeleteProfiles []string `json:"delete_profiles,omitempty"`
}
