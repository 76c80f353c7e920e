// Package config implements the ConfigResolver: global defaults loaded from
// env + an optional YAML file, merged with a per-project ProfileConfig
// document to produce the effective settings a request runs under.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/skorpland/powermemo/internal/model"
)

// maxProfileConfigBytes bounds a serialized per-project ProfileConfig
// document; larger payloads are rejected at the edge with BadRequest.
const maxProfileConfigBytes = 65535

// Config holds process-wide defaults, loaded once at boot.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DatabaseURL string `yaml:"database_url"`
	KVURL       string `yaml:"kv_url"`
	RootToken   string `yaml:"root_token"`

	PersistentChatBlobs bool   `yaml:"persistent_chat_blobs"`
	UseTimezone         string `yaml:"use_timezone"`

	BufferFlushInterval         int `yaml:"buffer_flush_interval"`
	MaxChatBlobBufferTokenSize  int `yaml:"max_chat_blob_buffer_token_size"`
	MaxProfileSubtopics         int `yaml:"max_profile_subtopics"`
	MaxPreProfileTokenSize      int `yaml:"max_pre_profile_token_size"`
	LLMTabSeparator             string `yaml:"llm_tab_separator"`
	CacheUserProfilesTTL        int `yaml:"cache_user_profiles_ttl"`

	Language model.Language `yaml:"language"`

	BestLLMModel    string `yaml:"best_llm_model"`
	SummaryLLMModel string `yaml:"summary_llm_model"`
	LLMAPIKey       string `yaml:"llm_api_key"`
	LLMBaseURL      string `yaml:"llm_base_url"`

	EnableEventEmbedding    bool   `yaml:"enable_event_embedding"`
	EmbeddingProvider       string `yaml:"embedding_provider"` // "openai" | "jina"
	EmbeddingAPIKey         string `yaml:"embedding_api_key"`
	EmbeddingBaseURL        string `yaml:"embedding_base_url"`
	EmbeddingDim            int    `yaml:"embedding_dim"`
	EmbeddingModel          string `yaml:"embedding_model"`
	EmbeddingMaxTokenSize   int    `yaml:"embedding_max_token_size"`

	AdditionalUserProfiles []model.TopicSpec    `yaml:"additional_user_profiles"`
	OverwriteUserProfiles  []model.TopicSpec    `yaml:"overwrite_user_profiles"`
	ProfileStrictMode      bool                 `yaml:"profile_strict_mode"`
	ProfileValidateMode    bool                 `yaml:"profile_validate_mode"`

	EnableEventSummary                     bool                  `yaml:"enable_event_summary"`
	MinimumChatsTokenSizeForEventSummary    int                   `yaml:"minimum_chats_token_size_for_event_summary"`
	EventTags                              []model.EventTagSpec `yaml:"event_tags"`

	TelemetryDeploymentEnvironment string `yaml:"telemetry_deployment_environment"`

	UserLockTTLSeconds     int `yaml:"user_lock_ttl_seconds"`
	UserLockWaitSeconds    int `yaml:"user_lock_wait_seconds"`
	LLMCompleteTimeoutSec  int `yaml:"llm_complete_timeout_seconds"`
	EmbedTimeoutSec        int `yaml:"embed_timeout_seconds"`

	// CostPerThousandTokensMicroUSD prices every gateway call for the
	// /project/billing report; 0 disables cost accrual (quota tracking
	// still runs if a project has a token_quota set).
	CostPerThousandTokensMicroUSD int64 `yaml:"cost_per_thousand_tokens_micro_usd"`
}

// Defaults returns the baseline configuration, matching the Python
// reference implementation's dataclass defaults (env.py Config).
func Defaults() Config {
	return Config{
		Host:                        "0.0.0.0",
		Port:                        8019,
		PersistentChatBlobs:         false,
		BufferFlushInterval:         3600,
		MaxChatBlobBufferTokenSize:  1024,
		MaxProfileSubtopics:         15,
		MaxPreProfileTokenSize:      128,
		LLMTabSeparator:             "::",
		CacheUserProfilesTTL:        1200,
		Language:                    model.LanguageEN,
		BestLLMModel:                "gpt-4o-mini",
		EnableEventEmbedding:        true,
		EmbeddingProvider:           "openai",
		EmbeddingDim:                1536,
		EmbeddingModel:              "text-embedding-3-small",
		EmbeddingMaxTokenSize:       8192,
		ProfileStrictMode:           false,
		ProfileValidateMode:         true,
		EnableEventSummary:          true,
		MinimumChatsTokenSizeForEventSummary: 256,
		TelemetryDeploymentEnvironment: "local",
		UserLockTTLSeconds:          128,
		UserLockWaitSeconds:         32,
		LLMCompleteTimeoutSec:       120,
		EmbedTimeoutSec:             20,
		CostPerThousandTokensMicroUSD: 2000,
	}
}

// Load reads an optional YAML file over the defaults, logs the outcome, then
// applies POWERMEMO_* environment overrides. An override whose value does not
// parse as the field's int or bool type is ignored with a warning;
// unrecognized POWERMEMO_* variables and unknown YAML keys are ignored
// without any warning.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("config_file_read_error")
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Error().Err(err).Msg("config_file_unmarshal_error")
			return cfg, fmt.Errorf("error unmarshaling config: %w", err)
		}
		log.Info().Str("path", path).Msg("config_loaded")
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Host, "POWERMEMO_HOST")
	overrideInt(&cfg.Port, "POWERMEMO_PORT")
	overrideString(&cfg.DatabaseURL, "POWERMEMO_DATABASE_URL")
	overrideString(&cfg.KVURL, "POWERMEMO_KV_URL")
	overrideString(&cfg.RootToken, "POWERMEMO_ROOT_TOKEN")
	overrideBool(&cfg.PersistentChatBlobs, "POWERMEMO_PERSISTENT_CHAT_BLOBS")
	overrideString(&cfg.UseTimezone, "POWERMEMO_USE_TIMEZONE")
	overrideInt(&cfg.BufferFlushInterval, "POWERMEMO_BUFFER_FLUSH_INTERVAL")
	overrideInt(&cfg.MaxChatBlobBufferTokenSize, "POWERMEMO_MAX_CHAT_BLOB_BUFFER_TOKEN_SIZE")
	overrideInt(&cfg.MaxProfileSubtopics, "POWERMEMO_MAX_PROFILE_SUBTOPICS")
	overrideInt(&cfg.MaxPreProfileTokenSize, "POWERMEMO_MAX_PRE_PROFILE_TOKEN_SIZE")
	overrideString(&cfg.LLMTabSeparator, "POWERMEMO_LLM_TAB_SEPARATOR")
	overrideInt(&cfg.CacheUserProfilesTTL, "POWERMEMO_CACHE_USER_PROFILES_TTL")
	if v, ok := lookup("POWERMEMO_LANGUAGE"); ok {
		cfg.Language = model.Language(v)
	}
	overrideString(&cfg.BestLLMModel, "POWERMEMO_BEST_LLM_MODEL")
	overrideString(&cfg.SummaryLLMModel, "POWERMEMO_SUMMARY_LLM_MODEL")
	overrideString(&cfg.LLMAPIKey, "POWERMEMO_LLM_API_KEY")
	overrideString(&cfg.LLMBaseURL, "POWERMEMO_LLM_BASE_URL")
	overrideBool(&cfg.EnableEventEmbedding, "POWERMEMO_ENABLE_EVENT_EMBEDDING")
	overrideString(&cfg.EmbeddingProvider, "POWERMEMO_EMBEDDING_PROVIDER")
	overrideString(&cfg.EmbeddingAPIKey, "POWERMEMO_EMBEDDING_API_KEY")
	overrideString(&cfg.EmbeddingBaseURL, "POWERMEMO_EMBEDDING_BASE_URL")
	overrideInt(&cfg.EmbeddingDim, "POWERMEMO_EMBEDDING_DIM")
	overrideString(&cfg.EmbeddingModel, "POWERMEMO_EMBEDDING_MODEL")
	overrideInt(&cfg.EmbeddingMaxTokenSize, "POWERMEMO_EMBEDDING_MAX_TOKEN_SIZE")
	overrideBool(&cfg.ProfileStrictMode, "POWERMEMO_PROFILE_STRICT_MODE")
	overrideBool(&cfg.ProfileValidateMode, "POWERMEMO_PROFILE_VALIDATE_MODE")
	overrideBool(&cfg.EnableEventSummary, "POWERMEMO_ENABLE_EVENT_SUMMARY")
	overrideInt(&cfg.MinimumChatsTokenSizeForEventSummary, "POWERMEMO_MINIMUM_CHATS_TOKEN_SIZE_FOR_EVENT_SUMMARY")
	overrideString(&cfg.TelemetryDeploymentEnvironment, "POWERMEMO_TELEMETRY_DEPLOYMENT_ENVIRONMENT")
	if v, ok := lookup("POWERMEMO_COST_PER_THOUSAND_TOKENS_MICRO_USD"); ok {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.CostPerThousandTokensMicroUSD = n
		}
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func overrideString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func overrideInt(dst *int, name string) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Warn().Str("env", name).Str("value", v).Msg("config_env_ignored_not_int")
		}
	}
}

func overrideBool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		} else {
			log.Warn().Str("env", name).Str("value", v).Msg("config_env_ignored_not_bool")
		}
	}
}

// FlushInterval returns the buffer idle-trigger threshold as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.BufferFlushInterval) * time.Second
}

// CacheTTL returns the profile cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheUserProfilesTTL) * time.Second
}

// ParseProfileConfig validates and decodes a per-project ProfileConfig
// document from its serialized YAML form.
func ParseProfileConfig(raw string) (model.ProfileConfig, error) {
	var pc model.ProfileConfig
	if raw == "" {
		return pc, nil
	}
	if len(raw) > maxProfileConfigBytes {
		return pc, fmt.Errorf("profile config too large: %d bytes", len(raw))
	}
	if err := yaml.Unmarshal([]byte(raw), &pc); err != nil {
		return pc, fmt.Errorf("invalid profile config: %w", err)
	}
	return pc, nil
}

// Effective is the resolved settings a single request/flush runs under,
// after merging global defaults with a project's ProfileConfig.
type Effective struct {
	Language     model.Language
	StrictMode   bool
	ValidateMode bool
	Topics       []model.TopicSpec
	EventTags    []model.EventTagSpec
	EnableEventSummary bool
}

// Resolve merges global Config with a project's ProfileConfig:
// overwrite_user_profiles replaces the default topic list, while
// additional_user_profiles appends to it.
func Resolve(global Config, project model.ProfileConfig) Effective {
	eff := Effective{
		Language:           global.Language,
		StrictMode:         global.ProfileStrictMode,
		ValidateMode:       global.ProfileValidateMode,
		EventTags:          global.EventTags,
		EnableEventSummary: global.EnableEventSummary,
	}
	if project.Language != "" {
		eff.Language = project.Language
	}
	if project.StrictMode != nil {
		eff.StrictMode = *project.StrictMode
	}
	if project.ValidateMode != nil {
		eff.ValidateMode = *project.ValidateMode
	}
	if project.EnableEventSummary != nil {
		eff.EnableEventSummary = *project.EnableEventSummary
	}
	topics := append([]model.TopicSpec(nil), global.AdditionalUserProfiles...)
	if len(project.OverwriteUserProfiles) > 0 {
		topics = append([]model.TopicSpec(nil), project.OverwriteUserProfiles...)
	}
	topics = append(topics, project.AdditionalUserProfiles...)
	eff.Topics = topics
	if len(project.EventTags) > 0 {
		eff.EventTags = project.EventTags
	}
	return eff
}

// ProjectGetter is the subset of storepg.ProjectStore Resolver needs; kept
// as a narrow interface so this package doesn't import storepg.
type ProjectGetter interface {
	Get(ctx context.Context, projectID string) (model.Project, error)
}

// Resolver implements chatflush.ConfigResolver and contextassembler.ConfigResolver
// by fetching a project's stored ProfileConfig and merging it over the
// process-wide defaults.
type Resolver struct {
	Global   Config
	Projects ProjectGetter
}

func (r Resolver) Resolve(ctx context.Context, projectID string) (Effective, error) {
	project, err := r.Projects.Get(ctx, projectID)
	if err != nil {
		return Effective{}, err
	}
	pc, err := ParseProfileConfig(project.ProfileConfig)
	if err != nil {
		return Effective{}, err
	}
	return Resolve(r.Global, pc), nil
}
