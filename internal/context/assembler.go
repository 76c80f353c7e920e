// Package contextassembler composes the grounded context string an
// application injects into its own system prompt before calling an LLM
// (spec §4.9): a token-budgeted mix of profile facts and recent events,
// wrapped in the project's language-specific template. Grounded on
// original_source's controllers/profile.py's get_user_context and the
// teacher's internal/agent/warpp.go for structuring a multi-step request
// pipeline around a single context.Context.
package contextassembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/skorpland/powermemo/internal/cache"
	"github.com/skorpland/powermemo/internal/config"
	"github.com/skorpland/powermemo/internal/llmgateway"
	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/promptpack"
	"github.com/skorpland/powermemo/internal/storepg"
	"github.com/skorpland/powermemo/internal/tokencount"
)

const (
	defaultSimilarityThreshold = 0.3
	defaultEventTopK           = 20
)

// ConfigResolver resolves per-project effective settings, shared with
// internal/chatflush's identically-shaped dependency.
type ConfigResolver interface {
	Resolve(ctx context.Context, projectID string) (config.Effective, error)
}

// Request is one context-assembly call's parameters (spec §4.9 and the
// GET /users/context/{uid} query parameters).
type Request struct {
	ProjectID        string
	UserID           string
	TokenBudget      int
	ProfileEventRatio float64 // default 0.5 when unset
	MaxFilterNum     int      // default 10 when unset
	ChatTail         string   // recent conversation tail, optional
	PreferTopics     []string
	OnlyTopics       []string
	MaxSubtopicSize  int
	TopicLimits      map[string]int
}

// Assembler builds the final <memory> context string for one user.
type Assembler struct {
	profiles      *storepg.ProfileStore
	profileCache  *cache.ProfileCache
	events        *storepg.EventStore
	gateway       *llmgateway.Gateway
	counter       *tokencount.Counter
	projects      ConfigResolver
	embeddingModel string
	eventEmbeddingsEnabled bool
}

func New(profiles *storepg.ProfileStore, profileCache *cache.ProfileCache, events *storepg.EventStore, gateway *llmgateway.Gateway, counter *tokencount.Counter, projects ConfigResolver, embeddingModel string, eventEmbeddingsEnabled bool) *Assembler {
	return &Assembler{
		profiles:               profiles,
		profileCache:           profileCache,
		events:                 events,
		gateway:                gateway,
		counter:                counter,
		projects:               projects,
		embeddingModel:         embeddingModel,
		eventEmbeddingsEnabled: eventEmbeddingsEnabled,
	}
}

// Assemble runs the full §4.9 pipeline and returns the wrapped context
// string ready to inject into a caller's own prompt.
func (a *Assembler) Assemble(ctx context.Context, req Request) (string, error) {
	if req.ProfileEventRatio <= 0 || req.ProfileEventRatio > 1 {
		req.ProfileEventRatio = 0.5
	}
	if req.MaxFilterNum <= 0 {
		req.MaxFilterNum = 10
	}

	eff, err := a.projects.Resolve(ctx, req.ProjectID)
	if err != nil {
		return "", err
	}
	pack := promptpack.New(eff.Language, "::")

	profileTokenBudget := int(float64(req.TokenBudget) * req.ProfileEventRatio)

	profiles, err := a.loadProfiles(ctx, req.ProjectID, req.UserID)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(req.ChatTail) != "" && len(profiles) > 0 {
		profiles, err = a.pickRelatedProfiles(ctx, req.ProjectID, pack, req.ChatTail, profiles, req.MaxFilterNum)
		if err != nil {
			return "", err
		}
	}

	truncated := storepg.Truncate(a.counter, profiles, storepg.TruncateOptions{
		PreferTopics:    req.PreferTopics,
		OnlyTopics:      req.OnlyTopics,
		MaxTokenSize:    profileTokenBudget,
		MaxSubtopicSize: req.MaxSubtopicSize,
		TopicLimits:     req.TopicLimits,
	})
	profileSection := renderProfileSection(truncated)

	eventTokenBudget := req.TokenBudget - a.counter.Count(profileSection)
	if eventTokenBudget <= 0 {
		return pack.ContextWrapper(profileSection, ""), nil
	}

	events, err := a.loadEvents(ctx, req.ProjectID, req.UserID, req.ChatTail, eventTokenBudget)
	if err != nil {
		return "", err
	}
	eventSection := renderEventSection(events)

	return pack.ContextWrapper(profileSection, eventSection), nil
}

func (a *Assembler) loadProfiles(ctx context.Context, projectID, userID string) ([]model.Profile, error) {
	if a.profileCache != nil {
		if cached, ok := a.profileCache.Get(ctx, projectID, userID); ok {
			return cached, nil
		}
	}
	profiles, err := a.profiles.List(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if a.profileCache != nil {
		a.profileCache.Set(ctx, projectID, userID, profiles)
	}
	return profiles, nil
}

// pickRelatedProfiles runs the LLM selection step, falling back to the full
// unfiltered list on any parse failure so a flaky LLM call never empties
// the context outright.
func (a *Assembler) pickRelatedProfiles(ctx context.Context, projectID string, pack *promptpack.Pack, chatTail string, profiles []model.Profile, maxFilterNum int) ([]model.Profile, error) {
	lines := make([]string, len(profiles))
	for i, p := range profiles {
		lines[i] = fmt.Sprintf("%s::%s: %s", p.Attributes.Topic, p.Attributes.SubTopic, p.Content)
	}
	system, user := pack.PickRelatedProfiles(chatTail, lines, maxFilterNum)
	obj, err := a.gateway.CompleteJSON(ctx, llmgateway.CompleteRequest{
		ProjectID:    projectID,
		SystemPrompt: system,
		Prompt:       user,
	})
	if err != nil {
		return profiles, nil
	}
	raw, ok := obj["indices"].([]any)
	if !ok {
		return profiles, nil
	}
	out := make([]model.Profile, 0, len(raw))
	for _, v := range raw {
		n, ok := v.(float64)
		if !ok || int(n) < 0 || int(n) >= len(profiles) {
			continue
		}
		out = append(out, profiles[int(n)])
	}
	return out, nil
}

func renderProfileSection(profiles []model.Profile) string {
	if len(profiles) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range profiles {
		fmt.Fprintf(&b, "- %s::%s: %s\n", p.Attributes.Topic, p.Attributes.SubTopic, p.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// loadEvents implements spec §4.9 step 5: similarity search against the
// chat tail when embeddings are enabled and a tail is supplied, otherwise
// the most recent events; either way truncated to the event token budget.
func (a *Assembler) loadEvents(ctx context.Context, projectID, userID, chatTail string, tokenBudget int) ([]model.Event, error) {
	if a.eventEmbeddingsEnabled && strings.TrimSpace(chatTail) != "" {
		vectors, err := a.gateway.Embed(ctx, llmgateway.EmbedRequest{
			ProjectID: projectID,
			Texts:     []string{chatTail},
			Phase:     llmgateway.PhaseQuery,
			Model:     a.embeddingModel,
		})
		if err == nil && len(vectors) > 0 {
			events, err := a.events.Search(ctx, projectID, userID, vectors[0], defaultEventTopK, defaultSimilarityThreshold, 0)
			if err != nil {
				return nil, err
			}
			return truncateEvents(a.counter, events, tokenBudget), nil
		}
	}
	events, err := a.events.List(ctx, a.counter, projectID, userID, defaultEventTopK, tokenBudget)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func truncateEvents(counter *tokencount.Counter, events []model.Event, maxTokens int) []model.Event {
	total := 0
	cut := len(events)
	for i, e := range events {
		total += counter.Count(e.EventData.EventTip)
		if total > maxTokens {
			cut = i
			break
		}
	}
	return events[:cut]
}

func renderEventSection(events []model.Event) string {
	if len(events) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- %s\n", e.EventData.EventTip)
	}
	return strings.TrimRight(b.String(), "\n")
}
