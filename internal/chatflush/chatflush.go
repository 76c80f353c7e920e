// Package chatflush implements the seven-stage pipeline that turns a
// drained chat buffer into profile writes and one archived event (spec
// §4.7). Grounded on original_source's controllers/chat.py (stage order and
// the APPEND/REVISE/ABORT merge contract) and the teacher's
// internal/agent/warpp.go (errgroup fan-out/fan-in shape for independent
// per-key subtasks).
package chatflush

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/skorpland/powermemo/internal/cache"
	"github.com/skorpland/powermemo/internal/config"
	"github.com/skorpland/powermemo/internal/llmgateway"
	"github.com/skorpland/powermemo/internal/model"
	"github.com/skorpland/powermemo/internal/promptpack"
	"github.com/skorpland/powermemo/internal/storepg"
	"github.com/skorpland/powermemo/internal/tokencount"
)

// ConfigResolver resolves the effective per-project settings a flush runs
// under, merging global defaults with the project's stored ProfileConfig
// (spec §4.10). Implemented by config.Resolver, which cmd/powermemod builds
// over storepg.ProjectStore.
type ConfigResolver interface {
	Resolve(ctx context.Context, projectID string) (config.Effective, error)
}

// Config holds the global tunables the pipeline needs beyond the
// per-project Effective settings (spec §4.7/§4.1 defaults).
type Config struct {
	BestLLMModel                         string
	SummaryLLMModel                      string
	MaxProfileSubtopics                  int
	MaxPreProfileTokenSize                int
	TabSeparator                          string
	EnableEventEmbedding                  bool
	EmbeddingModel                        string
	MinimumChatsTokenSizeForEventSummary  int
}

// ChatFlusher implements buffer.Flusher for chat blobs: it runs the full
// extract -> merge -> tag -> organize -> re-summarize -> persist pipeline
// for one drained buffer.
type ChatFlusher struct {
	blobs        *storepg.BlobStore
	profiles     *storepg.ProfileStore
	profileCache *cache.ProfileCache
	events       *storepg.EventStore
	gateway      *llmgateway.Gateway
	counter      *tokencount.Counter
	cfg          Config
	projects     ConfigResolver
}

func New(blobs *storepg.BlobStore, profiles *storepg.ProfileStore, profileCache *cache.ProfileCache, events *storepg.EventStore, gateway *llmgateway.Gateway, counter *tokencount.Counter, projects ConfigResolver, cfg Config) *ChatFlusher {
	return &ChatFlusher{blobs: blobs, profiles: profiles, profileCache: profileCache, events: events, gateway: gateway, counter: counter, projects: projects, cfg: cfg}
}

// Flush implements buffer.Flusher. Only chat blobs are supported; buffer
// never registers this flusher for other blob types, but the guard keeps
// the contract explicit.
func (f *ChatFlusher) Flush(ctx context.Context, projectID, userID string, blobType model.BlobType, entries []model.BufferEntry) (model.ChatModalResponse, error) {
	if blobType != model.BlobTypeChat {
		return model.ChatModalResponse{}, fmt.Errorf("chatflush: unsupported blob type %q", blobType)
	}

	eff, err := f.projects.Resolve(ctx, projectID)
	if err != nil {
		return model.ChatModalResponse{}, err
	}
	pack := promptpack.New(eff.Language, f.cfg.TabSeparator)

	chatText, err := f.renderChat(ctx, projectID, userID, entries)
	if err != nil {
		return model.ChatModalResponse{}, err
	}
	if strings.TrimSpace(chatText) == "" {
		return model.ChatModalResponse{}, nil
	}

	existing, err := f.profiles.List(ctx, projectID, userID)
	if err != nil {
		return model.ChatModalResponse{}, err
	}
	byKey := make(map[model.ProfileKey]model.Profile, len(existing))
	for _, p := range existing {
		byKey[p.Key()] = p
	}

	// Stage 1: condense the raw chat into a dense entry.
	summarySystem, summaryUser := pack.EntrySummary(chatText)
	entryText, err := f.complete(ctx, projectID, f.cfg.SummaryLLMModel, summarySystem, summaryUser)
	if err != nil {
		return model.ChatModalResponse{}, err
	}

	// Stage 2: extract candidate (topic, sub_topic, memo) triples.
	extractSystem, extractUser := pack.ExtractProfile(entryText, eff.Topics, eff.StrictMode)
	extractText, err := f.complete(ctx, projectID, f.cfg.BestLLMModel, extractSystem, extractUser)
	if err != nil {
		return model.ChatModalResponse{}, err
	}
	candidates := promptpack.ParseExtractedProfiles(extractText, f.cfg.TabSeparator)
	if eff.StrictMode {
		candidates = filterStrictCandidates(candidates, eff.Topics)
	}

	// Stage 3: merge each candidate against its existing memo, one parallel
	// task per candidate (independent LLM calls, no shared state); repeated
	// keys are reconciled afterwards by splitMergeResults.
	merges, err := f.mergeCandidates(ctx, projectID, pack, candidates, byKey, eff)
	if err != nil {
		return model.ChatModalResponse{}, err
	}

	toAdd, toUpdate, stage3Deletes, deltas := splitMergeResults(merges)

	resp := model.ChatModalResponse{}

	// Stage 4 + archive: tag and append the event right after Stage 3 and
	// strictly before Stage 5's profile rewrites are persisted, so the
	// archived event records the pre-organize deltas (ordering invariant:
	// event append is a fork off Stage 3's output, not Stage 5's). Only
	// fires when Stage 3 actually produced an add or update delta (spec
	// §4.7 stage 4) — e.g. a strict-mode drop or a validate-mode ABORT with
	// nothing else extracted means no event is archived.
	if len(deltas) > 0 && eff.EnableEventSummary && f.counter.Count(chatText) >= f.cfg.MinimumChatsTokenSizeForEventSummary {
		eventID, err := f.archiveEvent(ctx, projectID, userID, pack, eff, entryText, deltas)
		if err != nil {
			return model.ChatModalResponse{}, err
		}
		resp.EventID = eventID
	}

	// Stage 5: organize any topic whose sub-topic count now exceeds the
	// configured ceiling, merging overlapping sub-topics together.
	organizeDeletes, err := f.organizeOverflowingTopics(ctx, projectID, userID, pack, existing, &toAdd, &toUpdate)
	if err != nil {
		return model.ChatModalResponse{}, err
	}

	// Stage 6: compress any memo that grew past the pre-profile token cap.
	if err := f.reSummarizeOversized(ctx, projectID, pack, toAdd, toUpdate); err != nil {
		return model.ChatModalResponse{}, err
	}

	if len(toAdd) > 0 {
		ids, err := f.profiles.AddMany(ctx, projectID, userID, toAdd)
		if err != nil {
			return model.ChatModalResponse{}, err
		}
		resp.AddProfiles = ids
	}
	if len(toUpdate) > 0 {
		ids, err := f.profiles.UpdateMany(ctx, projectID, userID, toUpdate)
		if err != nil {
			return model.ChatModalResponse{}, err
		}
		resp.UpdateProfiles = ids
	}
	allDeletes := append(stage3Deletes, organizeDeletes...)
	if len(allDeletes) > 0 {
		if err := f.profiles.DeleteMany(ctx, projectID, userID, allDeletes); err != nil {
			return model.ChatModalResponse{}, err
		}
		resp.DeleteProfiles = allDeletes
	}

	// Every mutation path must invalidate the cached profile list before
	// returning (spec invariant 5 / §4.3) — the pipeline is the system's
	// primary mutator, same as the HTTP profile handlers.
	if len(toAdd) > 0 || len(toUpdate) > 0 || len(allDeletes) > 0 {
		f.profileCache.Invalidate(ctx, projectID, userID)
	}

	return resp, nil
}

func (f *ChatFlusher) complete(ctx context.Context, projectID, llmModel string, systemPrompt, userPrompt string) (string, error) {
	res, err := f.gateway.Complete(ctx, llmgateway.CompleteRequest{
		ProjectID:    projectID,
		SystemPrompt: systemPrompt,
		Prompt:       userPrompt,
		Model:        llmModel,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// renderChat fetches every buffered blob's content and renders it into one
// chat transcript, oldest first (entries are drained in CreatedAt order).
func (f *ChatFlusher) renderChat(ctx context.Context, projectID, userID string, entries []model.BufferEntry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		blob, err := f.blobs.Get(ctx, projectID, userID, e.BlobID)
		if err != nil {
			log.Warn().Err(err).Str("blob_id", e.BlobID).Msg("chatflush_blob_missing")
			continue
		}
		for _, line := range renderBlobLines(blob) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderBlobLines(blob model.Blob) []string {
	if len(blob.Messages) == 0 {
		return []string{blob.Content}
	}
	lines := make([]string, 0, len(blob.Messages))
	for _, m := range blob.Messages {
		speaker := m.Role
		if m.Alias != "" {
			speaker = m.Alias
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, m.Content))
	}
	return lines
}

// archiveEvent runs event tagging (Stage 4), embeds the canonical string if
// configured, and appends the event.
func (f *ChatFlusher) archiveEvent(ctx context.Context, projectID, userID string, pack *promptpack.Pack, eff config.Effective, entryText string, deltas []model.ProfileDelta) (string, error) {
	var tags []model.EventTag
	if len(eff.EventTags) > 0 {
		system, user := pack.EventTagging(entryText, eff.EventTags)
		text, err := f.complete(ctx, projectID, f.cfg.BestLLMModel, system, user)
		if err != nil {
			return "", err
		}
		tags = promptpack.ParseEventTags(text, f.cfg.TabSeparator)
	}

	data := model.EventData{
		EventTip:     entryText,
		EventTags:    tags,
		ProfileDelta: deltas,
	}

	var embedding []float32
	if f.cfg.EnableEventEmbedding {
		vectors, err := f.gateway.Embed(ctx, llmgateway.EmbedRequest{
			ProjectID: projectID,
			Texts:     []string{storepg.EmbeddingString(data)},
			Phase:     llmgateway.PhaseDocument,
			Model:     f.cfg.EmbeddingModel,
		})
		if err != nil {
			return "", err
		}
		if len(vectors) > 0 {
			embedding = vectors[0]
		}
	}

	return f.events.Append(ctx, projectID, userID, data, embedding)
}

// mergeResult is one finished Stage-3 decision for a single candidate key.
type mergeResult struct {
	key           model.ProfileKey
	action        string
	content       string
	candidateMemo string
	existing      model.Profile
	isNew         bool
}

func (f *ChatFlusher) mergeCandidates(ctx context.Context, projectID string, pack *promptpack.Pack, candidates []promptpack.ExtractedProfile, byKey map[model.ProfileKey]model.Profile, eff config.Effective) ([]mergeResult, error) {
	results := make([]mergeResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			key := model.NewProfileKey(c.Topic, c.SubTopic)
			existing, found := byKey[key]
			subSpec := findSubTopicSpec(eff.Topics, c.Topic, c.SubTopic)

			// Bypass the LLM only when validate_mode is off, the sub-topic
			// doesn't demand validation, and there is nothing to merge
			// against yet (spec §4.7 stage 3).
			if !found && !eff.ValidateMode && !subSpec.ValidateValue {
				results[i] = mergeResult{key: key, action: "APPEND", content: c.Memo, candidateMemo: c.Memo, isNew: true}
				return nil
			}

			description := subSpec.UpdateDescription
			if description == "" {
				description = subSpec.Description
			}
			system, user := pack.MergeProfile(existing.Content, c.Memo, description)
			text, err := f.complete(gctx, projectID, f.cfg.BestLLMModel, system, user)
			if err != nil {
				return err
			}
			action, ok := promptpack.ParseMergeAction(text, f.cfg.TabSeparator)
			if !ok {
				action = promptpack.MergeAction{Action: "ABORT", Memo: existing.Content}
			}
			results[i] = mergeResult{key: key, action: action.Action, content: action.Memo, candidateMemo: c.Memo, existing: existing, isNew: !found}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// findSubTopicSpec looks up the configured spec for one (topic, sub_topic)
// pair, returning a zero value when the pair isn't configured (freeform
// extraction under non-strict mode).
func findSubTopicSpec(topics []model.TopicSpec, topic, subTopic string) model.SubTopicSpec {
	normTopic := model.NormalizeTopic(topic)
	normSub := model.NormalizeTopic(subTopic)
	for _, t := range topics {
		if model.NormalizeTopic(t.Topic) != normTopic {
			continue
		}
		for _, st := range t.SubTopics {
			if model.NormalizeTopic(st.Name) == normSub {
				return st
			}
		}
	}
	return model.SubTopicSpec{}
}

// splitMergeResults folds the parallel merge decisions into new profiles,
// profile updates, profile deletes (ABORT against an existing memo, spec
// §4.7 stage 3), and the per-event ProfileDelta list, deduplicating by key
// when the same topic/sub_topic was touched twice in one flush (last write
// wins, matching a single serialized pass over the conversation).
func splitMergeResults(merges []mergeResult) (toAdd []model.Profile, toUpdate []storepg.ProfileUpdate, toDelete []string, deltas []model.ProfileDelta) {
	addByKey := make(map[model.ProfileKey]model.Profile)
	updateByID := make(map[string]storepg.ProfileUpdate)
	deleteIDs := make(map[string]bool)
	deltaByKey := make(map[model.ProfileKey]model.ProfileDelta)

	for _, m := range merges {
		if m.action == "ABORT" {
			// ABORT with no prior profile means the candidate memo was
			// rejected outright: nothing is added, nothing is recorded as a
			// delta. ABORT against an existing memo retracts it.
			if !m.isNew {
				deleteIDs[m.existing.ID] = true
			}
			continue
		}
		if m.isNew {
			p, exists := addByKey[m.key]
			if exists {
				p.Content = m.content
			} else {
				p = model.Profile{Content: m.content, Attributes: model.ProfileAttributes{Topic: m.key.Topic, SubTopic: m.key.SubTopic}}
			}
			addByKey[m.key] = p
		} else {
			content := m.content
			attrs := m.existing.Attributes
			attrs.UpdateHits++
			updateByID[m.existing.ID] = storepg.ProfileUpdate{ID: m.existing.ID, Content: &content, Attributes: &attrs}
		}
		// Spec §4.7 stage 3: the archived delta records the extracted
		// candidate's own memo (new_memo), not the post-merge decided
		// content that ends up persisted.
		deltaByKey[m.key] = model.ProfileDelta{
			Content:    m.candidateMemo,
			Attributes: model.ProfileAttributes{Topic: m.key.Topic, SubTopic: m.key.SubTopic},
		}
	}

	for _, p := range addByKey {
		toAdd = append(toAdd, p)
	}
	for _, u := range updateByID {
		toUpdate = append(toUpdate, u)
	}
	for id := range deleteIDs {
		toDelete = append(toDelete, id)
	}
	for _, d := range deltaByKey {
		deltas = append(deltas, d)
	}
	return toAdd, toUpdate, toDelete, deltas
}

// filterStrictCandidates drops any candidate whose (topic, sub_topic) isn't
// one of the project's configured pairs, when strict_mode is on (spec §4.7
// stage 2 edge case).
func filterStrictCandidates(candidates []promptpack.ExtractedProfile, topics []model.TopicSpec) []promptpack.ExtractedProfile {
	allowed := make(map[model.ProfileKey]bool)
	for _, t := range topics {
		for _, st := range t.SubTopics {
			allowed[model.NewProfileKey(t.Topic, st.Name)] = true
		}
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if allowed[model.NewProfileKey(c.Topic, c.SubTopic)] {
			out = append(out, c)
		}
	}
	return out
}
