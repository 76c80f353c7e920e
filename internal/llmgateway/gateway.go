// Package llmgateway is the sole boundary between the core pipeline and the
// configured LLM/embedding providers (spec §4.5): two operations, complete
// and embed, each provider-agnostic. Grounded on the teacher's
// internal/llm/openai/client.go (Chat Completions call shape) and
// internal/llm/observability.go (span/metric wiring).
package llmgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/skorpland/powermemo/internal/observability"
	"github.com/skorpland/powermemo/internal/perr"
	"github.com/skorpland/powermemo/internal/telemetry"
)

// Phase distinguishes embedding intent, since some providers use different
// instruction prefixes for queries vs documents.
type Phase string

const (
	PhaseQuery    Phase = "query"
	PhaseDocument Phase = "document"
)

// CompleteRequest is one completion call's full input.
type CompleteRequest struct {
	ProjectID    string
	SystemPrompt string
	History      []Message
	Prompt       string
	Model        string
	JSONMode     bool
	Extra        map[string]any
}

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// CompleteResult carries the raw text plus usage, so callers needing
// json_mode can run it through ExtractFirstCompleteJSON themselves.
type CompleteResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// EmbedRequest embeds a batch of texts in a single call.
type EmbedRequest struct {
	ProjectID string
	Texts     []string
	Phase     Phase
	Model     string
}

// Provider is the interface a concrete backend (OpenAI-compatible, Jina,
// etc.) implements.
type Provider interface {
	Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error)
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, error)
}

// BillingSink records token usage against a project's quota (spec §4.5:
// "the gateway also decrements the project's remaining token allowance if
// one is set"). Implemented by storepg.ProjectStore; nil disables
// accounting entirely.
type BillingSink interface {
	RecordUsage(ctx context.Context, projectID string, tokens int, costMicroUSD int64) error
}

// CompositeProvider pairs an independent completion backend with an
// independent embedding backend (spec §4.5: completion and embedding are
// configured as separate, pluggable backends) — e.g. OpenAIBackend for
// completion and JinaBackend for embedding.
type CompositeProvider struct {
	Completer Provider
	Embedder  Provider
}

func (p CompositeProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	return p.Completer.Complete(ctx, req)
}

func (p CompositeProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	return p.Embedder.Embed(ctx, req)
}

// Gateway wraps a Provider with telemetry and the json_mode parse contract
// (spec §7: "UnprocessableEntity ... LLM response not parseable as JSON").
type Gateway struct {
	provider          Provider
	metrics           *telemetry.Metrics
	billing           BillingSink
	costPerThousandUSD int64 // micro-USD per 1000 tokens, 0 disables cost accrual
}

func New(provider Provider, metrics *telemetry.Metrics) *Gateway {
	return &Gateway{provider: provider, metrics: metrics}
}

// WithBilling attaches a BillingSink and the per-1k-token cost rate (in
// micro-USD) used to accrue the monthly cost spec §6's billing endpoint
// reports. Returns g for chaining at construction time.
func (g *Gateway) WithBilling(sink BillingSink, costPerThousandTokensMicroUSD int64) *Gateway {
	g.billing = sink
	g.costPerThousandUSD = costPerThousandTokensMicroUSD
	return g
}

// Complete runs one completion call, recording latency/token metrics and,
// if a BillingSink is attached, checking and decrementing quota.
func (g *Gateway) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	logger := observability.LoggerWithTrace(ctx)
	if raw, err := json.Marshal(req); err == nil {
		logger.Debug().RawJSON("request", observability.RedactJSON(raw)).Str("project_id", req.ProjectID).Msg("llm_complete_request")
	}

	start := time.Now()
	res, err := g.provider.Complete(ctx, req)
	g.metrics.RecordLLM(ctx, req.ProjectID, req.Model, res.PromptTokens, res.CompletionTokens, time.Since(start))
	if err != nil {
		return CompleteResult{}, perr.ServiceUnavailable("llm completion failed: %v", err)
	}
	if raw, err := json.Marshal(res); err == nil {
		logger.Debug().RawJSON("response", observability.RedactJSON(raw)).Str("project_id", req.ProjectID).Msg("llm_complete_response")
	}
	if billErr := g.recordUsage(ctx, req.ProjectID, res.PromptTokens+res.CompletionTokens); billErr != nil {
		return CompleteResult{}, billErr
	}
	return res, nil
}

func (g *Gateway) recordUsage(ctx context.Context, projectID string, tokens int) error {
	if g.billing == nil {
		return nil
	}
	cost := int64(tokens) * g.costPerThousandUSD / 1000
	return g.billing.RecordUsage(ctx, projectID, tokens, cost)
}

// CompleteJSON runs Complete and parses the result as JSON, salvaging a
// best-effort object from malformed output before giving up (spec §4.6's
// json_mode contract).
func (g *Gateway) CompleteJSON(ctx context.Context, req CompleteRequest) (map[string]any, error) {
	req.JSONMode = true
	res, err := g.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	obj, ok := ExtractFirstCompleteJSON(res.Text)
	if !ok {
		return nil, perr.UnprocessableEntity("llm response is not parseable as json")
	}
	return obj, nil
}

// Embed embeds a batch of texts, recording latency/token metrics.
func (g *Gateway) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	start := time.Now()
	vectors, err := g.provider.Embed(ctx, req)
	tokens := 0
	for _, t := range req.Texts {
		tokens += len(t) / 4
	}
	g.metrics.RecordEmbedding(ctx, req.ProjectID, req.Model, tokens, time.Since(start))
	if err != nil {
		return nil, perr.ServiceUnavailable("embedding failed: %v", err)
	}
	if billErr := g.recordUsage(ctx, req.ProjectID, tokens); billErr != nil {
		return nil, billErr
	}
	return vectors, nil
}
