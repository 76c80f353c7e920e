// Package telemetry defines the process-wide OTel instruments every
// component reports through. Provider/exporter setup lives in
// internal/observability; this package only declares what gets measured
// (spec §6: "Prometheus-style counters ... and histograms ... labeled with
// project_id and normalized path").
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the counters and histograms the core emits. A Metrics
// with a nil meter (zero value) is safe to call; every method degrades to a
// no-op so components never need to branch on whether telemetry is wired.
type Metrics struct {
	requests      metric.Int64Counter
	requestLatency metric.Float64Histogram

	healthchecks metric.Int64Counter

	llmInvocations  metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmLatency      metric.Float64Histogram

	embeddingTokens  metric.Int64Counter
	embeddingLatency metric.Float64Histogram
}

// New builds a Metrics from the globally installed meter provider. Call
// after observability.InitOTel (or with no provider installed at all, in
// which case otel's no-op meter is used and every instrument is inert).
func New() *Metrics {
	m := otel.Meter("powermemo")
	tel := &Metrics{}

	tel.requests, _ = m.Int64Counter("powermemo.requests_total",
		metric.WithDescription("HTTP requests by project and path"))
	tel.requestLatency, _ = m.Float64Histogram("powermemo.request_latency_ms",
		metric.WithDescription("HTTP request latency in milliseconds"))

	tel.healthchecks, _ = m.Int64Counter("powermemo.healthcheck_total",
		metric.WithDescription("Healthcheck invocations"))

	tel.llmInvocations, _ = m.Int64Counter("powermemo.llm_invocations_total",
		metric.WithDescription("LLM completion calls by model"))
	tel.llmInputTokens, _ = m.Int64Counter("powermemo.llm_input_tokens_total",
		metric.WithDescription("LLM prompt tokens consumed by model"))
	tel.llmOutputTokens, _ = m.Int64Counter("powermemo.llm_output_tokens_total",
		metric.WithDescription("LLM completion tokens produced by model"))
	tel.llmLatency, _ = m.Float64Histogram("powermemo.llm_latency_ms",
		metric.WithDescription("LLM completion latency in milliseconds"))

	tel.embeddingTokens, _ = m.Int64Counter("powermemo.embedding_tokens_total",
		metric.WithDescription("Embedding tokens consumed by model"))
	tel.embeddingLatency, _ = m.Float64Histogram("powermemo.embedding_latency_ms",
		metric.WithDescription("Embedding call latency in milliseconds"))

	return tel
}

// RecordRequest records one HTTP request's outcome and latency.
func (t *Metrics) RecordRequest(ctx context.Context, projectID, path string, status int, dur time.Duration) {
	if t == nil || t.requests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("path", path),
		attribute.Int("status", status),
	)
	t.requests.Add(ctx, 1, attrs)
	t.requestLatency.Record(ctx, float64(dur.Microseconds())/1000.0, attrs)
}

// RecordHealthcheck records one /healthcheck invocation.
func (t *Metrics) RecordHealthcheck(ctx context.Context) {
	if t == nil || t.healthchecks == nil {
		return
	}
	t.healthchecks.Add(ctx, 1)
}

// RecordLLM records one completion call's token usage and latency.
func (t *Metrics) RecordLLM(ctx context.Context, projectID, model string, inputTokens, outputTokens int, dur time.Duration) {
	if t == nil || t.llmInvocations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("model", model),
	)
	t.llmInvocations.Add(ctx, 1, attrs)
	if inputTokens > 0 {
		t.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		t.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
	t.llmLatency.Record(ctx, float64(dur.Microseconds())/1000.0, attrs)
}

// RecordEmbedding records one embedding call's token usage and latency.
func (t *Metrics) RecordEmbedding(ctx context.Context, projectID, model string, tokens int, dur time.Duration) {
	if t == nil || t.embeddingTokens == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("model", model),
	)
	if tokens > 0 {
		t.embeddingTokens.Add(ctx, int64(tokens), attrs)
	}
	t.embeddingLatency.Record(ctx, float64(dur.Microseconds())/1000.0, attrs)
}
