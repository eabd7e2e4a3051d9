package telemetry

import (
	"context"

	"github.com/google/uuid"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Span names for the traced suspension points: the model invocation, the
// Lead Processor's tolerant-update writes and stack-trace writes, and the
// Client Runner's Lead Selector call each start one of these around the
// call. Other store calls (Open, HasField, rubric loading) are not spanned.
const (
	SpanModelScore       = "leadscorer.model.score"
	SpanStoreSelect      = "leadscorer.store.select"
	SpanStoreUpdate      = "leadscorer.store.update"
	SpanStackTraceRecord = "leadscorer.stacktrace.record"
)

// Metric names recorded once per client, after its chunks complete.
const (
	MetricLeadsProcessedTotal = "leadscorer_leads_processed_total"
	MetricLeadsScoredTotal    = "leadscorer_leads_scored_total"
	MetricLeadsSkippedTotal   = "leadscorer_leads_skipped_total"
	MetricLeadsErrorsTotal    = "leadscorer_leads_errors_total"
	MetricScoringTokens       = "leadscorer_scoring_tokens"
)

// RecordChunkResult emits the chunk-level counters spec.md 5 calls for:
// processed/scored/skipped/errors plus a token-usage histogram, all
// labeled by client so a dashboard can break down by tenant.
func RecordChunkResult(tel core.Telemetry, clientID string, r *core.ChunkResult) {
	if tel == nil || r == nil {
		return
	}
	labels := map[string]string{"client_id": clientID}
	tel.RecordMetric(MetricLeadsProcessedTotal, float64(r.Processed), labels)
	tel.RecordMetric(MetricLeadsScoredTotal, float64(r.Scored), labels)
	tel.RecordMetric(MetricLeadsSkippedTotal, float64(r.Skipped), labels)
	tel.RecordMetric(MetricLeadsErrorsTotal, float64(r.Errors), labels)
	if r.TotalTokens > 0 {
		tel.RecordMetric(MetricScoringTokens, float64(r.TotalTokens), labels)
	}
}

// StartModelSpan wraps a single model invocation. Callers must End() the
// returned span and, on error, call RecordError before doing so. The
// returned request id correlates this invocation with any stack trace
// archived if the call fails.
func StartModelSpan(ctx context.Context, tel core.Telemetry, clientID string) (context.Context, core.Span, string) {
	if tel == nil {
		tel = core.NoOpTelemetry{}
	}
	requestID := uuid.NewString()
	ctx, span := tel.StartSpan(ctx, SpanModelScore)
	span.SetAttribute("client_id", clientID)
	span.SetAttribute("request_id", requestID)
	return ctx, span, requestID
}

// StartStoreSpan wraps a tenant-store Select/Update call.
func StartStoreSpan(ctx context.Context, tel core.Telemetry, name, table string) (context.Context, core.Span) {
	if tel == nil {
		tel = core.NoOpTelemetry{}
	}
	ctx, span := tel.StartSpan(ctx, name)
	span.SetAttribute("table", table)
	return ctx, span
}
