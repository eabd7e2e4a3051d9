package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

type fakeTelemetry struct {
	metrics []recordedMetric
	spans   []string
}

type recordedMetric struct {
	name   string
	value  float64
	labels map[string]string
}

func (f *fakeTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	f.spans = append(f.spans, name)
	return ctx, &fakeSpan{}
}

func (f *fakeTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	f.metrics = append(f.metrics, recordedMetric{name, value, labels})
}

type fakeSpan struct {
	attrs    map[string]interface{}
	errored  error
}

func (s *fakeSpan) End() {}
func (s *fakeSpan) SetAttribute(key string, value interface{}) {
	if s.attrs == nil {
		s.attrs = map[string]interface{}{}
	}
	s.attrs[key] = value
}
func (s *fakeSpan) RecordError(err error) { s.errored = err }

func TestRecordChunkResultEmitsAllCounters(t *testing.T) {
	tel := &fakeTelemetry{}
	result := &core.ChunkResult{Processed: 10, Scored: 6, Skipped: 3, Errors: 1, TotalTokens: 420}

	RecordChunkResult(tel, "acme", result)

	names := map[string]float64{}
	for _, m := range tel.metrics {
		names[m.name] = m.value
		assert.Equal(t, "acme", m.labels["client_id"])
	}
	assert.Equal(t, float64(10), names[MetricLeadsProcessedTotal])
	assert.Equal(t, float64(6), names[MetricLeadsScoredTotal])
	assert.Equal(t, float64(3), names[MetricLeadsSkippedTotal])
	assert.Equal(t, float64(1), names[MetricLeadsErrorsTotal])
	assert.Equal(t, float64(420), names[MetricScoringTokens])
}

func TestRecordChunkResultSkipsTokenMetricWhenZero(t *testing.T) {
	tel := &fakeTelemetry{}
	RecordChunkResult(tel, "acme", &core.ChunkResult{Processed: 1, Scored: 1})

	for _, m := range tel.metrics {
		assert.NotEqual(t, MetricScoringTokens, m.name)
	}
}

func TestRecordChunkResultNilTelemetryIsNoOp(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordChunkResult(nil, "acme", &core.ChunkResult{Processed: 1})
	})
}

func TestStartModelSpanSetsClientAttribute(t *testing.T) {
	tel := &fakeTelemetry{}
	_, span, requestID := StartModelSpan(context.Background(), tel, "acme")
	span.End()

	assert.Equal(t, []string{SpanModelScore}, tel.spans)
	assert.NotEmpty(t, requestID)
	fs := span.(*fakeSpan)
	assert.Equal(t, "acme", fs.attrs["client_id"])
	assert.Equal(t, requestID, fs.attrs["request_id"])
}

func TestStartModelSpanGeneratesDistinctRequestIDs(t *testing.T) {
	tel := &fakeTelemetry{}
	_, _, first := StartModelSpan(context.Background(), tel, "acme")
	_, _, second := StartModelSpan(context.Background(), tel, "acme")
	assert.NotEqual(t, first, second)
}

func TestStartStoreSpanSetsTableAttribute(t *testing.T) {
	tel := &fakeTelemetry{}
	_, span := StartStoreSpan(context.Background(), tel, SpanStoreSelect, "Leads")
	span.End()

	assert.Equal(t, []string{SpanStoreSelect}, tel.spans)
	fs := span.(*fakeSpan)
	assert.Equal(t, "Leads", fs.attrs["table"])
}
