// Package telemetry wires OpenTelemetry tracing and metrics around the
// module's suspension points: tenant-store reads/writes, model
// invocations, and stack-trace archival. Other packages depend only on
// core.Telemetry/core.Span, except internal/model's Gemini-style client,
// which starts its own spans through the global OpenTelemetry tracer.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

const meterName = "leadscorer"

// Provider implements core.Telemetry with an OTLP/HTTP exporter pair,
// one for traces and one for metrics, batched and shipped to a
// collector at endpoint.
type Provider struct {
	tracer         trace.Tracer
	instruments    *instruments
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	shutdownOnce   sync.Once
	mu             sync.RWMutex
	shutdown       bool
}

// NewProvider creates the tracing and metrics pipeline for one run of
// the orchestrator. endpoint is an OTLP/HTTP collector address
// (host:port, no scheme); it defaults to localhost:4318 when empty.
func NewProvider(ctx context.Context, serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter for %s: %w", endpoint, err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: create metric exporter for %s: %w", endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:         tp.Tracer(meterName),
		instruments:    newInstruments(mp.Meter(meterName)),
		traceProvider:  tp,
		metricProvider: mp,
	}, nil
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	p.mu.RLock()
	if p.shutdown || p.tracer == nil {
		p.mu.RUnlock()
		return core.NoOpTelemetry{}.StartSpan(ctx, name)
	}
	p.mu.RUnlock()

	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry. Metric names are routed to a
// counter or histogram instrument using the same suffix heuristics the
// module's metric names follow: *_total/*_count -> counter,
// *_duration_ms/*_tokens -> histogram.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.mu.RLock()
	shutdown := p.shutdown
	p.mu.RUnlock()
	if shutdown {
		return
	}

	var attrs []attribute.KeyValue
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	switch {
	case hasSuffix(name, "_total") || hasSuffix(name, "_count"):
		p.instruments.recordCounter(ctx, name, int64(value), metric.WithAttributes(attrs...))
	default:
		p.instruments.recordHistogram(ctx, name, value, metric.WithAttributes(attrs...))
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// Shutdown flushes pending spans and metrics and tears down both
// providers. Safe to call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		var errs []error
		if p.metricProvider != nil {
			if e := p.metricProvider.Shutdown(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		if p.traceProvider != nil {
			if e := p.traceProvider.Shutdown(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		if len(errs) > 0 {
			err = fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
	})
	return err
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
