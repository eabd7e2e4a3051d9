package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// instruments caches the metric instruments a Provider has created so
// repeated RecordMetric calls for the same name reuse one instrument
// instead of re-registering with the meter on every call.
type instruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

func newInstruments(meter metric.Meter) *instruments {
	return &instruments{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (i *instruments) counter(name string) (metric.Int64Counter, error) {
	i.mu.RLock()
	c, ok := i.counters[name]
	i.mu.RUnlock()
	if ok {
		return c, nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if c, ok = i.counters[name]; ok {
		return c, nil
	}
	c, err := i.meter.Int64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	i.counters[name] = c
	return c, nil
}

func (i *instruments) histogram(name string) (metric.Float64Histogram, error) {
	i.mu.RLock()
	h, ok := i.histograms[name]
	i.mu.RUnlock()
	if ok {
		return h, nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if h, ok = i.histograms[name]; ok {
		return h, nil
	}
	h, err := i.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", name, err)
	}
	i.histograms[name] = h
	return h, nil
}

// recordCounter and recordHistogram swallow instrument-creation errors;
// a misbehaving metric name must never abort a scoring run.
func (i *instruments) recordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) {
	c, err := i.counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, value, opts...)
}

func (i *instruments) recordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) {
	h, err := i.histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, value, opts...)
}
