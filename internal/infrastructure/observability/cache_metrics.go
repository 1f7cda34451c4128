package observability

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// latencyWindow bounds the retained latency samples.
const latencyWindow = 1000

// CacheMetrics records cache hits, misses, errors and latency. One instance
// is created per process and injected into every cache client; counters are
// safe for concurrent use. Counts are mirrored to OpenTelemetry instruments
// on the global meter.
type CacheMetrics struct {
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64

	mu      sync.Mutex
	samples []float64
	next    int

	hitCounter   metric.Int64Counter
	missCounter  metric.Int64Counter
	errorCounter metric.Int64Counter
	latency      metric.Float64Histogram
}

// NewCacheMetrics creates a recorder. Instrument creation failures leave the
// recorder working in-memory only.
func NewCacheMetrics() *CacheMetrics {
	m := &CacheMetrics{samples: make([]float64, 0, latencyWindow)}

	meter := otel.Meter(instrumentationName)
	m.hitCounter, _ = meter.Int64Counter("cache.hit.count", metric.WithDescription("Number of cache hits"))
	m.missCounter, _ = meter.Int64Counter("cache.miss.count", metric.WithDescription("Number of cache misses"))
	m.errorCounter, _ = meter.Int64Counter("cache.error.count", metric.WithDescription("Number of cache tier errors"))
	m.latency, _ = meter.Float64Histogram("cache.operation.duration",
		metric.WithDescription("Cache operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return m
}

// Hit records a successful read.
func (m *CacheMetrics) Hit(ctx context.Context, op string, d time.Duration) {
	m.hits.Add(1)
	m.observe(ctx, op, d)
	if m.hitCounter != nil {
		m.hitCounter.Add(ctx, 1, opAttr(op))
	}
}

// Miss records a read that found nothing usable.
func (m *CacheMetrics) Miss(ctx context.Context, op string, d time.Duration) {
	m.misses.Add(1)
	m.observe(ctx, op, d)
	if m.missCounter != nil {
		m.missCounter.Add(ctx, 1, opAttr(op))
	}
}

// Error records a cache tier failure.
func (m *CacheMetrics) Error(ctx context.Context, op string, d time.Duration) {
	m.errors.Add(1)
	m.observe(ctx, op, d)
	if m.errorCounter != nil {
		m.errorCounter.Add(ctx, 1, opAttr(op))
	}
}

// Write records the latency of a successful write.
func (m *CacheMetrics) Write(ctx context.Context, op string, d time.Duration) {
	m.observe(ctx, op, d)
}

func (m *CacheMetrics) observe(ctx context.Context, op string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	m.mu.Lock()
	if len(m.samples) < latencyWindow {
		m.samples = append(m.samples, ms)
	} else {
		m.samples[m.next] = ms
	}
	m.next = (m.next + 1) % latencyWindow
	m.mu.Unlock()

	if m.latency != nil {
		m.latency.Record(ctx, ms, opAttr(op))
	}
}

// Snapshot returns the current counters. HitRate is a percentage of reads.
func (m *CacheMetrics) Snapshot() entities.CacheMetricsSnapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()

	snap := entities.CacheMetricsSnapshot{
		Hits:   hits,
		Misses: misses,
		Errors: m.errors.Load(),
	}
	if reads := hits + misses; reads > 0 {
		snap.HitRate = round2(float64(hits) / float64(reads) * 100)
	}

	m.mu.Lock()
	snap.Samples = len(m.samples)
	var sum float64
	for _, s := range m.samples {
		sum += s
	}
	m.mu.Unlock()

	if snap.Samples > 0 {
		snap.AvgLatencyMs = round2(sum / float64(snap.Samples))
	}
	return snap
}

func opAttr(op string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("cache.operation", op))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
