// Package metrics publishes keyv counters and latencies to a metrics backend.
package metrics

import (
	"time"

	"github.com/LavishGent/keyv/internal/stats"
)

// Publisher sends metrics to a backend. Tags use the "key:value" form.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text, alertType string, tags ...string)
	// PublishStats sends one snapshot of the operation counters.
	PublishStats(s *stats.Snapshot)
	Close() error
}

// Metric names shared by every publisher.
const (
	MetricHits         = "cache.hits"
	MetricMisses       = "cache.misses"
	MetricSets         = "cache.sets"
	MetricDeletes      = "cache.deletes"
	MetricErrors       = "cache.errors"
	MetricHitRatio     = "cache.hit_ratio"
	MetricLatencyAvg   = "cache.latency.avg_ms"
	MetricLatencyP50   = "cache.latency.p50_ms"
	MetricLatencyP95   = "cache.latency.p95_ms"
	MetricLatencyP99   = "cache.latency.p99_ms"
	MetricOperation    = "cache.operation"
	MetricCircuitState = "cache.circuit_breaker.state_change"
)

// statGauges flattens a snapshot into gauge values in a fixed order.
type gauge struct {
	name  string
	value float64
}

func statGauges(s *stats.Snapshot) []gauge {
	return []gauge{
		{MetricHits, float64(s.Hits)},
		{MetricMisses, float64(s.Misses)},
		{MetricSets, float64(s.Sets)},
		{MetricDeletes, float64(s.Deletes)},
		{MetricErrors, float64(s.Errors)},
		{MetricHitRatio, clamp(s.HitRatio(), 0, 1)},
		{MetricLatencyAvg, max(0, s.AvgLatencyMs)},
		{MetricLatencyP50, max(0, s.P50LatencyMs)},
		{MetricLatencyP95, max(0, s.P95LatencyMs)},
		{MetricLatencyP99, max(0, s.P99LatencyMs)},
	}
}

// PublishGauges sends every snapshot field through p.Gauge. Publishers without
// a native batch form use it for PublishStats.
func PublishGauges(p Publisher, s *stats.Snapshot, tags ...string) {
	if s == nil {
		return
	}
	for _, g := range statGauges(s) {
		p.Gauge(g.name, g.value, tags...)
	}
}

func clamp(val, minVal, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// MergeTags appends tags to base without aliasing base's backing array.
func MergeTags(base, tags []string) []string {
	if len(tags) == 0 {
		return base
	}
	if len(base) == 0 {
		return tags
	}
	out := make([]string, 0, len(base)+len(tags))
	out = append(out, base...)
	return append(out, tags...)
}
