// Package stats counts orchestrator hits, misses, writes and deletes.
package stats

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultLatencyBufferSize = 10000

// Manager records operation counters when enabled. A disabled manager keeps
// its counters unchanged.
type Manager struct {
	enabled atomic.Bool

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int
}

func NewManager(enabled bool) *Manager {
	m := &Manager{
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
	m.enabled.Store(enabled)
	return m
}

func (m *Manager) Enabled() bool {
	return m.enabled.Load()
}

func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

func (m *Manager) Hit() {
	if m.enabled.Load() {
		m.hits.Add(1)
	}
}

func (m *Manager) Miss() {
	if m.enabled.Load() {
		m.misses.Add(1)
	}
}

// HitsOrMisses records one hit or miss per batch slot.
func (m *Manager) HitsOrMisses(found []bool) {
	if !m.enabled.Load() {
		return
	}
	var hits int64
	for _, ok := range found {
		if ok {
			hits++
		}
	}
	m.hits.Add(hits)
	m.misses.Add(int64(len(found)) - hits)
}

func (m *Manager) Set() {
	if m.enabled.Load() {
		m.sets.Add(1)
	}
}

func (m *Manager) Delete() {
	if m.enabled.Load() {
		m.deletes.Add(1)
	}
}

func (m *Manager) Error() {
	if m.enabled.Load() {
		m.errors.Add(1)
	}
}

// Observe stores a latency sample in a fixed-size ring buffer.
func (m *Manager) Observe(latency time.Duration) {
	if !m.enabled.Load() {
		return
	}
	m.latencyMu.Lock()
	m.latencyBuffer[m.latencyIndex] = latency
	m.latencyIndex = (m.latencyIndex + 1) % len(m.latencyBuffer)
	if m.latencyCount < len(m.latencyBuffer) {
		m.latencyCount++
	}
	m.latencyMu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Timestamp    time.Time
	Hits         int64
	Misses       int64
	Sets         int64
	Deletes      int64
	Errors       int64
	AvgLatencyMs float64
	P50LatencyMs float64
	P95LatencyMs float64
	P99LatencyMs float64
}

func (s *Snapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (m *Manager) Snapshot() Snapshot {
	m.latencyMu.RLock()
	count := m.latencyCount
	samples := make([]time.Duration, count)
	if count > 0 {
		if count < len(m.latencyBuffer) {
			copy(samples, m.latencyBuffer[:count])
		} else {
			// full buffer: oldest sample sits at latencyIndex
			n := copy(samples, m.latencyBuffer[m.latencyIndex:])
			copy(samples[n:], m.latencyBuffer[:m.latencyIndex])
		}
	}
	m.latencyMu.RUnlock()

	snap := Snapshot{
		Timestamp: time.Now(),
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Sets:      m.sets.Load(),
		Deletes:   m.deletes.Load(),
		Errors:    m.errors.Load(),
	}

	if len(samples) > 0 {
		slices.Sort(samples)
		snap.AvgLatencyMs = toMillis(avgDuration(samples))
		snap.P50LatencyMs = toMillis(percentile(samples, 50))
		snap.P95LatencyMs = toMillis(percentile(samples, 95))
		snap.P99LatencyMs = toMillis(percentile(samples, 99))
	}

	return snap
}

func (m *Manager) Reset() {
	m.hits.Store(0)
	m.misses.Store(0)
	m.sets.Store(0)
	m.deletes.Store(0)
	m.errors.Store(0)

	m.latencyMu.Lock()
	m.latencyIndex = 0
	m.latencyCount = 0
	m.latencyMu.Unlock()
}

func avgDuration(durations []time.Duration) time.Duration {
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
