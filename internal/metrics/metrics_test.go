package metrics

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/stats"
)

// trackingPublisher records calls for assertions.
type trackingPublisher struct {
	NoOpPublisher
	mu      sync.Mutex
	gauges  map[string]float64
	timings []string
	tags    [][]string
	stats   int
}

func newTrackingPublisher() *trackingPublisher {
	return &trackingPublisher{gauges: make(map[string]float64)}
}

func (p *trackingPublisher) Gauge(name string, value float64, tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gauges[name] = value
}

func (p *trackingPublisher) Timing(name string, d time.Duration, tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timings = append(p.timings, name)
	p.tags = append(p.tags, tags)
}

func (p *trackingPublisher) PublishStats(s *stats.Snapshot) {
	p.mu.Lock()
	p.stats++
	p.mu.Unlock()
	PublishGauges(p, s)
}

func (p *trackingPublisher) statsCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func TestNoOpPublisher(t *testing.T) {
	p := NewNoOpPublisher()
	p.Gauge("g", 1)
	p.Incr("i")
	p.Count("c", 2)
	p.Histogram("h", 3)
	p.Timing("t", time.Second)
	p.Event("e", "text", "info")
	p.PublishStats(&stats.Snapshot{})
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLoggingPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewLoggingPublisher(logger, "env:test")

	p.Incr("cache.hits", StatusTag("hit"))
	p.PublishStats(&stats.Snapshot{Hits: 9, Misses: 1})
	p.PublishStats(nil)

	out := buf.String()
	for _, want := range []string{"incr", "cache.hits", "status:hit", "env:test", "cache_stats", "hits=9", "hit_ratio=0.9"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "cache_stats"); n != 1 {
		t.Errorf("cache_stats logged %d times, want 1", n)
	}
}

func TestPublishGauges(t *testing.T) {
	p := newTrackingPublisher()
	PublishGauges(p, &stats.Snapshot{Hits: 1, Misses: 3, Errors: 2, AvgLatencyMs: -1})

	if got := p.gauges[MetricHitRatio]; got != 0.25 {
		t.Errorf("hit ratio = %v, want 0.25", got)
	}
	if got := p.gauges[MetricErrors]; got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
	if got := p.gauges[MetricLatencyAvg]; got != 0 {
		t.Errorf("negative latency should clamp to 0, got %v", got)
	}

	PublishGauges(p, nil)
	if len(p.gauges) != 10 {
		t.Errorf("expected 10 gauges, got %d", len(p.gauges))
	}
}

func TestMergeTags(t *testing.T) {
	base := make([]string, 1, 4)
	base[0] = "a:1"

	first := MergeTags(base, []string{"b:2"})
	second := MergeTags(base, []string{"c:3"})
	if first[1] != "b:2" || second[1] != "c:3" {
		t.Errorf("merged tags alias base: %v %v", first, second)
	}
	if got := MergeTags(nil, []string{"x"}); len(got) != 1 {
		t.Errorf("MergeTags(nil, x) = %v", got)
	}
	if got := MergeTags(base, nil); len(got) != 1 {
		t.Errorf("MergeTags(base, nil) = %v", got)
	}
}

func TestTags(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Tag("k", "v"), "k:v"},
		{OperationTag("get"), "operation:get"},
		{StatusTag("miss"), "status:miss"},
		{NamespaceTag(""), "namespace:none"},
		{NamespaceTag("users"), "namespace:users"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := newTrackingPublisher()

	timer := NewTimerWithClock(clock, p, "cache.get", OperationTag("get"))
	clock.Advance(25 * time.Millisecond)

	if got := timer.Elapsed(); got != 25*time.Millisecond {
		t.Errorf("Elapsed() = %v", got)
	}
	if got := timer.Stop(StatusTag("hit")); got != 25*time.Millisecond {
		t.Errorf("Stop() = %v", got)
	}
	if len(p.timings) != 1 || p.timings[0] != "cache.get" {
		t.Fatalf("timings = %v", p.timings)
	}
	if tags := p.tags[0]; len(tags) != 2 || tags[1] != "status:hit" {
		t.Errorf("tags = %v", tags)
	}
}

func TestBackgroundPublisher(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := newTrackingPublisher()

	var calls int
	var mu sync.Mutex
	source := func() *stats.Snapshot {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return &stats.Snapshot{Hits: int64(calls)}
	}

	bg := NewBackgroundPublisher(p, time.Second, source, nil).WithClock(clock)
	bg.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}
	clock.Advance(time.Second)

	deadline := time.Now().Add(time.Second)
	for p.statsCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.statsCount() < 1 {
		t.Fatal("expected a publish after one interval")
	}

	bg.Stop()
	if got := p.statsCount(); got < 2 {
		t.Errorf("expected a final publish on stop, got %d publishes", got)
	}
}

func TestBackgroundPublisher_RecoversPanic(t *testing.T) {
	p := newTrackingPublisher()
	bg := NewBackgroundPublisher(p, time.Second, func() *stats.Snapshot { panic("boom") }, nil)

	bg.PublishNow()
	if p.statsCount() != 0 {
		t.Error("panicking source should not publish")
	}

	NewBackgroundPublisher(p, 0, nil, nil).PublishNow()
}
