// Package otel publishes keyv metrics through an OpenTelemetry MeterProvider.
package otel

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/LavishGent/keyv/internal/metrics"
	"github.com/LavishGent/keyv/internal/stats"
)

const scopeName = "github.com/LavishGent/keyv"

// eventCounter stands in for Event; OpenTelemetry metrics have no event type.
const eventCounter = "cache.events"

// Publisher implements metrics.Publisher on top of OTel instruments.
// Instruments are created on first use and cached by name.
type Publisher struct {
	meter    metric.Meter
	logger   *slog.Logger
	baseTags []string

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// NewPublisher creates a publisher reading instruments from provider.
func NewPublisher(provider metric.MeterProvider, logger *slog.Logger, baseTags ...string) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		meter:      provider.Meter(scopeName),
		logger:     logger.With("component", "otel"),
		baseTags:   baseTags,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

func (p *Publisher) counter(name string) metric.Int64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		p.logger.Debug("Failed to create counter", "name", name, "error", err)
	}
	p.counters[name] = c
	return c
}

func (p *Publisher) histogram(name, unit string) metric.Float64Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	var opts []metric.Float64HistogramOption
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	h, err := p.meter.Float64Histogram(name, opts...)
	if err != nil {
		p.logger.Debug("Failed to create histogram", "name", name, "error", err)
	}
	p.histograms[name] = h
	return h
}

func (p *Publisher) gauge(name string) metric.Float64Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return g
	}
	g, err := p.meter.Float64Gauge(name)
	if err != nil {
		p.logger.Debug("Failed to create gauge", "name", name, "error", err)
	}
	p.gauges[name] = g
	return g
}

// Gauge records the current value of name.
func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	if g := p.gauge(name); g != nil {
		g.Record(context.Background(), value, p.attrs(tags))
	}
}

// Incr adds one to the counter name.
func (p *Publisher) Incr(name string, tags ...string) {
	p.Count(name, 1, tags...)
}

// Count adds value to the counter name. Negative values are dropped since
// OTel counters are monotonic.
func (p *Publisher) Count(name string, value int64, tags ...string) {
	if value < 0 {
		return
	}
	if c := p.counter(name); c != nil {
		c.Add(context.Background(), value, p.attrs(tags))
	}
}

// Histogram records value in the histogram name.
func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	if h := p.histogram(name, ""); h != nil {
		h.Record(context.Background(), value, p.attrs(tags))
	}
}

// Timing records duration in milliseconds.
func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	if h := p.histogram(name, "ms"); h != nil {
		ms := float64(duration) / float64(time.Millisecond)
		h.Record(context.Background(), ms, p.attrs(tags))
	}
}

// Event counts occurrences of title under cache.events.
func (p *Publisher) Event(title, _, alertType string, tags ...string) {
	tags = metrics.MergeTags([]string{metrics.Tag("title", title), metrics.Tag("alert_type", alertType)}, tags)
	p.Incr(eventCounter, tags...)
}

// PublishStats records every snapshot field as a gauge.
func (p *Publisher) PublishStats(s *stats.Snapshot) {
	metrics.PublishGauges(p, s)
}

// Close is a no-op; the MeterProvider owner shuts it down.
func (p *Publisher) Close() error {
	return nil
}

func (p *Publisher) attrs(tags []string) metric.MeasurementOption {
	tags = metrics.MergeTags(p.baseTags, tags)
	kvs := make([]attribute.KeyValue, 0, len(tags))
	for _, tag := range tags {
		kvs = append(kvs, tagAttribute(tag))
	}
	return metric.WithAttributes(kvs...)
}

// tagAttribute splits "key:value". A tag with no colon becomes key=tag, value "true".
func tagAttribute(tag string) attribute.KeyValue {
	key, value, ok := strings.Cut(tag, ":")
	if !ok {
		return attribute.String(tag, "true")
	}
	return attribute.String(key, value)
}

var _ metrics.Publisher = (*Publisher)(nil)
