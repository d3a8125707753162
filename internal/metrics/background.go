package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LavishGent/keyv/internal/stats"
)

// BackgroundPublisher publishes stats snapshots at regular intervals
// with context-based cancellation support.
type BackgroundPublisher struct {
	publisher Publisher
	logger    *slog.Logger
	clock     clockwork.Clock
	source    func() *stats.Snapshot
	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup
	interval  time.Duration
}

// NewBackgroundPublisher creates a new background publisher.
// The source is called on each interval to get the current snapshot.
func NewBackgroundPublisher(
	publisher Publisher,
	interval time.Duration,
	source func() *stats.Snapshot,
	logger *slog.Logger,
) *BackgroundPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &BackgroundPublisher{
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "metrics-background"),
		clock:     clockwork.NewRealClock(),
		source:    source,
	}
}

// WithClock replaces the ticker clock. Call before Start.
func (b *BackgroundPublisher) WithClock(clock clockwork.Clock) *BackgroundPublisher {
	b.clock = clock
	return b
}

// Start begins the background publishing loop.
// The provided context controls the lifecycle of the background goroutine.
func (b *BackgroundPublisher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	ticker := b.clock.NewTicker(b.interval)
	b.wg.Add(1)
	go b.run(ticker)
	b.logger.Info("Background metrics publisher started", "interval", b.interval)
}

// Stop cancels the background context and waits for shutdown.
func (b *BackgroundPublisher) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("Background metrics publisher stopped")
}

func (b *BackgroundPublisher) run(ticker clockwork.Ticker) {
	defer b.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			// Final publish before stopping
			b.publish()
			return
		case <-ticker.Chan():
			b.publish()
		}
	}
}

func (b *BackgroundPublisher) publish() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in metrics publisher", "panic", r)
		}
	}()

	if b.source == nil {
		return
	}

	if snap := b.source(); snap != nil {
		b.publisher.PublishStats(snap)
	}
}

// PublishNow triggers an immediate metrics publish.
func (b *BackgroundPublisher) PublishNow() {
	b.publish()
}
