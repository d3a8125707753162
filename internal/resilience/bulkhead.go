package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/LavishGent/keyv/internal/config"
)

// Bulkhead caps the number of concurrent round trips to a backend.
type Bulkhead struct {
	sem            *semaphore.Weighted
	maxConcurrent  int64
	acquireTimeout time.Duration
	active         atomic.Int64
	rejected       atomic.Int64
}

// NewBulkhead creates a bulkhead from the given configuration. Without an
// acquire timeout a full bulkhead rejects immediately.
func NewBulkhead(cfg config.BulkheadConfig) *Bulkhead {
	limit := int64(cfg.MaxConcurrent)
	if limit <= 0 {
		limit = 100
	}
	return &Bulkhead{
		sem:            semaphore.NewWeighted(limit),
		maxConcurrent:  limit,
		acquireTimeout: cfg.AcquireTimeout,
	}
}

// Execute runs fn once a slot is available.
func (b *Bulkhead) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	b.active.Add(1)
	defer func() {
		b.active.Add(-1)
		b.sem.Release(1)
	}()
	return fn(ctx)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if b.acquireTimeout <= 0 {
		if !b.sem.TryAcquire(1) {
			b.rejected.Add(1)
			return ErrBulkheadFull
		}
		return nil
	}

	actx, cancel := context.WithTimeout(ctx, b.acquireTimeout)
	defer cancel()
	if err := b.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.rejected.Add(1)
		return ErrBulkheadTimeout
	}
	return nil
}

// BulkheadStats is a point-in-time view of a bulkhead.
type BulkheadStats struct {
	MaxConcurrent int64
	Active        int64
	Rejected      int64
}

func (b *Bulkhead) Stats() BulkheadStats {
	return BulkheadStats{
		MaxConcurrent: b.maxConcurrent,
		Active:        b.active.Load(),
		Rejected:      b.rejected.Load(),
	}
}
