package resilience

import (
	"context"
	"log/slog"

	"github.com/LavishGent/keyv/internal/config"
)

// Policy combines the bulkhead, retry and circuit breaker patterns. A nil
// *Policy runs operations directly.
type Policy struct {
	breaker  *CircuitBreaker
	retrier  *Retrier
	bulkhead *Bulkhead
}

// NewPolicy creates a policy for the backend called name. Disabled patterns
// are left out.
func NewPolicy(name string, cfg config.ResilienceConfig, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Policy{}
	if cfg.CircuitBreaker.Enabled {
		p.breaker = NewCircuitBreaker(name, cfg.CircuitBreaker, logger)
	}
	if cfg.Retry.Enabled {
		p.retrier = NewRetrier(cfg.Retry, logger)
	}
	if cfg.Bulkhead.Enabled {
		p.bulkhead = NewBulkhead(cfg.Bulkhead)
	}
	return p
}

// Execute runs fn through the bulkhead, then retry, then the circuit breaker,
// so every retry attempt counts toward the breaker state.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	if p == nil {
		return fn(ctx)
	}

	attempt := fn
	if p.breaker != nil {
		attempt = func(ctx context.Context) error {
			return p.breaker.Execute(func() error { return fn(ctx) })
		}
	}

	withRetry := attempt
	if p.retrier != nil {
		withRetry = func(ctx context.Context) error {
			return p.retrier.Execute(ctx, attempt)
		}
	}

	if p.bulkhead != nil {
		return p.bulkhead.Execute(ctx, withRetry)
	}
	return withRetry(ctx)
}

// CircuitState returns the breaker state, or StateClosed without a breaker.
func (p *Policy) CircuitState() State {
	if p == nil || p.breaker == nil {
		return StateClosed
	}
	return p.breaker.State()
}

func (p *Policy) IsCircuitOpen() bool {
	return p.CircuitState() == StateOpen
}

// CircuitBreaker returns the breaker, or nil when it is disabled.
func (p *Policy) CircuitBreaker() *CircuitBreaker {
	if p == nil {
		return nil
	}
	return p.breaker
}

// BulkheadStats returns the bulkhead counters, or the zero value when it is
// disabled.
func (p *Policy) BulkheadStats() BulkheadStats {
	if p == nil || p.bulkhead == nil {
		return BulkheadStats{}
	}
	return p.bulkhead.Stats()
}
