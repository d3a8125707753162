package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/LavishGent/keyv/internal/config"
)

// Retrier re-runs transient failures with exponential backoff.
type Retrier struct {
	logger *slog.Logger
	opts   []retry.Option
}

// NewRetrier creates a retrier from the given configuration.
func NewRetrier(cfg config.RetryConfig, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 50 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 2 * time.Second
	}

	delayType := retry.BackOffDelay
	if cfg.Jitter {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	r := &Retrier{logger: logger}
	r.opts = []retry.Option{
		retry.Attempts(uint(attempts)),
		retry.Delay(initial),
		retry.MaxDelay(maxBackoff),
		retry.MaxJitter(initial),
		retry.DelayType(delayType),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debug("Retrying operation", "attempt", n+1, "error", err)
		}),
	}
	return r
}

// Execute runs fn until it succeeds, returns a permanent error, the attempts
// run out, or ctx is done.
func (r *Retrier) Execute(ctx context.Context, fn func(context.Context) error) error {
	opts := append([]retry.Option{retry.Context(ctx)}, r.opts...)
	return retry.New(opts...).Do(func() error {
		return fn(ctx)
	})
}
