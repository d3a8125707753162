// Package resilience provides fault tolerance patterns for remote store round
// trips.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/types"
)

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// CircuitBreaker trips after consecutive failures and rejects calls with
// types.ErrCircuitOpen until the open duration has passed.
type CircuitBreaker struct {
	cb            *gobreaker.CircuitBreaker[any]
	onStateChange func(from, to State)
}

// NewCircuitBreaker creates a breaker from the given configuration.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	openDuration := cfg.OpenDuration
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	halfOpen := cfg.HalfOpenMaxRequests
	if halfOpen <= 0 {
		halfOpen = 1
	}

	b := &CircuitBreaker{}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(halfOpen), //nolint:gosec // bounded by config validation
		Interval:    cfg.Interval,
		Timeout:     openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) //nolint:gosec // positive
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if b.onStateChange != nil {
				b.onStateChange(from, to)
			}
		},
	})
	return b
}

// isSuccessful counts only failures that say something about backend health.
// A rejected command or a cancelled caller does not trip the breaker.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !types.IsConnectionError(err)
}

// Execute runs fn unless the breaker is open.
func (b *CircuitBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", types.ErrCircuitOpen, b.cb.Name())
	}
	return err
}

func (b *CircuitBreaker) State() State {
	return b.cb.State()
}

func (b *CircuitBreaker) IsOpen() bool {
	return b.cb.State() == StateOpen
}

func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// SetOnStateChange registers fn for transitions. It must be called before the
// breaker is shared.
func (b *CircuitBreaker) SetOnStateChange(fn func(from, to State)) {
	b.onStateChange = fn
}
