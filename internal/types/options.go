package types

import "time"

// Option is a functional option for a single cache operation.
type Option func(*OpOptions)

// OpOptions holds per-call settings.
type OpOptions struct {
	// TTL overrides the default ttl when HasTTL is set. Zero never expires.
	TTL    time.Duration
	HasTTL bool
}

// ApplyOptions applies functional options to create OpOptions.
func ApplyOptions(opts ...Option) *OpOptions {
	options := &OpOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func WithTTL(ttl time.Duration) Option {
	return func(o *OpOptions) {
		o.TTL = ttl
		o.HasTTL = true
	}
}

// WithoutExpiry stores the value with no deadline regardless of defaults.
func WithoutExpiry() Option {
	return WithTTL(0)
}
