package keyv

import (
	"time"

	"github.com/LavishGent/keyv/internal/config"
	"github.com/LavishGent/keyv/internal/events"
	"github.com/LavishGent/keyv/internal/hooks"
	"github.com/LavishGent/keyv/internal/keyv"
	"github.com/LavishGent/keyv/internal/metrics"
	"github.com/LavishGent/keyv/internal/stats"
	"github.com/LavishGent/keyv/internal/tiered"
	"github.com/LavishGent/keyv/internal/types"
)

type (
	// Keyv stores values of type V in a pluggable backend.
	Keyv[V any] = keyv.Keyv[V]
	// Tiered composes a local and a remote Keyv.
	Tiered[V any] = tiered.Tiered[V]
	// TieredOptions configure a Tiered cache.
	TieredOptions[V any] = tiered.Options[V]
	// Validator decides whether a local tier value may be served.
	Validator[V any] = tiered.Validator[V]

	// Envelope is a stored value with its optional deadline.
	Envelope[V any] = types.Envelope[V]
	// Entry is one item of a batch set.
	Entry[V any] = types.Entry[V]

	SetPayload[V any]     = keyv.SetPayload[V]
	GetPayload[V any]     = keyv.GetPayload[V]
	GetManyPayload[V any] = keyv.GetManyPayload[V]
	DeletePayload         = keyv.DeletePayload

	// Store is the contract every backend implements.
	Store = types.Store
	// Capabilities records which optional operations a store implements.
	Capabilities = types.Capabilities
	// Serializer encodes values and envelopes.
	Serializer = types.Serializer
	// CompressionAdapter compresses stored values.
	CompressionAdapter = types.CompressionAdapter
	// Logger is the minimal logging interface accepted by WithLoggerAdapter.
	Logger = types.Logger
	// Publisher receives operation timings and stats snapshots.
	Publisher = metrics.Publisher
	// StatsSnapshot is a point-in-time copy of the counters.
	StatsSnapshot = stats.Snapshot

	HookEvent   = hooks.Event
	HookHandler = hooks.Handler
	Listener    = events.Listener

	// Configuration holds every configurable section.
	Configuration = config.Config
)

// Hook events.
const (
	PreSet      = hooks.PreSet
	PostSet     = hooks.PostSet
	PreGet      = hooks.PreGet
	PostGet     = hooks.PostGet
	PreGetMany  = hooks.PreGetMany
	PostGetMany = hooks.PostGetMany
	PreDelete   = hooks.PreDelete
	PostDelete  = hooks.PostDelete
)

// Event names.
const (
	EventError      = events.EventError
	EventClear      = events.EventClear
	EventDisconnect = events.EventDisconnect
)

// TTL returns a pointer for Entry.TTL.
func TTL(d time.Duration) *time.Duration {
	return types.TTL(d)
}
