package keyv

import (
	"github.com/LavishGent/keyv/internal/types"
)

type (
	// StoreError describes a failed store round trip.
	StoreError = types.StoreError
	// HookError wraps a failure raised inside a hook handler.
	HookError = types.HookError
)

var (
	// ErrClosed indicates the cache has been disconnected.
	ErrClosed = types.ErrClosed
	// ErrUnserializable indicates a value kind no serializer can encode.
	ErrUnserializable = types.ErrUnserializable
	// ErrSerializationFailed indicates encoding or decoding failed.
	ErrSerializationFailed = types.ErrSerializationFailed
	// ErrInvalidKey indicates that a cache key is invalid.
	ErrInvalidKey = types.ErrInvalidKey
	// ErrInvalidNamespace indicates a namespace containing the separator.
	ErrInvalidNamespace = types.ErrInvalidNamespace
	// ErrInvalidTTL indicates a negative ttl.
	ErrInvalidTTL = types.ErrInvalidTTL
	// ErrIteratorUnsupported indicates the store cannot enumerate its keys.
	ErrIteratorUnsupported = types.ErrIteratorUnsupported
	// ErrClusterIterator indicates iteration was requested on a Redis cluster.
	ErrClusterIterator = types.ErrClusterIterator
	ErrConnection      = types.ErrConnection
	ErrUnknownBackend  = types.ErrUnknownBackend
	// ErrCircuitOpen indicates that the circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrBulkheadFull indicates that the bulkhead is at capacity.
	ErrBulkheadFull = types.ErrBulkheadFull
	// ErrBulkheadTimeout indicates that the bulkhead acquisition timed out.
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
	// ErrShutdownTimeout indicates background work outlived the close timeout.
	ErrShutdownTimeout = types.ErrShutdownTimeout
)

// IsCircuitOpen returns true if the error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}

func IsConnectionError(err error) bool {
	return types.IsConnectionError(err)
}

func IsHookError(err error) bool {
	return types.IsHookError(err)
}

func IsInvalidKey(err error) bool {
	return types.IsInvalidKey(err)
}
