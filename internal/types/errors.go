package types

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	ErrClosed              = errors.New("keyv: store disconnected")
	ErrUnserializable      = errors.New("keyv: value cannot be serialized")
	ErrSerializationFailed = errors.New("keyv: serialization failed")
	ErrInvalidKey          = errors.New("keyv: invalid key")
	ErrInvalidNamespace    = errors.New("keyv: invalid namespace")
	ErrInvalidTTL          = errors.New("keyv: ttl must not be negative")
	ErrIteratorUnsupported = errors.New("keyv: store does not support iteration")
	ErrClusterIterator     = errors.New("keyv: iterator is not supported on redis cluster clients")
	ErrConnection          = errors.New("keyv: store connection failed")
	ErrUnknownBackend      = errors.New("keyv: unknown store backend")
	ErrCircuitOpen         = errors.New("keyv: circuit breaker open")
	ErrBulkheadFull        = errors.New("keyv: bulkhead at capacity")
	ErrBulkheadTimeout     = errors.New("keyv: bulkhead timeout")
	ErrShutdownTimeout     = errors.New("keyv: shutdown timeout waiting for background operations")
)

// StoreError describes a failed store round trip.
type StoreError struct {
	Op    string
	Key   string
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("keyv %s on %s [%s]: %v", e.Op, e.Store, e.Key, e.Err)
	}
	return fmt.Sprintf("keyv %s on %s: %v", e.Op, e.Store, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op, key, store string, err error) *StoreError {
	return &StoreError{
		Op:    op,
		Key:   key,
		Store: store,
		Err:   err,
	}
}

// HookError wraps a failure raised inside a hook handler.
type HookError struct {
	Event string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("keyv hook %s: %v", e.Event, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

func IsHookError(err error) bool {
	var hookErr *HookError
	return errors.As(err, &hookErr)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsConnectionError reports whether err means the backend could not be
// reached, as opposed to a command the backend rejected.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if IsCircuitOpen(err) {
		return false
	}

	if errors.Is(err, ErrBulkheadFull) || errors.Is(err, ErrBulkheadTimeout) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidNamespace) ||
		errors.Is(err, ErrUnserializable) ||
		errors.Is(err, ErrSerializationFailed) {
		return false
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	return IsConnectionError(err)
}
