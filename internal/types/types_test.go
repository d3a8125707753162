package types

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestEnvelopeExpired(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("nil expires never expires", func(t *testing.T) {
		env := Envelope[string]{Value: "v"}
		if env.Expired(now.Add(100 * 365 * 24 * time.Hour)) {
			t.Error("Expired() = true, want false")
		}
		if _, ok := env.Remaining(now); ok {
			t.Error("Remaining() reported a deadline for a non-expiring envelope")
		}
	})

	t.Run("past deadline is expired", func(t *testing.T) {
		env := Envelope[string]{Value: "v", Expires: ExpiresAt(now, 100*time.Millisecond)}
		if env.Expired(now.Add(50 * time.Millisecond)) {
			t.Error("Expired() = true before deadline")
		}
		if !env.Expired(now.Add(150 * time.Millisecond)) {
			t.Error("Expired() = false after deadline")
		}
		left, ok := env.Remaining(now.Add(40 * time.Millisecond))
		if !ok || left != 60*time.Millisecond {
			t.Errorf("Remaining() = %v, %v, want 60ms, true", left, ok)
		}
	})
}

func TestExpiresAt(t *testing.T) {
	now := time.UnixMilli(1000)
	if ExpiresAt(now, 0) != nil {
		t.Error("ExpiresAt(0) should be nil")
	}
	if ExpiresAt(now, -time.Second) != nil {
		t.Error("ExpiresAt(negative) should be nil")
	}
	got := ExpiresAt(now, time.Second)
	if got == nil || *got != 2000 {
		t.Errorf("ExpiresAt(1s) = %v, want 2000", got)
	}
}

func TestApplyOptions(t *testing.T) {
	o := ApplyOptions()
	if o.HasTTL {
		t.Error("HasTTL should be false without options")
	}

	o = ApplyOptions(WithTTL(time.Minute), nil)
	if !o.HasTTL || o.TTL != time.Minute {
		t.Errorf("WithTTL: got %+v", o)
	}

	o = ApplyOptions(WithTTL(time.Minute), WithoutExpiry())
	if !o.HasTTL || o.TTL != 0 {
		t.Errorf("WithoutExpiry should win: got %+v", o)
	}
}

type basicStore struct{}

func (basicStore) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, nil }
func (basicStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (basicStore) Delete(context.Context, string) (bool, error)             { return false, nil }
func (basicStore) Clear(context.Context) error                              { return nil }

type richStore struct{ basicStore }

func (richStore) Has(context.Context, string) (bool, error)              { return false, nil }
func (richStore) GetMany(context.Context, []string) ([][]byte, error)    { return nil, nil }
func (richStore) SetMany(context.Context, []RawEntry) ([]bool, error)    { return nil, nil }
func (richStore) DeleteMany(context.Context, []string) (bool, error)     { return false, nil }
func (richStore) HasMany(context.Context, []string) ([]bool, error)      { return nil, nil }
func (richStore) Disconnect(context.Context) error                       { return nil }
func (richStore) Ping(context.Context) error                             { return nil }
func (richStore) Namespace() string                                      { return "" }
func (richStore) SetNamespace(string) error                              { return nil }
func (richStore) Iterator(context.Context, string) (iter.Seq2[string, []byte], error) {
	return nil, nil
}

func TestDetectCapabilities(t *testing.T) {
	if caps := DetectCapabilities(nil); caps != (Capabilities{}) {
		t.Errorf("nil store capabilities = %+v", caps)
	}

	if caps := DetectCapabilities(basicStore{}); caps != (Capabilities{}) {
		t.Errorf("basic store capabilities = %+v, want none", caps)
	}

	want := Capabilities{
		Has: true, GetMany: true, SetMany: true, DeleteMany: true, HasMany: true,
		Iterator: true, Disconnect: true, Ping: true, Namespace: true,
	}
	if caps := DetectCapabilities(richStore{}); caps != want {
		t.Errorf("rich store capabilities = %+v, want %+v", caps, want)
	}
}

func TestStoreError(t *testing.T) {
	inner := errors.New("boom")

	withKey := NewStoreError("get", "user:1", "redis", inner)
	if got := withKey.Error(); got != "keyv get on redis [user:1]: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(withKey, inner) {
		t.Error("StoreError should unwrap to inner error")
	}

	noKey := NewStoreError("clear", "", "memory", inner)
	if got := noKey.Error(); got != "keyv clear on memory: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHookError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &HookError{Event: "preSet", Err: io.ErrShortWrite})
	if !IsHookError(err) {
		t.Error("IsHookError() = false, want true")
	}
	if !errors.Is(err, io.ErrShortWrite) {
		t.Error("HookError should unwrap")
	}
	if IsHookError(io.EOF) {
		t.Error("IsHookError(io.EOF) = true")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("WRONGTYPE"), false},
		{"sentinel", ErrConnection, true},
		{"eof", io.EOF, true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("x")}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Errorf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open", ErrCircuitOpen, false},
		{"bulkhead", ErrBulkheadFull, false},
		{"canceled", context.Canceled, false},
		{"invalid key", ErrInvalidKey, false},
		{"unserializable", ErrUnserializable, false},
		{"connection reset", syscall.ECONNRESET, true},
		{"command error", errors.New("ERR syntax"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSecretString(t *testing.T) {
	s := NewSecretString("hunter2")
	if s.String() != "[REDACTED]" || fmt.Sprintf("%v", s) != "[REDACTED]" {
		t.Errorf("secret leaked through formatting: %v", s)
	}
	data, err := s.MarshalJSON()
	if err != nil || string(data) != `"[REDACTED]"` {
		t.Errorf("MarshalJSON = %s, %v", data, err)
	}

	var parsed SecretString
	if err := parsed.UnmarshalText([]byte("pw")); err != nil || parsed.Value() != "pw" {
		t.Errorf("UnmarshalText = %q, %v", parsed.Value(), err)
	}
	if !NewSecretString("").IsEmpty() || NewSecretString("").String() != "" {
		t.Error("empty secret should print empty")
	}
}

func TestHealthStatusString(t *testing.T) {
	tests := map[HealthStatus]string{
		HealthStatusHealthy:   "healthy",
		HealthStatusDegraded:  "degraded",
		HealthStatusUnhealthy: "unhealthy",
		HealthStatus(42):      "unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("HealthStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}
