package events

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestManagerOnEmitOff(t *testing.T) {
	m := NewManager(nil)

	var calls []string
	first := m.On("clear", func(args ...any) { calls = append(calls, "first") })
	m.On("clear", func(args ...any) { calls = append(calls, "second") })

	m.Emit("clear")
	if strings.Join(calls, ",") != "first,second" {
		t.Fatalf("calls = %v, want registration order", calls)
	}

	m.Off("clear", first)
	calls = nil
	m.Emit("clear")
	if strings.Join(calls, ",") != "second" {
		t.Errorf("calls after Off = %v", calls)
	}
	if got := m.ListenerCount("clear"); got != 1 {
		t.Errorf("ListenerCount = %d, want 1", got)
	}
}

func TestManagerOnce(t *testing.T) {
	m := NewManager(nil)

	count := 0
	m.Once("disconnect", func(args ...any) { count++ })
	m.Emit("disconnect")
	m.Emit("disconnect")

	if count != 1 {
		t.Errorf("once listener called %d times, want 1", count)
	}
	if m.ListenerCount("disconnect") != 0 {
		t.Error("once listener should be removed after firing")
	}
}

func TestManagerArgs(t *testing.T) {
	m := NewManager(nil)

	var got []any
	m.On("custom", func(args ...any) { got = args })
	m.Emit("custom", "a", 1)

	if len(got) != 2 || got[0] != "a" || got[1] != 1 {
		t.Errorf("args = %v", got)
	}
}

func TestManagerOnError(t *testing.T) {
	m := NewManager(nil)

	var received []error
	unsubscribe := m.OnError(func(err error) { received = append(received, err) })

	boom := errors.New("boom")
	m.EmitError(boom)
	m.EmitError(nil)
	m.Emit(EventError, "not an error")

	if len(received) != 2 {
		t.Fatalf("received %d errors, want 2", len(received))
	}
	if !errors.Is(received[0], boom) {
		t.Errorf("received[0] = %v", received[0])
	}
	if received[1].Error() != "not an error" {
		t.Errorf("received[1] = %v", received[1])
	}

	unsubscribe()
	m.EmitError(boom)
	if len(received) != 2 {
		t.Error("unsubscribe did not remove the listener")
	}
}

func TestManagerUnhandledErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(slog.New(slog.NewTextHandler(&buf, nil)))

	m.EmitError(errors.New("nobody listens"))

	if !strings.Contains(buf.String(), "nobody listens") {
		t.Errorf("expected unhandled error to be logged, got %q", buf.String())
	}
}

func TestManagerRecoversListenerPanic(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(slog.New(slog.NewTextHandler(&buf, nil)))

	after := false
	m.On("x", func(args ...any) { panic("listener bug") })
	m.On("x", func(args ...any) { after = true })

	m.Emit("x")

	if !after {
		t.Error("listeners after a panicking one should still run")
	}
	if !strings.Contains(buf.String(), "listener bug") {
		t.Errorf("panic should be logged, got %q", buf.String())
	}
}

func TestManagerRemoveAllListeners(t *testing.T) {
	m := NewManager(nil)
	m.On("a", func(args ...any) {})
	m.On("b", func(args ...any) {})

	m.RemoveAllListeners("a")
	if m.ListenerCount("a") != 0 || m.ListenerCount("b") != 1 {
		t.Error("RemoveAllListeners(a) removed the wrong events")
	}

	m.RemoveAllListeners()
	if m.ListenerCount("b") != 0 {
		t.Error("RemoveAllListeners() should clear everything")
	}
}

func TestManagerConcurrentUse(t *testing.T) {
	m := NewManager(nil)

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := m.On("tick", func(args ...any) {
				mu.Lock()
				total++
				mu.Unlock()
			})
			m.Emit("tick")
			m.Off("tick", id)
		}()
	}
	wg.Wait()

	if total == 0 {
		t.Error("expected at least one listener call")
	}
}
