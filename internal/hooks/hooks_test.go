package hooks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/LavishGent/keyv/internal/types"
)

type setPayload struct {
	Key   string
	Value string
}

func TestTriggerMutatesPayload(t *testing.T) {
	m := NewManager(nil)

	m.Add(PreSet, func(ctx context.Context, payload any) error {
		p := payload.(*setPayload)
		p.Key = "b"
		return nil
	})
	m.Add(PreSet, func(ctx context.Context, payload any) error {
		p := payload.(*setPayload)
		p.Value += "!"
		return nil
	})

	p := &setPayload{Key: "a", Value: "v"}
	m.Trigger(context.Background(), PreSet, p)

	if p.Key != "b" || p.Value != "v!" {
		t.Errorf("payload = %+v, want key b value v!", p)
	}
}

func TestTriggerReportsErrorsAndPanics(t *testing.T) {
	var reported []error
	m := NewManager(func(err error) { reported = append(reported, err) })

	boom := errors.New("boom")
	ran := false
	m.Add(PostGet, func(ctx context.Context, payload any) error { return boom })
	m.Add(PostGet, func(ctx context.Context, payload any) error { panic("bad hook") })
	m.Add(PostGet, func(ctx context.Context, payload any) error { ran = true; return nil })

	m.Trigger(context.Background(), PostGet, nil)

	if !ran {
		t.Error("handlers after a failing one should still run")
	}
	if len(reported) != 2 {
		t.Fatalf("reported %d errors, want 2", len(reported))
	}
	if !errors.Is(reported[0], boom) {
		t.Errorf("reported[0] = %v, want boom", reported[0])
	}
	var hookErr *types.HookError
	if !errors.As(reported[1], &hookErr) || hookErr.Event != "postGet" {
		t.Fatalf("reported[1] = %v, want HookError for postGet", reported[1])
	}
	if !strings.Contains(hookErr.Error(), "bad hook") {
		t.Errorf("panic message missing: %v", hookErr)
	}
}

func TestAddRemoveCount(t *testing.T) {
	m := NewManager(nil)

	id := m.Add(PreDelete, func(ctx context.Context, payload any) error { return nil })
	m.Add(PreDelete, func(ctx context.Context, payload any) error { return nil })
	if got := m.Count(PreDelete); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}

	m.Remove(PreDelete, id)
	if got := m.Count(PreDelete); got != 1 {
		t.Errorf("Count after Remove = %d, want 1", got)
	}

	m.Remove(PreDelete, HandlerID(9999))
	m.Clear()
	for _, e := range Events {
		if m.Count(e) != 0 {
			t.Errorf("Count(%s) after Clear = %d", e, m.Count(e))
		}
	}
}

func TestEventNames(t *testing.T) {
	want := "preSet,postSet,preGet,postGet,preGetMany,postGetMany,preDelete,postDelete"
	names := make([]string, len(Events))
	for i, e := range Events {
		names[i] = e.String()
	}
	if got := strings.Join(names, ","); got != want {
		t.Errorf("event names = %s", got)
	}
}
