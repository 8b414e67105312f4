package flow

import (
	"context"
	"testing"

	"github.com/supportflow/supportflow/internal/models"
)

func noopAction() Action {
	return ActionFunc(func(ctx context.Context, vars map[string]string) (models.ActionResult, error) {
		return models.ActionResult{Success: true}, nil
	})
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("lookup", noopAction()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Has("lookup") {
		t.Error("expected Has to report registered action")
	}
	action, ok := r.Get("lookup")
	if !ok || action == nil {
		t.Fatal("expected Get to return registered action")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected Get to miss for unknown action")
	}
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", noopAction()); err == nil {
		t.Error("expected error for empty action name")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("lookup", noopAction()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("lookup", noopAction()); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(name, noopAction()); err != nil {
			t.Fatalf("registering %s: %v", name, err)
		}
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
