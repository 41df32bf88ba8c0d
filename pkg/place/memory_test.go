package place

import (
	"context"
	"testing"
)

func TestMemoryStore_GetBeforeSet(t *testing.T) {
	s := NewMemoryStore()

	p, ok, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || p != "" {
		t.Errorf("Get = (%q, %v), want empty miss", p, ok)
	}
}

func TestMemoryStore_SetThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "u1", "Toshkent"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p, ok, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || p != "Toshkent" {
		t.Errorf("Get = (%q, %v), want (Toshkent, true)", p, ok)
	}

	// Overwrite is allowed.
	if err := s.Set(ctx, "u1", "Sirdaryo"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p, _, _ = s.Get(ctx, "u1")
	if p != "Sirdaryo" {
		t.Errorf("Get after overwrite = %q, want Sirdaryo", p)
	}
}

func TestMemoryStore_UsersAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "u1", "Toshkent")
	if _, ok, _ := s.Get(ctx, "u2"); ok {
		t.Error("u2 sees u1's place")
	}
}
