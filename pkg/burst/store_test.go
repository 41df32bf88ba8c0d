package burst

import (
	"testing"
	"time"

	"github.com/invoiceflow/invoiceflow/internal/model"
)

func labelAt(text string, ts time.Time) model.Event {
	return model.NewLabelEvent(text, ts)
}

func TestStore_AddReturnsIncreasingVersions(t *testing.T) {
	s := NewStore(12 * time.Second)

	v1 := s.Add("u1", labelAt("a", time.Now()))
	v2 := s.Add("u1", labelAt("b", time.Now()))
	v3 := s.Add("u1", labelAt("c", time.Now()))

	if !(v1 < v2 && v2 < v3) {
		t.Errorf("versions not strictly increasing: %d %d %d", v1, v2, v3)
	}
	if got := s.Version("u1"); got != v3 {
		t.Errorf("Version = %d, want %d", got, v3)
	}
}

func TestStore_VersionsAreIndependentPerUser(t *testing.T) {
	s := NewStore(12 * time.Second)

	s.Add("u1", labelAt("a", time.Now()))
	s.Add("u1", labelAt("b", time.Now()))
	v := s.Add("u2", labelAt("c", time.Now()))

	if v != 1 {
		t.Errorf("u2 first version = %d, want 1", v)
	}
}

func TestStore_ExpiredWindowIsReplaced(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := NewStore(12*time.Second, WithClock(func() time.Time { return clock() }))

	s.Add("u1", labelAt("old", now))
	if got := s.Len("u1"); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}

	// Advance past the TTL: the stale window is discarded, not merged.
	now = now.Add(13 * time.Second)
	vBefore := s.Version("u1")
	v := s.Add("u1", labelAt("new", now))

	if v != vBefore+1 {
		t.Errorf("version after reset = %d, want %d (monotone across resets)", v, vBefore+1)
	}
	items := s.TakeSnapshotAndClear("u1")
	if len(items) != 1 || items[0].Text != "new" {
		t.Errorf("snapshot after reset = %+v, want only the new event", items)
	}
}

func TestStore_TakeSnapshotAndClear(t *testing.T) {
	s := NewStore(12 * time.Second)

	s.Add("u1", labelAt("a", time.Now()))
	s.Add("u1", labelAt("b", time.Now()))

	items := s.TakeSnapshotAndClear("u1")
	if len(items) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(items))
	}
	if again := s.TakeSnapshotAndClear("u1"); again != nil {
		t.Errorf("second snapshot = %+v, want nil", again)
	}

	// Adding after a snapshot reuses the live window.
	s.Add("u1", labelAt("c", time.Now()))
	if got := s.Len("u1"); got != 1 {
		t.Errorf("Len after re-add = %d, want 1", got)
	}
}

func TestStore_ClearDiscardsWindow(t *testing.T) {
	s := NewStore(12 * time.Second)

	s.Add("u1", labelAt("a", time.Now()))
	s.Clear("u1")

	if items := s.TakeSnapshotAndClear("u1"); items != nil {
		t.Errorf("snapshot after Clear = %+v, want nil", items)
	}
}

func TestStore_InvalidateBumpsVersion(t *testing.T) {
	s := NewStore(12 * time.Second)

	v := s.Add("u1", labelAt("a", time.Now()))
	v2 := s.Invalidate("u1")
	if v2 != v+1 {
		t.Errorf("Invalidate = %d, want %d", v2, v+1)
	}
	if s.Version("u1") != v2 {
		t.Errorf("Version = %d, want %d", s.Version("u1"), v2)
	}
}
