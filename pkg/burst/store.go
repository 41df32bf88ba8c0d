// Package burst buffers per-user event bursts and debounces their flush.
//
// A burst is a run of events from one user separated by gaps shorter than
// the debounce interval. The store accumulates the burst; the scheduler
// arms a timer on every add and only the timer armed by the last add
// survives to flush the batch.
package burst

import (
	"sync"
	"time"

	"github.com/invoiceflow/invoiceflow/internal/model"
)

// Store holds one in-progress event window per user.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	windows map[string]*window

	// versions outlive window resets: a TTL reset must not rewind the
	// generation counter or a stale timer could pass the freshness check.
	versions map[string]uint64

	now func() time.Time
}

type window struct {
	items     []model.Event
	expiresAt time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store whose windows expire ttl after the last add.
func NewStore(ttl time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		ttl:      ttl,
		windows:  make(map[string]*window),
		versions: make(map[string]uint64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends an event to the user's window and returns the new version.
// An expired window is replaced wholesale: whatever it still held belonged
// to a flush that already fired or is about to, and is discarded.
func (s *Store) Add(user string, ev model.Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[user]
	if w == nil || w.expiresAt.Before(now) {
		w = &window{}
		s.windows[user] = w
	}

	w.items = append(w.items, ev)
	w.expiresAt = now.Add(s.ttl)

	s.versions[user]++
	return s.versions[user]
}

// Version returns the user's current version. A scheduled flush whose
// captured version no longer matches has been superseded.
func (s *Store) Version(user string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[user]
}

// Invalidate bumps the user's version without adding an event, marking
// every in-flight timer stale. Used by forced flushes.
func (s *Store) Invalidate(user string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[user]++
	return s.versions[user]
}

// TakeSnapshotAndClear atomically removes and returns the user's buffered
// events. The critical section is a pure swap; callers do heavy work on
// the returned slice outside the store lock.
func (s *Store) TakeSnapshotAndClear(user string) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[user]
	if w == nil || len(w.items) == 0 {
		return nil
	}
	items := w.items
	w.items = nil
	return items
}

// Clear discards the user's window without processing it (end-of-burst).
// A timer that later fires for this window finds nothing to flush.
func (s *Store) Clear(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, user)
}

// Len returns the number of buffered events for a user.
func (s *Store) Len(user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.windows[user]; w != nil {
		return len(w.items)
	}
	return 0
}
