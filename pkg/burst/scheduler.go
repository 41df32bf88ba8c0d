package burst

import (
	"sync"
	"time"
)

// FireFunc runs when a debounce timer elapses. version is the store
// version captured when the timer was armed; the callee compares it to
// the current version and treats a mismatch as a stale firing.
type FireFunc func(user string, version uint64)

// Scheduler arms one debounce timer per user. Re-arming stops the
// previous timer, so under rapid events at most the last timer fires;
// the version check catches the race where a stopped timer had already
// started running.
type Scheduler struct {
	mu       sync.Mutex
	debounce time.Duration
	timers   map[string]*time.Timer

	// armed is the highest version armed per user. Concurrent submitters
	// can reach OnEvent out of add order; without this check the
	// surviving timer could hold a superseded version, fail the
	// freshness check on fire, and leave the batch without any timer.
	armed map[string]uint64

	fire FireFunc
}

// NewScheduler creates a scheduler that invokes fire after debounce of
// quiet time per user.
func NewScheduler(debounce time.Duration, fire FireFunc) *Scheduler {
	return &Scheduler{
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		armed:    make(map[string]uint64),
		fire:     fire,
	}
}

// OnEvent (re)arms the user's debounce timer, capturing the version the
// triggering add returned. Versions older than the last armed one are
// ignored.
func (s *Scheduler) OnEvent(user string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version < s.armed[user] {
		return
	}
	s.armed[user] = version

	if t, ok := s.timers[user]; ok {
		t.Stop()
	}
	s.timers[user] = time.AfterFunc(s.debounce, func() {
		s.fire(user, version)
	})
}

// Cancel stops the user's pending timer, if any.
func (s *Scheduler) Cancel(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[user]; ok {
		t.Stop()
		delete(s.timers, user)
	}
}

// Stop cancels all pending timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for user, t := range s.timers {
		t.Stop()
		delete(s.timers, user)
	}
}
