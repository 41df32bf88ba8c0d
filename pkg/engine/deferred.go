package engine

import (
	"sync"

	"github.com/invoiceflow/invoiceflow/internal/model"
)

// awaitingStore holds matched pairs whose unloading place is not yet
// known, per user, in pairing order.
type awaitingStore struct {
	mu     sync.Mutex
	byUser map[string][]model.PendingPair
}

func newAwaitingStore() *awaitingStore {
	return &awaitingStore{byUser: make(map[string][]model.PendingPair)}
}

// Add appends a pair to the user's awaiting list.
func (a *awaitingStore) Add(user string, pair model.PendingPair) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byUser[user] = append(a.byUser[user], pair)
}

// Take removes and returns the user's awaiting list. Returns nil when
// nothing is awaiting, so resolution is a natural no-op.
func (a *awaitingStore) Take(user string) []model.PendingPair {
	a.mu.Lock()
	defer a.mu.Unlock()
	pairs := a.byUser[user]
	delete(a.byUser, user)
	return pairs
}

// Len returns the number of pairs awaiting for a user.
func (a *awaitingStore) Len(user string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byUser[user])
}

// Snapshot returns a copy of the user's awaiting list without clearing it.
func (a *awaitingStore) Snapshot(user string) []model.PendingPair {
	a.mu.Lock()
	defer a.mu.Unlock()
	pairs := a.byUser[user]
	out := make([]model.PendingPair, len(pairs))
	copy(out, pairs)
	return out
}
