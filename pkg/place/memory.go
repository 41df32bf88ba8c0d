package place

import (
	"context"
	"sync"
)

// MemoryStore keeps default places in memory. State is process-scoped;
// losing it on restart is acceptable because the place can always be set
// again with one admin call.
type MemoryStore struct {
	mu     sync.RWMutex
	places map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{places: make(map[string]string)}
}

// Get returns the user's default place.
func (s *MemoryStore) Get(_ context.Context, user string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.places[user]
	return p, ok, nil
}

// Set records the user's default place.
func (s *MemoryStore) Set(_ context.Context, user, place string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[user] = place
	return nil
}

// Name returns "memory".
func (s *MemoryStore) Name() string {
	return "memory"
}

// Close does nothing.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
