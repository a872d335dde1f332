package alerts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory alert store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]*SecurityAlert
}

// NewMemoryStore creates an empty in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]*SecurityAlert)}
}

func (s *MemoryStore) Create(_ context.Context, a *SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	// Newest first, matching the postgres store's ordering.
	s.byUser[a.UserID] = append([]*SecurityAlert{&cp}, s.byUser[a.UserID]...)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.byUser[userID]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}
	out := make([]*SecurityAlert, limit)
	for i := 0; i < limit; i++ {
		cp := *stored[i]
		out[i] = &cp
	}
	return out, nil
}
