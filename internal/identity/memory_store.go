package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory attempt store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string][]*VerificationAttempt // keyed by transaction ID
}

// NewMemoryStore creates an empty in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string][]*VerificationAttempt)}
}

func (s *MemoryStore) Create(_ context.Context, a *VerificationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.TransactionID] = append(s.attempts[a.TransactionID], &cp)
	return nil
}

func (s *MemoryStore) ListByTransaction(_ context.Context, transactionID string) ([]*VerificationAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.attempts[transactionID]
	out := make([]*VerificationAttempt, len(stored))
	for i, a := range stored {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) CountByTransaction(_ context.Context, transactionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts[transactionID]), nil
}
