package payments

import (
	"context"
	"sort"
	"sync"

	"github.com/wkarimi/nyumbapay/internal/pagination"
)

// MemoryStore is an in-memory transaction store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]*Transaction
	byReference map[string]string // reference -> id
}

// NewMemoryStore creates an empty in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*Transaction),
		byReference: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byReference[tx.Reference]; exists {
		return ErrReferenceExists
	}
	s.byID[tx.ID] = tx.Clone()
	s.byReference[tx.Reference] = tx.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) Load(_ context.Context, reference string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReference[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) CompareAndSwapStatus(_ context.Context, tx *Transaction, from State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[tx.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	if stored.State != from {
		return ErrStatusConflict
	}
	s.byID[tx.ID] = tx.Clone()
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int, after *pagination.Cursor) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Transaction
	for _, tx := range s.byID {
		if tx.UserID != userID {
			continue
		}
		if after != nil {
			// Newest-first paging: only rows strictly before the cursor.
			if tx.CreatedAt.After(after.CreatedAt) {
				continue
			}
			if tx.CreatedAt.Equal(after.CreatedAt) && tx.ID >= after.ID {
				continue
			}
		}
		result = append(result, tx.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
