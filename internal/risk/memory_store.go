package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*Record // transactionID → records
}

// NewMemoryStore creates an in-memory assessment audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]*Record),
	}
}

func (s *MemoryStore) Record(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	r.Assessment.RiskFactors = append([]string(nil), rec.Assessment.RiskFactors...)
	s.records[rec.TransactionID] = append(s.records[rec.TransactionID], &r)
	return nil
}

func (s *MemoryStore) ListByTransaction(ctx context.Context, transactionID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[transactionID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Most recent first
	result := make([]*Record, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		r := *all[i]
		r.Assessment.RiskFactors = append([]string(nil), all[i].Assessment.RiskFactors...)
		result = append(result, &r)
	}
	return result, nil
}
