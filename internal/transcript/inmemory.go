package transcript

import (
	"context"
	"sync"
)

// InMemoryStore is a process-local archive for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record Record) error {
	fill(&record)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ClientID] = append(s.records[record.ClientID], record)
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, clientID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[clientID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	return append([]Record(nil), arr[len(arr)-limit:]...), nil
}

func (s *InMemoryStore) Close() error { return nil }
