package persist

import (
	"context"
	"sync"
)

// MemoryStore is a PositionStore for tests and database-less runs.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[string]Position)}
}

func (s *MemoryStore) Load(_ context.Context, charID string) (Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[charID]
	return pos, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, charID string, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[charID] = pos
	return nil
}
