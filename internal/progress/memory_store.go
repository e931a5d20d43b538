package progress

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory progress store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*UserProgress
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*UserProgress)}
}

func (s *MemoryStore) Get(_ context.Context, address string) (*UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[strings.ToLower(address)]
	if !ok {
		return nil, ErrProgressNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, p *UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[strings.ToLower(p.Address)] = p.Clone()
	return nil
}
