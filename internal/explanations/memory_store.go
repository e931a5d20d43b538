package explanations

import (
	"context"
	"strings"
	"sync"

	"github.com/mbd888/txbuddy/internal/pagination"
)

// MemoryStore keeps records in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory explanation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	c := *r
	s.mu.Lock()
	s.records = append(s.records, &c)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListByTx(_ context.Context, txHash string, f Filter) ([]*Record, error) {
	txHash = strings.ToLower(txHash)
	return s.newestFirst(f.Limit, func(r *Record) bool {
		return strings.EqualFold(r.TxHash, txHash) && (f.UserLevel == 0 || r.UserLevel == f.UserLevel)
	}), nil
}

func (s *MemoryStore) ListByAddress(_ context.Context, address string, limit int, before *pagination.Cursor) ([]*Record, error) {
	return s.newestFirst(limit, func(r *Record) bool {
		return strings.EqualFold(r.Address, address) && before.After(r.CreatedAt, r.ID)
	}), nil
}

func (s *MemoryStore) newestFirst(limit int, match func(*Record) bool) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Record{}
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if match(s.records[i]) {
			c := *s.records[i]
			out = append(out, &c)
		}
	}
	return out
}
