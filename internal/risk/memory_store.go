package risk

import (
	"context"
	"math/big"
	"strings"
	"sync"
)

// MemoryStore keeps assessments in memory, grouped by transaction hash.
type MemoryStore struct {
	mu   sync.RWMutex
	byTx map[string][]*Assessment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory risk assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byTx: make(map[string][]*Assessment)}
}

func (s *MemoryStore) Record(_ context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(a.TxHash)
	s.byTx[key] = append(s.byTx[key], clone(a))
	return nil
}

// ListByTx returns the most recent assessments first.
func (s *MemoryStore) ListByTx(_ context.Context, txHash string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byTx[strings.ToLower(txHash)]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*Assessment, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, clone(all[i]))
	}
	return out, nil
}

func clone(a *Assessment) *Assessment {
	c := *a
	if a.Facts != nil {
		f := *a.Facts
		if f.GasPriceWei != nil {
			f.GasPriceWei = new(big.Int).Set(f.GasPriceWei)
		}
		c.Facts = &f
	}
	return &c
}
