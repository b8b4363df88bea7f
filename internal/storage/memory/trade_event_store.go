package memory

import (
	"context"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu     sync.RWMutex
	events []*domain.LedgerEntry
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{}
}

// Insert appends a trade event row.
func (s *TradeEventStore) Insert(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

// Events returns a snapshot of all rows (test helper).
func (s *TradeEventStore) Events() []*domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.LedgerEntry, len(s.events))
	for i, e := range s.events {
		cp := *e
		out[i] = &cp
	}
	return out
}

var _ storage.TradeEventStore = (*TradeEventStore)(nil)
