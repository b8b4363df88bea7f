package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// FailFullInsert lets tests force the degraded fallback path.
type LedgerStore struct {
	mu       sync.RWMutex
	entries  []*domain.LedgerEntry
	fallback []*domain.LedgerFallbackRow

	// FailFullInsert makes Insert return an error, simulating a schema
	// mismatch on the full-row insert.
	FailFullInsert bool
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

// Insert writes a full-schema ledger row.
func (s *LedgerStore) Insert(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailFullInsert {
		return storage.ErrInvalidInput
	}

	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

// InsertFallback writes the reduced-schema row.
func (s *LedgerStore) InsertFallback(_ context.Context, r *domain.LedgerFallbackRow) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.fallback = append(s.fallback, &cp)
	return nil
}

// UpdateStatus sets the terminal status of a row, wherever it landed.
func (s *LedgerStore) UpdateStatus(_ context.Context, id, status string) error {
	if id == "" || status == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			e.Status = status
			return nil
		}
	}
	for _, r := range s.fallback {
		if r.ID == id {
			r.Status = status
			return nil
		}
	}
	return storage.ErrNotFound
}

// ListByOwner retrieves the most recent entries for an owner, newest first.
func (s *LedgerStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEntry
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Entries returns a snapshot of all full rows (test helper).
func (s *LedgerStore) Entries() []*domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.LedgerEntry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

// FallbackRows returns a snapshot of all reduced rows (test helper).
func (s *LedgerStore) FallbackRows() []*domain.LedgerFallbackRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.LedgerFallbackRow, len(s.fallback))
	for i, r := range s.fallback {
		cp := *r
		out[i] = &cp
	}
	return out
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
