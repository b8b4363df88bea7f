package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalletRecord // keyed by wallet id
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.WalletRecord),
	}
}

// Insert adds a new wallet. Returns ErrDuplicateKey if the owner already has
// an active wallet with the same address.
func (s *WalletStore) Insert(_ context.Context, w *domain.WalletRecord) error {
	if w == nil || w.ID == "" || w.OwnerID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.ID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.IsActive && existing.OwnerID == w.OwnerID && existing.Address == w.Address {
			return storage.ErrDuplicateKey
		}
	}

	cp := cloneWallet(w)
	s.data[w.ID] = cp
	return nil
}

// GetByID retrieves a wallet by its ID. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByID(_ context.Context, walletID string) (*domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[walletID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneWallet(w), nil
}

// GetByAddress retrieves an owner's active wallet by address.
func (s *WalletStore) GetByAddress(_ context.Context, ownerID, address string) (*domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.data {
		if w.IsActive && w.OwnerID == ownerID && w.Address == address {
			return cloneWallet(w), nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetDefault retrieves the owner's default active wallet.
func (s *WalletStore) GetDefault(_ context.Context, ownerID string) (*domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.data {
		if w.IsActive && w.OwnerID == ownerID && w.IsDefault {
			return cloneWallet(w), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListByOwner retrieves all active wallets for an owner, oldest first.
func (s *WalletStore) ListByOwner(_ context.Context, ownerID string) ([]*domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletRecord
	for _, w := range s.data {
		if w.IsActive && w.OwnerID == ownerID {
			result = append(result, cloneWallet(w))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// CountActive returns the number of active wallets for an owner.
func (s *WalletStore) CountActive(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, w := range s.data {
		if w.IsActive && w.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

// SetDefault clears every default flag for the owner and sets the given
// wallet as default.
func (s *WalletStore) SetDefault(_ context.Context, ownerID, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, exists := s.data[walletID]
	if !exists || !target.IsActive || target.OwnerID != ownerID {
		return storage.ErrNotFound
	}

	for _, w := range s.data {
		if w.OwnerID == ownerID {
			w.IsDefault = false
		}
	}
	target.IsDefault = true
	return nil
}

// SoftDelete marks a wallet inactive.
func (s *WalletStore) SoftDelete(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[walletID]
	if !exists {
		return storage.ErrNotFound
	}
	w.IsActive = false
	return nil
}

// UpdateBalance stores a freshly observed balance.
func (s *WalletStore) UpdateBalance(_ context.Context, walletID string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[walletID]
	if !exists {
		return storage.ErrNotFound
	}
	w.CachedBalance = balance
	return nil
}

// TouchLastUsed updates the wallet's last-used timestamp.
func (s *WalletStore) TouchLastUsed(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[walletID]
	if !exists {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	w.LastUsedAt = &now
	return nil
}

// cloneWallet deep-copies a record so callers cannot mutate stored state.
func cloneWallet(w *domain.WalletRecord) *domain.WalletRecord {
	cp := *w
	cp.EncryptedSecret = append([]byte(nil), w.EncryptedSecret...)
	cp.IV = append([]byte(nil), w.IV...)
	if w.LastUsedAt != nil {
		t := *w.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}

var _ storage.WalletStore = (*WalletStore)(nil)
