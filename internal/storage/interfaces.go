package storage

import (
	"context"

	"solana-trade-engine/internal/domain"
)

// WalletStore provides access to wallets storage. Rows are soft-deleted
// (is_active=false), never physically removed.
type WalletStore interface {
	// Insert adds a new wallet. Returns ErrDuplicateKey if the owner already
	// has an active wallet with the same address.
	Insert(ctx context.Context, w *domain.WalletRecord) error

	// GetByID retrieves a wallet by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, walletID string) (*domain.WalletRecord, error)

	// GetByAddress retrieves an owner's active wallet by address.
	// Returns ErrNotFound if not exists or inactive.
	GetByAddress(ctx context.Context, ownerID, address string) (*domain.WalletRecord, error)

	// GetDefault retrieves the owner's default active wallet.
	// Returns ErrNotFound if the owner has none.
	GetDefault(ctx context.Context, ownerID string) (*domain.WalletRecord, error)

	// ListByOwner retrieves all active wallets for an owner, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.WalletRecord, error)

	// CountActive returns the number of active wallets for an owner.
	CountActive(ctx context.Context, ownerID string) (int, error)

	// SetDefault clears every default flag for the owner and sets the given
	// wallet as default, in one transaction. Returns ErrNotFound if the
	// wallet does not belong to the owner or is inactive.
	SetDefault(ctx context.Context, ownerID, walletID string) error

	// SoftDelete marks a wallet inactive. Returns ErrNotFound if not exists.
	SoftDelete(ctx context.Context, walletID string) error

	// UpdateBalance stores a freshly observed balance.
	UpdateBalance(ctx context.Context, walletID string, balance float64) error

	// TouchLastUsed updates the wallet's last-used timestamp.
	TouchLastUsed(ctx context.Context, walletID string) error
}

// LedgerStore provides access to the append-only trade ledger.
type LedgerStore interface {
	// Insert writes a full-schema ledger row.
	Insert(ctx context.Context, e *domain.LedgerEntry) error

	// InsertFallback writes the reduced-schema row used when the full
	// insert fails against an evolving schema.
	InsertFallback(ctx context.Context, r *domain.LedgerFallbackRow) error

	// UpdateStatus sets the terminal status of a row once the chain outcome
	// is known. Returns ErrNotFound if no row carries the ID.
	UpdateStatus(ctx context.Context, id, status string) error

	// ListByOwner retrieves the most recent entries for an owner,
	// newest first, up to limit.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LedgerEntry, error)
}

// TradeEventStore mirrors ledger entries into the analytics database.
// Writes are best-effort by contract.
type TradeEventStore interface {
	// Insert appends a trade event row.
	Insert(ctx context.Context, e *domain.LedgerEntry) error
}
