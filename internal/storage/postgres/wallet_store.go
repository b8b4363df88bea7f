package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `
	id, owner_id, address, encrypted_secret, iv, secret_encoding,
	label, is_default, is_active, cached_balance, created_at, last_used_at
`

// Insert adds a new wallet. Returns ErrDuplicateKey if the owner already has
// an active wallet with the same address.
func (s *WalletStore) Insert(ctx context.Context, w *domain.WalletRecord) error {
	query := `
		INSERT INTO wallets (
			id, owner_id, address, encrypted_secret, iv, secret_encoding,
			label, is_default, is_active, cached_balance, created_at, last_used_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.OwnerID, w.Address, w.EncryptedSecret, w.IV, w.SecretEncoding,
		w.Label, w.IsDefault, w.IsActive, w.CachedBalance, w.CreatedAt, w.LastUsedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID retrieves a wallet by its ID. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByID(ctx context.Context, walletID string) (*domain.WalletRecord, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, walletID)
	w, err := scanWallet(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByAddress retrieves an owner's active wallet by address.
func (s *WalletStore) GetByAddress(ctx context.Context, ownerID, address string) (*domain.WalletRecord, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE owner_id = $1 AND address = $2 AND is_active
	`

	row := s.pool.QueryRow(ctx, query, ownerID, address)
	w, err := scanWallet(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by address: %w", err)
	}
	return w, nil
}

// GetDefault retrieves the owner's default active wallet.
func (s *WalletStore) GetDefault(ctx context.Context, ownerID string) (*domain.WalletRecord, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE owner_id = $1 AND is_default AND is_active
	`

	row := s.pool.QueryRow(ctx, query, ownerID)
	w, err := scanWallet(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get default wallet: %w", err)
	}
	return w, nil
}

// ListByOwner retrieves all active wallets for an owner, oldest first.
func (s *WalletStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.WalletRecord, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE owner_id = $1 AND is_active
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets by owner: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.WalletRecord
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}

	return wallets, nil
}

// CountActive returns the number of active wallets for an owner.
func (s *WalletStore) CountActive(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM wallets WHERE owner_id = $1 AND is_active`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active wallets: %w", err)
	}
	return count, nil
}

// SetDefault clears every default flag for the owner and sets the given
// wallet as default, in one transaction.
func (s *WalletStore) SetDefault(ctx context.Context, ownerID, walletID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The clear must run before the set: the partial unique index on
	// (owner_id) WHERE is_default AND is_active is enforced per statement,
	// so flagging a second default first would raise 23505. A missing
	// target rolls the clear back with the transaction.
	_, err = tx.Exec(ctx,
		`UPDATE wallets SET is_default = FALSE
		 WHERE owner_id = $1 AND is_default`, ownerID)
	if err != nil {
		return fmt.Errorf("clear default flags: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET is_default = TRUE
		 WHERE id = $1 AND owner_id = $2 AND is_active`, walletID, ownerID)
	if err != nil {
		return fmt.Errorf("set default wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SoftDelete marks a wallet inactive.
func (s *WalletStore) SoftDelete(ctx context.Context, walletID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET is_active = FALSE, is_default = FALSE WHERE id = $1`, walletID)
	if err != nil {
		return fmt.Errorf("soft delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateBalance stores a freshly observed balance.
func (s *WalletStore) UpdateBalance(ctx context.Context, walletID string, balance float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET cached_balance = $2 WHERE id = $1`, walletID, balance)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TouchLastUsed updates the wallet's last-used timestamp.
func (s *WalletStore) TouchLastUsed(ctx context.Context, walletID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET last_used_at = $2 WHERE id = $1`, walletID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanWallet scans a single row into a WalletRecord.
func scanWallet(row pgx.Row) (*domain.WalletRecord, error) {
	var w domain.WalletRecord

	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Address, &w.EncryptedSecret, &w.IV, &w.SecretEncoding,
		&w.Label, &w.IsDefault, &w.IsActive, &w.CachedBalance, &w.CreatedAt, &w.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	return &w, nil
}
