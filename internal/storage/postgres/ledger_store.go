package postgres

import (
	"context"
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Insert writes a full-schema ledger row.
func (s *LedgerStore) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO trade_ledger (
			id, owner_id, wallet_id, signature, kind, status,
			asset_in, asset_out, amount_in, amount_out,
			tax_amount, net_amount, fee_lamports,
			value_usd_estimate, price_impact, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.OwnerID, e.WalletID, e.Signature, string(e.Kind), e.Status,
		e.AssetIn, e.AssetOut, e.AmountIn, e.AmountOut,
		e.TaxAmount, e.NetAmount, int64(e.FeeLamports),
		e.ValueUsdEstimate, e.PriceImpact, e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isSchemaError(err) {
			return fmt.Errorf("insert ledger entry (schema drift): %w", err)
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// InsertFallback writes the reduced-schema row containing only columns
// guaranteed to exist across schema versions.
func (s *LedgerStore) InsertFallback(ctx context.Context, r *domain.LedgerFallbackRow) error {
	query := `
		INSERT INTO trade_ledger (
			id, owner_id, wallet_id, signature, kind, status,
			asset_in, amount_in, amount_out, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.OwnerID, r.WalletID, r.Signature, string(r.Kind), r.Status,
		r.AssetIn, r.AmountIn, r.AmountOut, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fallback ledger entry: %w", err)
	}
	return nil
}

// UpdateStatus sets the terminal status of a row once the chain outcome is
// known. Full and fallback rows share the table, so both are covered.
func (s *LedgerStore) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trade_ledger SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update ledger status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByOwner retrieves the most recent entries for an owner, newest first.
func (s *LedgerStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			id, owner_id, wallet_id, signature, kind, status,
			asset_in, COALESCE(asset_out, ''), amount_in, amount_out,
			tax_amount, net_amount, fee_lamports,
			value_usd_estimate, price_impact, created_at
		FROM trade_ledger
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger by owner: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var kind string
		var fee int64

		err := rows.Scan(
			&e.ID, &e.OwnerID, &e.WalletID, &e.Signature, &kind, &e.Status,
			&e.AssetIn, &e.AssetOut, &e.AmountIn, &e.AmountOut,
			&e.TaxAmount, &e.NetAmount, &fee,
			&e.ValueUsdEstimate, &e.PriceImpact, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		e.Kind = domain.TradeKind(kind)
		e.FeeLamports = uint64(fee)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}

	return entries, nil
}
