package clickhouse

import (
	"context"
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
// The table is an append-only analytics mirror of the Postgres ledger;
// MergeTree does not enforce uniqueness and duplicates are tolerated
// downstream by aggregation queries.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// Insert appends a trade event row.
func (s *TradeEventStore) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			id, owner_id, wallet_id, signature, kind, status,
			asset_in, asset_out, amount_in, amount_out,
			tax_amount, net_amount, fee_lamports,
			value_usd_estimate, price_impact, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.ID, e.OwnerID, e.WalletID, e.Signature, string(e.Kind), e.Status,
		e.AssetIn, e.AssetOut, e.AmountIn, e.AmountOut,
		e.TaxAmount, e.NetAmount, e.FeeLamports,
		e.ValueUsdEstimate, e.PriceImpact, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
