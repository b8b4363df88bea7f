// Package ledger records trade outcomes best-effort. The chain is the
// source of truth; a recording failure is logged and degraded, never
// surfaced as a trade failure.
package ledger

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/pricing"
	"solana-trade-engine/internal/storage"
)

// enrichTimeout bounds the best-effort USD price lookup per entry.
const enrichTimeout = 5 * time.Second

// RecorderConfig holds Recorder dependencies. Prices and Events are
// optional; recording works without either.
type RecorderConfig struct {
	Store   storage.LedgerStore
	Wallets storage.WalletStore
	Prices  pricing.Source          // optional USD enrichment
	Events  storage.TradeEventStore // optional analytics mirror
	Logger  *log.Logger
}

// Recorder writes ledger rows with a full-then-fallback insert strategy:
// the full-schema insert is attempted first, and on any failure the
// guaranteed-column fallback row is written instead so the trade is never
// lost to schema drift.
type Recorder struct {
	store   storage.LedgerStore
	wallets storage.WalletStore
	prices  pricing.Source
	events  storage.TradeEventStore
	logger  *log.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[ledger] ", log.LstdFlags)
	}
	return &Recorder{
		store:   cfg.Store,
		wallets: cfg.Wallets,
		prices:  cfg.Prices,
		events:  cfg.Events,
		logger:  cfg.Logger,
	}
}

// Record persists a ledger entry best-effort. USD enrichment is attempted
// and defaulted to zero on failure. The returned error is informational;
// callers on the trade path ignore it by contract.
func (r *Recorder) Record(ctx context.Context, e *domain.LedgerEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.enrich(ctx, e)

	err := r.store.Insert(ctx, e)
	if err != nil {
		r.logger.Printf("full ledger insert failed, writing fallback row: %v", err)
		if fbErr := r.store.InsertFallback(ctx, e.Fallback()); fbErr != nil {
			observability.RecordLedgerWrite("failed")
			r.logger.Printf("fallback ledger insert failed for %s: %v", e.ID, fbErr)
			return domain.ErrPersistence
		}
		observability.RecordLedgerWrite("fallback")
	} else {
		observability.RecordLedgerWrite("full")
	}

	r.mirror(e)
	return nil
}

// Settle moves an entry to its terminal status once the chain outcome is
// known. Best-effort like Record; a row written through the fallback path
// is settled the same way.
func (r *Recorder) Settle(ctx context.Context, id, status string) {
	if err := r.store.UpdateStatus(ctx, id, status); err != nil {
		r.logger.Printf("settle ledger entry %s to %s: %v", id, status, err)
	}
}

// Touch updates the wallet's last-used timestamp. Failure is swallowed
// independently of the ledger write.
func (r *Recorder) Touch(ctx context.Context, walletID string) {
	if err := r.wallets.TouchLastUsed(ctx, walletID); err != nil {
		r.logger.Printf("touch wallet %s: %v", walletID, err)
	}
}

// ListByOwner returns an owner's most recent entries, newest first.
func (r *Recorder) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LedgerEntry, error) {
	return r.store.ListByOwner(ctx, ownerID, limit)
}

// enrich fills ValueUsdEstimate from the price source. Decimal arithmetic
// avoids float drift on the price * amount product; the stored estimate is
// informational and defaults to zero when the source is unavailable.
func (r *Recorder) enrich(ctx context.Context, e *domain.LedgerEntry) {
	if r.prices == nil || e.ValueUsdEstimate != 0 || e.AmountIn <= 0 {
		return
	}

	enrichCtx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	price, err := r.prices.UsdPrice(enrichCtx, e.AssetIn)
	if err != nil {
		r.logger.Printf("usd enrichment for %s: %v", e.AssetIn, err)
		return
	}
	if price <= 0 {
		return
	}

	value := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(e.AmountIn))
	e.ValueUsdEstimate, _ = value.Round(6).Float64()
}

// mirror appends the entry to the analytics store, best-effort. The mirror
// gets its own short deadline so an unreachable warehouse cannot hold the
// trade path.
func (r *Recorder) mirror(e *domain.LedgerEntry) {
	if r.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()

	if err := r.events.Insert(ctx, e); err != nil {
		r.logger.Printf("mirror trade event %s: %v", e.ID, err)
	}
}
