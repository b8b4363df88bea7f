package ledger

import (
	"context"
	"errors"
	"log"
	"math"
	"testing"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage/memory"
)

type fakePriceSource struct {
	price float64
	err   error
	calls int
}

func (f *fakePriceSource) UsdPrice(_ context.Context, _ string) (float64, error) {
	f.calls++
	return f.price, f.err
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *log.Logger {
	return log.New(discard{}, "", 0)
}

func testEntry() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:        "entry-1",
		OwnerID:   "owner1",
		WalletID:  "wallet-1",
		Signature: "sig-1",
		Kind:      domain.TradeKindBuy,
		Status:    domain.LedgerStatusSubmitted,
		AssetIn:   "So11111111111111111111111111111111111111112",
		AssetOut:  "mintB",
		AmountIn:  10,
		AmountOut: 123.45,
		TaxAmount: 0.087,
		NetAmount: 9.913,
		CreatedAt: time.Now().UTC(),
	}
}

func TestRecorder_Record_FullInsert(t *testing.T) {
	store := memory.NewLedgerStore()
	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if got := len(store.Entries()); got != 1 {
		t.Errorf("full entries = %d, want 1", got)
	}
	if got := len(store.FallbackRows()); got != 0 {
		t.Errorf("fallback rows = %d, want 0", got)
	}
}

func TestRecorder_Record_FallbackOnInsertFailure(t *testing.T) {
	store := memory.NewLedgerStore()
	store.FailFullInsert = true

	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("Record should degrade, not fail: %v", err)
	}

	if got := len(store.Entries()); got != 0 {
		t.Errorf("full entries = %d, want 0", got)
	}

	rows := store.FallbackRows()
	if len(rows) != 1 {
		t.Fatalf("fallback rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.ID != "entry-1" || row.OwnerID != "owner1" || row.AmountIn != 10 {
		t.Errorf("fallback row lost core fields: %+v", row)
	}
	if row.Kind != domain.TradeKindBuy || row.Status != domain.LedgerStatusSubmitted {
		t.Errorf("fallback row lost kind/status: %+v", row)
	}
}

func TestRecorder_Record_UsdEnrichment(t *testing.T) {
	store := memory.NewLedgerStore()
	prices := &fakePriceSource{price: 150.5}

	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Prices:  prices,
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0].ValueUsdEstimate; math.Abs(got-1505.0) > 1e-9 {
		t.Errorf("ValueUsdEstimate = %v, want 1505.0", got)
	}
}

func TestRecorder_Record_EnrichmentFailureDefaultsToZero(t *testing.T) {
	store := memory.NewLedgerStore()
	prices := &fakePriceSource{err: errors.New("price api down")}

	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Prices:  prices,
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("price failure must not block recording: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].ValueUsdEstimate != 0 {
		t.Errorf("ValueUsdEstimate = %v, want 0", entries[0].ValueUsdEstimate)
	}
}

func TestRecorder_Record_MirrorsToEventStore(t *testing.T) {
	store := memory.NewLedgerStore()
	events := memory.NewTradeEventStore()

	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Events:  events,
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if got := len(events.Events()); got != 1 {
		t.Errorf("mirrored events = %d, want 1", got)
	}
}

func TestRecorder_Settle_UpdatesTerminalStatus(t *testing.T) {
	store := memory.NewLedgerStore()
	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	r.Settle(context.Background(), "entry-1", domain.LedgerStatusConfirmed)

	entries := store.Entries()
	if len(entries) != 1 || entries[0].Status != domain.LedgerStatusConfirmed {
		t.Fatalf("entries = %+v, want one confirmed row", entries)
	}

	// Unknown id: best-effort, no panic, no propagation.
	r.Settle(context.Background(), "no-such-entry", domain.LedgerStatusFailed)
}

func TestRecorder_Settle_ReachesFallbackRow(t *testing.T) {
	store := memory.NewLedgerStore()
	store.FailFullInsert = true

	r := NewRecorder(RecorderConfig{
		Store:   store,
		Wallets: memory.NewWalletStore(),
		Logger:  quietLogger(),
	})

	if err := r.Record(context.Background(), testEntry()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	r.Settle(context.Background(), "entry-1", domain.LedgerStatusFailed)

	rows := store.FallbackRows()
	if len(rows) != 1 || rows[0].Status != domain.LedgerStatusFailed {
		t.Fatalf("fallback rows = %+v, want one failed row", rows)
	}
}

func TestRecorder_Touch_FailureSwallowed(t *testing.T) {
	r := NewRecorder(RecorderConfig{
		Store:   memory.NewLedgerStore(),
		Wallets: memory.NewWalletStore(),
		Logger:  quietLogger(),
	})

	// Unknown wallet id: the store returns ErrNotFound, Touch must not panic
	// or propagate.
	r.Touch(context.Background(), "no-such-wallet")
}
