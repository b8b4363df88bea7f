package domain

import "time"

// Ledger entry status values.
const (
	LedgerStatusSubmitted = "submitted"
	LedgerStatusConfirmed = "confirmed"
	LedgerStatusFailed    = "failed"
)

// LedgerEntry is the full-schema append-only trade row.
type LedgerEntry struct {
	ID               string // uuid
	OwnerID          string
	WalletID         string
	Signature        string
	Kind             TradeKind
	Status           string
	AssetIn          string
	AssetOut         string
	AmountIn         float64
	AmountOut        float64
	TaxAmount        float64
	NetAmount        float64
	FeeLamports      uint64
	ValueUsdEstimate float64
	PriceImpact      float64
	CreatedAt        time.Time
}

// LedgerFallbackRow is the reduced-schema row written when the full insert
// fails. It carries only the columns guaranteed to exist across schema
// versions so recording a trade can never be blocked by an evolving table.
type LedgerFallbackRow struct {
	ID        string
	OwnerID   string
	WalletID  string
	Signature string
	Kind      TradeKind
	Status    string
	AssetIn   string
	AmountIn  float64
	AmountOut float64
	CreatedAt time.Time
}

// Fallback maps a full entry to the reduced-schema row.
func (e *LedgerEntry) Fallback() *LedgerFallbackRow {
	return &LedgerFallbackRow{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		WalletID:  e.WalletID,
		Signature: e.Signature,
		Kind:      e.Kind,
		Status:    e.Status,
		AssetIn:   e.AssetIn,
		AmountIn:  e.AmountIn,
		AmountOut: e.AmountOut,
		CreatedAt: e.CreatedAt,
	}
}
