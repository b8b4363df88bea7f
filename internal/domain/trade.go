package domain

// TradeKind identifies the operation recorded for a trade attempt.
type TradeKind string

const (
	TradeKindBuy      TradeKind = "buy"
	TradeKindSell     TradeKind = "sell"
	TradeKindTransfer TradeKind = "transfer"
)

// PriorityLevel selects the prioritization fee attached to a swap.
type PriorityLevel string

const (
	PriorityLow    PriorityLevel = "low"
	PriorityMedium PriorityLevel = "medium"
	PriorityHigh   PriorityLevel = "high"
	PriorityTurbo  PriorityLevel = "turbo"
)

// PriorityFeeLamports maps a priority level to the prioritization fee in
// lamports attached to the swap build request.
func PriorityFeeLamports(p PriorityLevel) uint64 {
	switch p {
	case PriorityLow:
		return 10_000
	case PriorityHigh:
		return 500_000
	case PriorityTurbo:
		return 2_000_000
	default:
		return 100_000
	}
}

// TradeRequest is the immutable input to a single trade attempt.
type TradeRequest struct {
	OwnerID       string
	WalletAddress string  // empty selects the owner's default wallet
	AssetIn       string  // input mint
	AssetOut      string  // output mint; recipient address for transfers
	Amount        float64 // UI units of AssetIn
	AmountPercent float64 // sell variant: percentage of fresh balance, overrides Amount
	SlippageBps   int
	Priority      PriorityLevel
	RelayTip      uint64 // lamports; zero disables protected submission
	SkipTax       bool
}

// TradeResult is produced once per attempt and never mutated after return.
// A broadcast transaction is always reported with its signature even when
// confirmation timed out; ConfirmTimedOut carries the warning.
type TradeResult struct {
	Success         bool
	Signature       string
	Error           string
	AmountIn        float64
	AmountOut       float64
	TaxAmount       float64
	NetAmount       float64
	PriceImpact     float64
	FeeLamports     uint64
	ConfirmTimedOut bool
}
