// Package engine executes trades as a single-attempt state machine:
// Quoting, Building, Signing, Submitting, Confirming, Settling. Failure is
// only reachable before broadcast; once a transaction is on the wire the
// chain is the source of truth and everything after is best-effort
// bookkeeping reported alongside success.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/aggregator"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/fee"
	"solana-trade-engine/internal/ledger"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/wallet"
)

// DefaultConfirmTimeout bounds the confirmation wait. Expiry downgrades the
// result to success-with-warning; the broadcast is never cancelled.
const DefaultConfirmTimeout = 60 * time.Second

// solDecimals is the decimal scale of native SOL amounts.
const solDecimals = 9

// Execution states, used for logging and error context.
const (
	stateQuoting    = "quoting"
	stateBuilding   = "building"
	stateSigning    = "signing"
	stateSubmitting = "submitting"
	stateConfirming = "confirming"
	stateSettling   = "settling"
)

// AggregatorClient is the consumed quote/swap surface.
type AggregatorClient interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*aggregator.Route, error)
	BuildSwap(ctx context.Context, route *aggregator.Route, signerPublicKey string, priorityFeeLamports uint64) (string, error)
}

// RelayClient is the consumed MEV-protected submission surface.
type RelayClient interface {
	SubmitBundle(ctx context.Context, txsBase64 []string, tipLamports uint64) (string, error)
}

// SignatureConfirmer waits for a signature to reach a commitment level.
type SignatureConfirmer interface {
	WaitForSignature(ctx context.Context, signature, commitment string) (*solana.SignatureNotification, error)
}

// TaxErrorSink receives failures of the detached post-confirmation tax
// transfer. The dispatch is intentional: the trade result has already been
// returned, so the error goes to a sink instead of a caller.
type TaxErrorSink func(ownerID, signature string, err error)

// ExecutorConfig holds Executor dependencies.
type ExecutorConfig struct {
	Wallets    *wallet.Manager
	Aggregator AggregatorClient
	Relay      RelayClient // nil disables the protected path
	RPC        solana.RPCClient
	Confirmer  SignatureConfirmer
	Fees       *fee.Splitter
	Ledger     *ledger.Recorder

	Commitment     string
	ConfirmTimeout time.Duration
	TaxErrors      TaxErrorSink
	Logger         *log.Logger
}

// Executor runs trade attempts. Each attempt is single-shot: no quote
// retries, no resubmission, no cross-request ordering between trades of
// the same wallet.
type Executor struct {
	wallets    *wallet.Manager
	aggregator AggregatorClient
	relay      RelayClient
	rpc        solana.RPCClient
	confirmer  SignatureConfirmer
	fees       *fee.Splitter
	ledger     *ledger.Recorder

	commitment     string
	confirmTimeout time.Duration
	taxErrors      TaxErrorSink
	logger         *log.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Wallets == nil || cfg.Aggregator == nil || cfg.RPC == nil || cfg.Confirmer == nil || cfg.Fees == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("wallets, aggregator, rpc, confirmer, fees and ledger are required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solana.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[engine] ", log.LstdFlags)
	}

	e := &Executor{
		wallets:        cfg.Wallets,
		aggregator:     cfg.Aggregator,
		relay:          cfg.Relay,
		rpc:            cfg.RPC,
		confirmer:      cfg.Confirmer,
		fees:           cfg.Fees,
		ledger:         cfg.Ledger,
		commitment:     cfg.Commitment,
		confirmTimeout: cfg.ConfirmTimeout,
		taxErrors:      cfg.TaxErrors,
		logger:         cfg.Logger,
	}
	if e.taxErrors == nil {
		e.taxErrors = func(ownerID, signature string, err error) {
			e.logger.Printf("tax transfer for owner %s trade %s: %v", ownerID, signature, err)
		}
	}
	return e, nil
}

// Buy swaps AssetIn (typically SOL) into AssetOut through the aggregator.
func (e *Executor) Buy(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	start := time.Now()
	res, err := e.swap(ctx, domain.TradeKindBuy, req)
	observability.RecordTrade(string(domain.TradeKindBuy), statusLabel(res), time.Since(start).Seconds())
	return res, err
}

// Sell swaps AssetIn (the held token) into AssetOut. When AmountPercent is
// set, the amount is derived from a fresh balance read at quote time so a
// stale cached balance cannot oversell.
func (e *Executor) Sell(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	start := time.Now()
	res, err := e.sell(ctx, req)
	observability.RecordTrade(string(domain.TradeKindSell), statusLabel(res), time.Since(start).Seconds())
	return res, err
}

func (e *Executor) sell(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	if req.AmountPercent > 0 {
		if req.AmountPercent > 100 {
			return failResult(fmt.Errorf("%w: sell percentage must be in (0, 100], got %v", domain.ErrValidation, req.AmountPercent))
		}
		record, err := e.resolveWallet(ctx, &req)
		if err != nil {
			return failResult(err)
		}
		balance, err := e.uiBalance(ctx, record.Address, req.AssetIn)
		if err != nil {
			return failResult(fmt.Errorf("%w: read balance for percentage sell: %v", domain.ErrExternalService, err))
		}
		req.Amount = balance * req.AmountPercent / 100
		if req.Amount <= 0 {
			return failResult(fmt.Errorf("%w: wallet holds no %s to sell", domain.ErrValidation, req.AssetIn))
		}
	}
	return e.swap(ctx, domain.TradeKindSell, req)
}

// Transfer moves AssetIn directly to the recipient held in AssetOut,
// skipping the aggregator. The recipient receives the full amount;
// transfers are never taxed. SOL moves via a System Program transfer, SPL
// tokens via token-program instructions with derived associated accounts.
func (e *Executor) Transfer(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	start := time.Now()
	res, err := e.transfer(ctx, req)
	observability.RecordTrade(string(domain.TradeKindTransfer), statusLabel(res), time.Since(start).Seconds())
	return res, err
}

func (e *Executor) transfer(ctx context.Context, req domain.TradeRequest) (*domain.TradeResult, error) {
	if err := validateRequest(req, true); err != nil {
		return failResult(err)
	}
	if err := wallet.ValidateAddress(req.AssetOut); err != nil {
		return failResult(fmt.Errorf("%w: bad transfer recipient", domain.ErrValidation))
	}

	record, err := e.resolveWallet(ctx, &req)
	if err != nil {
		return failResult(err)
	}

	// Transfers are not taxed: there is no quoting stage to take the tax
	// off the top of, and the recipient gets the full amount.
	result := &domain.TradeResult{
		AmountIn:  req.Amount,
		NetAmount: req.Amount,
	}

	e.logger.Printf("transfer %s: %s %v %s -> %s", record.Address, stateBuilding, req.Amount, req.AssetIn, req.AssetOut)

	// Building: a direct instruction, no aggregator involved
	blockhash, err := e.rpc.GetLatestBlockhash(ctx, e.commitment)
	if err != nil {
		result.Error = fmt.Sprintf("fetch blockhash: %v", err)
		return result, fmt.Errorf("%w: fetch blockhash: %v", domain.ErrExternalService, err)
	}

	msg, err := e.transferMessage(ctx, record.Address, req.AssetOut, req.AssetIn, req.Amount, blockhash.Blockhash)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	// Signing
	kp, err := e.wallets.Keypair(ctx, req.OwnerID, record.Address)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	signed, signature, err := solana.SignTransaction(
		solana.AssembleTransaction([][]byte{make([]byte, 64)}, msg), kp)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	return e.broadcastAndSettle(ctx, domain.TradeKindTransfer, req, record, result, signed, signature, 0, kp)
}

// swap runs the aggregator-routed buy/sell path.
func (e *Executor) swap(ctx context.Context, kind domain.TradeKind, req domain.TradeRequest) (*domain.TradeResult, error) {
	if err := validateRequest(req, false); err != nil {
		return failResult(err)
	}

	record, err := e.resolveWallet(ctx, &req)
	if err != nil {
		return failResult(err)
	}

	// Quoting: tax comes off the top, the aggregator only sees the net
	tax, net := e.fees.ComputeTax(req.Amount, req.SkipTax)

	result := &domain.TradeResult{
		AmountIn:  req.Amount,
		TaxAmount: tax,
		NetAmount: net,
	}

	rawIn, err := e.uiToRaw(ctx, record.Address, req.AssetIn, net)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	e.logger.Printf("%s %s: %s %v %s -> %s (slippage %d bps)",
		kind, record.Address, stateQuoting, net, req.AssetIn, req.AssetOut, req.SlippageBps)

	route, err := e.aggregator.Quote(ctx, req.AssetIn, req.AssetOut, rawIn, req.SlippageBps)
	if err != nil {
		result.Error = fmt.Sprintf("quote: %v", err)
		return result, err
	}
	result.PriceImpact = route.PriceImpactPct
	result.AmountOut = rawToUI(route.OutAmount, route.OutputDecimals)

	// Building
	priorityFee := domain.PriorityFeeLamports(req.Priority)
	e.logger.Printf("%s %s: %s (priority fee %d lamports)", kind, record.Address, stateBuilding, priorityFee)

	txBase64, err := e.aggregator.BuildSwap(ctx, route, record.Address, priorityFee)
	if err != nil {
		result.Error = fmt.Sprintf("build swap: %v", err)
		return result, err
	}

	// Signing
	kp, err := e.wallets.Keypair(ctx, req.OwnerID, record.Address)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	signed, signature, err := solana.SignTransaction(txBase64, kp)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	return e.broadcastAndSettle(ctx, kind, req, record, result, signed, signature, tax, kp)
}

// broadcastAndSettle runs the Submitting, Confirming and Settling states
// shared by swaps and transfers. From the first successful broadcast on,
// the result reports success and all bookkeeping is best-effort.
func (e *Executor) broadcastAndSettle(
	ctx context.Context,
	kind domain.TradeKind,
	req domain.TradeRequest,
	record *domain.WalletRecord,
	result *domain.TradeResult,
	signedTx, signature string,
	tax float64,
	kp *wallet.Keypair,
) (*domain.TradeResult, error) {
	// Submitting: protected path first when requested and configured,
	// direct broadcast as fallback. Relay failure is never trade failure.
	submitted := false
	if e.relay != nil && req.RelayTip > 0 {
		e.logger.Printf("%s %s: %s via relay (tip %d lamports)", kind, record.Address, stateSubmitting, req.RelayTip)
		bundleID, err := e.relay.SubmitBundle(ctx, []string{signedTx}, req.RelayTip)
		if err != nil {
			observability.RecordRelaySubmission("failed")
			e.logger.Printf("%s %s: relay submit failed, falling back to direct send: %v", kind, record.Address, err)
		} else {
			observability.RecordRelaySubmission("accepted")
			e.logger.Printf("%s %s: bundle %s accepted", kind, record.Address, bundleID)
			submitted = true
		}
	}

	if !submitted {
		e.logger.Printf("%s %s: %s direct", kind, record.Address, stateSubmitting)
		sent, err := e.rpc.SendTransaction(ctx, signedTx, &solana.SendOpts{
			PreflightCommitment: e.commitment,
		})
		if err != nil {
			// Still pre-chain: the only post-signing point where Failed is reachable
			result.Error = fmt.Sprintf("broadcast: %v", err)
			return result, fmt.Errorf("%w: broadcast: %v", domain.ErrExternalService, err)
		}
		if sent != "" {
			signature = sent
		}
	}

	result.Signature = signature
	result.Success = true

	// Ledger write happens before the confirmation wait so a crash or
	// timeout mid-wait cannot lose the record.
	entry := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		WalletID:    record.ID,
		Signature:   signature,
		Kind:        kind,
		Status:      domain.LedgerStatusSubmitted,
		AssetIn:     req.AssetIn,
		AssetOut:    req.AssetOut,
		AmountIn:    result.AmountIn,
		AmountOut:   result.AmountOut,
		TaxAmount:   result.TaxAmount,
		NetAmount:   result.NetAmount,
		PriceImpact: result.PriceImpact,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.ledger.Record(ctx, entry); err != nil {
		e.logger.Printf("%s %s: ledger record: %v", kind, record.Address, err)
	}
	e.ledger.Touch(ctx, record.ID)

	// Confirming: own wait horizon, independent of transport timeouts
	e.logger.Printf("%s %s: %s %s", kind, record.Address, stateConfirming, signature)
	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	notif, err := e.confirmer.WaitForSignature(confirmCtx, signature, e.commitment)
	cancel()

	switch {
	case err != nil:
		// The broadcast stands; the transaction may still land
		result.ConfirmTimedOut = true
		observability.RecordConfirmTimeout()
		e.logger.Printf("%s %s: confirmation wait expired for %s, reporting success with warning", kind, record.Address, signature)
		return result, nil
	case notif.Err != nil:
		result.Success = false
		result.Error = fmt.Sprintf("transaction failed on chain: %v", notif.Err)
		e.ledger.Settle(ctx, entry.ID, domain.LedgerStatusFailed)
		e.logger.Printf("%s %s: %s failed on chain: %v", kind, record.Address, signature, notif.Err)
		return result, nil
	}

	e.ledger.Settle(ctx, entry.ID, domain.LedgerStatusConfirmed)

	// Best-effort fee enrichment from the confirmed transaction
	if tx, err := e.rpc.GetTransaction(ctx, signature); err == nil && tx != nil && tx.Meta != nil {
		result.FeeLamports = tx.Meta.Fee
	}

	// Settling: the tax transfer is dispatched detached; its error goes to
	// the sink because the result below is already final.
	if tax > 0 && e.fees.Enabled() {
		e.logger.Printf("%s %s: %s tax %v %s", kind, record.Address, stateSettling, tax, req.AssetIn)
		observability.RecordTaxCollected(tax)
		e.dispatchTaxTransfer(req.OwnerID, record.Address, req.AssetIn, tax, signature, kp)
	}

	return result, nil
}

// dispatchTaxTransfer sends the collected tax to the configured recipient
// in a detached task. Runs against a fresh context: the caller's request
// context ends when the trade returns.
func (e *Executor) dispatchTaxTransfer(ownerID, walletAddress, asset string, tax float64, tradeSignature string, kp *wallet.Keypair) {
	fail := func(err error) {
		observability.RecordTaxTransferError()
		e.taxErrors(ownerID, tradeSignature, err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		blockhash, err := e.rpc.GetLatestBlockhash(ctx, e.commitment)
		if err != nil {
			fail(fmt.Errorf("fetch blockhash: %w", err))
			return
		}

		msg, err := e.transferMessage(ctx, walletAddress, e.fees.Recipient(), asset, tax, blockhash.Blockhash)
		if err != nil {
			fail(err)
			return
		}

		signed, _, err := solana.SignTransaction(
			solana.AssembleTransaction([][]byte{make([]byte, 64)}, msg), kp)
		if err != nil {
			fail(err)
			return
		}

		if _, err := e.rpc.SendTransaction(ctx, signed, &solana.SendOpts{PreflightCommitment: e.commitment}); err != nil {
			fail(fmt.Errorf("broadcast tax transfer: %w", err))
		}
	}()
}

// transferMessage builds the direct-transfer message for SOL or an SPL
// token in UI units.
func (e *Executor) transferMessage(ctx context.Context, from, to, asset string, uiAmount float64, blockhash string) ([]byte, error) {
	raw, err := e.uiToRaw(ctx, from, asset, uiAmount)
	if err != nil {
		return nil, err
	}
	if asset == solana.WrappedSolMint {
		return solana.NewSolTransferMessage(from, to, raw, blockhash)
	}
	return solana.NewTokenTransferMessage(from, to, asset, raw, blockhash)
}

// resolveWallet loads the acting wallet: the explicit address when given,
// otherwise the owner's default.
func (e *Executor) resolveWallet(ctx context.Context, req *domain.TradeRequest) (*domain.WalletRecord, error) {
	if req.WalletAddress != "" {
		wallets, err := e.wallets.ListWallets(ctx, req.OwnerID)
		if err != nil {
			return nil, err
		}
		for _, w := range wallets {
			if w.Address == req.WalletAddress {
				return w, nil
			}
		}
		return nil, fmt.Errorf("%w: wallet %s", domain.ErrNotFound, req.WalletAddress)
	}

	record, err := e.wallets.DefaultWallet(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	req.WalletAddress = record.Address
	return record, nil
}

// uiBalance reads the wallet's fresh balance of an asset in UI units.
func (e *Executor) uiBalance(ctx context.Context, address, asset string) (float64, error) {
	if asset == solana.WrappedSolMint {
		lamports, err := e.rpc.GetBalance(ctx, address)
		if err != nil {
			return 0, err
		}
		return float64(lamports) / solana.LamportsPerSol, nil
	}
	tb, err := e.rpc.GetTokenBalance(ctx, address, asset)
	if err != nil {
		return 0, err
	}
	return tb.UIAmount, nil
}

// uiToRaw converts a UI amount of an asset to raw units. SOL is fixed at
// nine decimals; token scales come from the owner's accounts. Decimal
// arithmetic avoids float scaling drift on large amounts.
func (e *Executor) uiToRaw(ctx context.Context, address, asset string, ui float64) (uint64, error) {
	decimals := solDecimals
	if asset != solana.WrappedSolMint {
		tb, err := e.rpc.GetTokenBalance(ctx, address, asset)
		if err != nil {
			return 0, fmt.Errorf("%w: resolve decimals for %s: %v", domain.ErrExternalService, asset, err)
		}
		decimals = tb.Decimals
	}

	raw := decimal.NewFromFloat(ui).Mul(decimal.New(1, int32(decimals))).IntPart()
	if raw <= 0 {
		return 0, fmt.Errorf("%w: amount %v of %s rounds to zero raw units", domain.ErrValidation, ui, asset)
	}
	return uint64(raw), nil
}

// rawToUI converts raw units to UI units.
func rawToUI(raw uint64, decimals int) float64 {
	f, _ := decimal.New(int64(raw), 0).Div(decimal.New(1, int32(decimals))).Float64()
	return f
}

// validateRequest checks request shape. Transfers carry the recipient in
// AssetOut and are exempt from slippage checks.
func validateRequest(req domain.TradeRequest, transfer bool) error {
	if req.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if req.AssetIn == "" || req.AssetOut == "" {
		return fmt.Errorf("%w: both assets are required", domain.ErrValidation)
	}
	if req.Amount <= 0 && req.AmountPercent <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if !transfer && (req.SlippageBps < 0 || req.SlippageBps > 10_000) {
		return fmt.Errorf("%w: slippage must be in [0, 10000] bps, got %d", domain.ErrValidation, req.SlippageBps)
	}
	return nil
}

// failResult wraps a pre-broadcast failure into a result with no side
// effects.
func failResult(err error) (*domain.TradeResult, error) {
	return &domain.TradeResult{Success: false, Error: err.Error()}, err
}

func statusLabel(res *domain.TradeResult) string {
	if res != nil && res.Success {
		return "success"
	}
	return "failed"
}
