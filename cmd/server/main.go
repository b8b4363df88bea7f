// Package main runs the trade engine as a long-lived service: custodial
// wallet management, aggregator-routed execution, confirmation tracking and
// the trade ledger, fronted by a minimal HTTP surface with status and
// Prometheus metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-trade-engine/internal/aggregator"
	"solana-trade-engine/internal/config"
	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/engine"
	"solana-trade-engine/internal/fee"
	"solana-trade-engine/internal/ledger"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/pricing"
	"solana-trade-engine/internal/relay"
	"solana-trade-engine/internal/solana"
	"solana-trade-engine/internal/storage"
	chstore "solana-trade-engine/internal/storage/clickhouse"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/storage/migrations"
	pgstore "solana-trade-engine/internal/storage/postgres"
	"solana-trade-engine/internal/vault"
	"solana-trade-engine/internal/wallet"
)

// Server wires the engine components behind the HTTP surface.
type Server struct {
	cfg      *config.Config
	executor *engine.Executor
	wallets  *wallet.Manager
	ledger   *ledger.Recorder
	logger   *log.Logger

	started time.Time
}

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("master key: %s", cfg.MaskedMasterKey())

	key, err := vault.SourceKey(cfg.MasterKeyHex, cfg.MasterKeyFile)
	if err != nil {
		logger.Fatalf("source master key: %v", err)
	}
	vaultSvc, err := vault.NewService(key, vault.WithDerivedKeyTTL(cfg.DerivedKeyTTL))
	if err != nil {
		logger.Fatalf("init vault: %v", err)
	}
	defer vaultSvc.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("init storage: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	confirmerOpts := []solana.ConfirmerOption{
		solana.WithConfirmerLogger(log.New(os.Stdout, "[confirm] ", log.LstdFlags)),
	}
	if cfg.WSEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, nil)
		if err != nil {
			logger.Printf("ws connect failed, confirmations fall back to polling: %v", err)
		} else {
			defer ws.Close()
			confirmerOpts = append(confirmerOpts, solana.WithWSClient(ws))
		}
	}
	confirmer := solana.NewConfirmer(rpc, confirmerOpts...)

	manager, err := wallet.NewManager(wallet.ManagerConfig{
		Store:       stores.wallets,
		Vault:       vaultSvc,
		Cache:       wallet.NewKeypairCache(cfg.KeypairCacheTTL, cfg.KeypairCacheTTL),
		Balances:    &chainBalances{rpc: rpc},
		MaxPerOwner: cfg.MaxWalletsPerOwner,
		Logger:      log.New(os.Stdout, "[wallet] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("init wallet manager: %v", err)
	}

	var prices pricing.Source
	if cfg.PriceEndpoint != "" {
		prices = pricing.NewClient(cfg.PriceEndpoint)
	}

	recorder := ledger.NewRecorder(ledger.RecorderConfig{
		Store:   stores.ledger,
		Wallets: stores.wallets,
		Prices:  prices,
		Events:  stores.events,
		Logger:  log.New(os.Stdout, "[ledger] ", log.LstdFlags),
	})

	splitter, err := fee.NewSplitter(cfg.TaxBps, cfg.TaxRecipient)
	if err != nil {
		logger.Fatalf("init fee splitter: %v", err)
	}

	var relayClient engine.RelayClient
	if cfg.RelayEnabled() {
		relayClient = relay.NewClient(cfg.RelayEndpoint, cfg.RelayAuthUUID)
		logger.Printf("relay submission enabled via %s", cfg.RelayEndpoint)
	}

	executor, err := engine.NewExecutor(engine.ExecutorConfig{
		Wallets:        manager,
		Aggregator:     aggregator.NewClient(cfg.AggregatorEndpoint),
		Relay:          relayClient,
		RPC:            rpc,
		Confirmer:      confirmer,
		Fees:           splitter,
		Ledger:         recorder,
		Commitment:     cfg.Commitment,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         log.New(os.Stdout, "[engine] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("init executor: %v", err)
	}

	srv := &Server{
		cfg:      cfg,
		executor: executor,
		wallets:  manager,
		ledger:   recorder,
		logger:   logger,
		started:  time.Now().UTC(),
	}

	httpSrv := &http.Server{
		Addr:    cfg.StatusAddr,
		Handler: srv.routes(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (tax=%v relay=%v)", cfg.StatusAddr, cfg.TaxEnabled(), cfg.RelayEnabled())
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
	logger.Println("shutdown complete")
}

// engineStores groups the storage implementations the engine needs.
type engineStores struct {
	wallets storage.WalletStore
	ledger  storage.LedgerStore
	events  storage.TradeEventStore
}

// createStores builds memory or database-backed stores per configuration.
// ClickHouse is optional; its absence only disables the analytics mirror.
func createStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*engineStores, func(), error) {
	if cfg.UseMemory {
		logger.Println("using in-memory storage")
		return &engineStores{
			wallets: memory.NewWalletStore(),
			ledger:  memory.NewLedgerStore(),
			events:  memory.NewTradeEventStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	stores := &engineStores{
		wallets: pgstore.NewWalletStore(pool),
		ledger:  pgstore.NewLedgerStore(pool),
	}

	var chConn *chstore.Conn
	if cfg.ClickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		stores.events = chstore.NewTradeEventStore(chConn)
	} else {
		logger.Println("clickhouse not configured, trade-event mirror disabled")
	}

	cleanup := func() {
		pool.Close()
		if chConn != nil {
			chConn.Close()
		}
	}
	return stores, cleanup, nil
}

// chainBalances adapts the RPC client to the wallet manager's SOL balance
// reads.
type chainBalances struct {
	rpc solana.RPCClient
}

func (b *chainBalances) Balance(ctx context.Context, address string) (float64, error) {
	lamports, err := b.rpc.GetBalance(ctx, address)
	if err != nil {
		return 0, err
	}
	return float64(lamports) / solana.LamportsPerSol, nil
}

// routes builds the HTTP surface. The trade API is deliberately minimal:
// request shaping, sessions and auth belong to an upstream gateway.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/v1/trades/buy", s.handleTrade(s.executor.Buy))
	mux.HandleFunc("/v1/trades/sell", s.handleTrade(s.executor.Sell))
	mux.HandleFunc("/v1/trades/transfer", s.handleTrade(s.executor.Transfer))
	mux.HandleFunc("/v1/wallets", s.handleWallets)
	mux.HandleFunc("/v1/ledger", s.handleLedger)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Commitment   string `json:"commitment"`
	TaxEnabled   bool   `json:"tax_enabled"`
	RelayEnabled bool   `json:"relay_enabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.started).String(),
		Commitment:   s.cfg.Commitment,
		TaxEnabled:   s.cfg.TaxEnabled(),
		RelayEnabled: s.cfg.RelayEnabled(),
	})
}

// tradeRequest is the wire shape of a trade call.
type tradeRequest struct {
	OwnerID       string  `json:"ownerId"`
	WalletAddress string  `json:"walletAddress,omitempty"`
	AssetIn       string  `json:"assetIn"`
	AssetOut      string  `json:"assetOut"`
	Amount        float64 `json:"amount"`
	AmountPercent float64 `json:"amountPercent,omitempty"`
	SlippageBps   int     `json:"slippageBps"`
	Priority      string  `json:"priority,omitempty"`
	RelayTip      uint64  `json:"relayTipLamports,omitempty"`
	SkipTax       bool    `json:"skipTax,omitempty"`
}

func (s *Server) handleTrade(run func(context.Context, domain.TradeRequest) (*domain.TradeResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req tradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		result, err := run(r.Context(), domain.TradeRequest{
			OwnerID:       req.OwnerID,
			WalletAddress: req.WalletAddress,
			AssetIn:       req.AssetIn,
			AssetOut:      req.AssetOut,
			Amount:        req.Amount,
			AmountPercent: req.AmountPercent,
			SlippageBps:   req.SlippageBps,
			Priority:      domain.PriorityLevel(req.Priority),
			RelayTip:      req.RelayTip,
			SkipTax:       req.SkipTax,
		})
		if err != nil {
			writeJSON(w, statusForError(err), result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ownerID := r.URL.Query().Get("owner")
		wallets, err := s.wallets.ListWallets(r.Context(), ownerID)
		if err != nil {
			http.Error(w, err.Error(), statusForError(err))
			return
		}
		writeJSON(w, http.StatusOK, walletViews(wallets))

	case http.MethodPost:
		var req struct {
			OwnerID string `json:"ownerId"`
			Label   string `json:"label,omitempty"`
			Secret  string `json:"secret,omitempty"` // present means import
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		var (
			record *domain.WalletRecord
			err    error
		)
		if req.Secret != "" {
			record, err = s.wallets.ImportWallet(r.Context(), req.OwnerID, req.Secret, req.Label)
		} else {
			record, err = s.wallets.CreateWallet(r.Context(), req.OwnerID, req.Label)
		}
		if err != nil {
			http.Error(w, err.Error(), statusForError(err))
			return
		}
		writeJSON(w, http.StatusCreated, walletView(record))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := r.URL.Query().Get("owner")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	entries, err := s.ledger.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// WalletView is the wire shape of a wallet. Encrypted key material never
// leaves the server through this surface.
type WalletView struct {
	ID            string     `json:"id"`
	Address       string     `json:"address"`
	Label         string     `json:"label,omitempty"`
	IsDefault     bool       `json:"isDefault"`
	CachedBalance float64    `json:"cachedBalance"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
}

func walletView(w *domain.WalletRecord) WalletView {
	return WalletView{
		ID:            w.ID,
		Address:       w.Address,
		Label:         w.Label,
		IsDefault:     w.IsDefault,
		CachedBalance: w.CachedBalance,
		CreatedAt:     w.CreatedAt,
		LastUsedAt:    w.LastUsedAt,
	}
}

func walletViews(records []*domain.WalletRecord) []WalletView {
	views := make([]WalletView, 0, len(records))
	for _, r := range records {
		views = append(views, walletView(r))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
