// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trade metrics
	TradesExecuted  *prometheus.CounterVec
	TradeDuration   *prometheus.HistogramVec
	ConfirmTimeouts prometheus.Counter
	RelaySubmits    *prometheus.CounterVec
	TaxCollected    prometheus.Counter
	TaxTransferErrs prometheus.Counter

	// Custody metrics
	WalletsCreated  prometheus.Counter
	WalletsImported prometheus.Counter
	KeyDecrypts     prometheus.Counter

	// Ledger metrics
	LedgerWrites         *prometheus.CounterVec
	LedgerFallbackWrites prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulTrade prometheus.Gauge
	UptimeSeconds       prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_trade_engine"
	}

	return &Metrics{
		// Trade metrics
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_executed_total",
			Help:      "Total number of trade attempts by kind and outcome",
		}, []string{"kind", "status"}),
		TradeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_duration_seconds",
			Help:      "End-to-end trade execution duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		ConfirmTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "confirm_timeouts_total",
			Help:      "Total number of trades whose confirmation wait expired",
		}),
		RelaySubmits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "relay_submissions_total",
			Help:      "Total number of relay bundle submissions by outcome",
		}, []string{"status"}),
		TaxCollected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tax_collected_total",
			Help:      "Total tax collected in input-asset UI units",
		}),
		TaxTransferErrs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tax_transfer_errors_total",
			Help:      "Total number of failed tax settlement transfers",
		}),

		// Custody metrics
		WalletsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "wallets_created_total",
			Help:      "Total number of wallets generated",
		}),
		WalletsImported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "wallets_imported_total",
			Help:      "Total number of wallets imported",
		}),
		KeyDecrypts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "key_decrypts_total",
			Help:      "Total number of secret key decryptions (cache misses)",
		}),

		// Ledger metrics
		LedgerWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Total number of ledger writes by outcome",
		}, []string{"status"}),
		LedgerFallbackWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "fallback_writes_total",
			Help:      "Total number of reduced-schema fallback ledger writes",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		DBConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of database connections by state",
		}, []string{"database", "state"}),

		// Health metrics
		LastSuccessfulTrade: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_trade_timestamp",
			Help:      "Unix timestamp of the last successfully broadcast trade",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTrade records a completed trade attempt.
func RecordTrade(kind, status string, durationSeconds float64) {
	DefaultMetrics.TradesExecuted.WithLabelValues(kind, status).Inc()
	DefaultMetrics.TradeDuration.WithLabelValues(kind).Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulTrade.SetToCurrentTime()
	}
}

// RecordConfirmTimeout increments the confirmation timeout counter.
func RecordConfirmTimeout() {
	DefaultMetrics.ConfirmTimeouts.Inc()
}

// RecordRelaySubmission records a relay bundle submission outcome.
func RecordRelaySubmission(status string) {
	DefaultMetrics.RelaySubmits.WithLabelValues(status).Inc()
}

// RecordTaxCollected adds to the collected tax counter.
func RecordTaxCollected(amount float64) {
	if amount > 0 {
		DefaultMetrics.TaxCollected.Add(amount)
	}
}

// RecordTaxTransferError increments the failed tax settlement counter.
func RecordTaxTransferError() {
	DefaultMetrics.TaxTransferErrs.Inc()
}

// RecordWalletCreated increments the wallets created counter.
func RecordWalletCreated() {
	DefaultMetrics.WalletsCreated.Inc()
}

// RecordWalletImported increments the wallets imported counter.
func RecordWalletImported() {
	DefaultMetrics.WalletsImported.Inc()
}

// RecordKeyDecrypt increments the secret decryption counter.
func RecordKeyDecrypt() {
	DefaultMetrics.KeyDecrypts.Inc()
}

// RecordLedgerWrite records a ledger write outcome.
func RecordLedgerWrite(status string) {
	DefaultMetrics.LedgerWrites.WithLabelValues(status).Inc()
	if status == "fallback" {
		DefaultMetrics.LedgerFallbackWrites.Inc()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
