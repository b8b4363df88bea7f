// Package config handles loading and validating configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the trade engine.
type Config struct {
	// Key sourcing. MasterKeyHex is the direct secret; MasterKeyFile is the
	// managed-secret fallback read at startup. One of the two must yield a
	// valid 256-bit key or the process refuses to start.
	MasterKeyHex  string
	MasterKeyFile string

	// Chain RPC
	RPCEndpoint string
	WSEndpoint  string

	// Aggregator
	AggregatorEndpoint string

	// Relay (optional; absence disables protected submission)
	RelayEndpoint string
	RelayAuthUUID string

	// Price source (optional)
	PriceEndpoint string

	// Taxation (recipient absence disables taxation)
	TaxBps       int
	TaxRecipient string

	// Persistence
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool

	// Wallet limits and cache horizons
	MaxWalletsPerOwner int
	KeypairCacheTTL    time.Duration
	DerivedKeyTTL      time.Duration

	// Confirmation
	Commitment     string
	ConfirmTimeout time.Duration

	// HTTP status/metrics listener
	StatusAddr string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: environment variables > .env file > defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MasterKeyHex:  os.Getenv("MASTER_ENCRYPTION_KEY"),
		MasterKeyFile: os.Getenv("MASTER_ENCRYPTION_KEY_FILE"),

		RPCEndpoint: getEnv("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		WSEndpoint:  getEnv("SOLANA_WS_ENDPOINT", ""),

		AggregatorEndpoint: getEnv("AGGREGATOR_ENDPOINT", "https://quote-api.jup.ag/v6"),

		RelayEndpoint: getEnv("RELAY_ENDPOINT", ""),
		RelayAuthUUID: getEnv("RELAY_AUTH_UUID", ""),

		PriceEndpoint: getEnv("PRICE_ENDPOINT", ""),

		TaxBps:       getEnvInt("TAX_BPS", 0),
		TaxRecipient: getEnv("TAX_RECIPIENT", ""),

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		UseMemory:     getEnvBool("USE_MEMORY", false),

		MaxWalletsPerOwner: getEnvInt("MAX_WALLETS_PER_OWNER", 10),
		KeypairCacheTTL:    getEnvDuration("KEYPAIR_CACHE_TTL", 10*time.Minute),
		DerivedKeyTTL:      getEnvDuration("DERIVED_KEY_TTL", 30*time.Minute),

		Commitment:     getEnv("COMMITMENT", "confirmed"),
		ConfirmTimeout: getEnvDuration("CONFIRM_TIMEOUT", 60*time.Second),

		StatusAddr: getEnv("STATUS_ADDR", ":9090"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.MasterKeyHex == "" && c.MasterKeyFile == "" {
		return fmt.Errorf("MASTER_ENCRYPTION_KEY or MASTER_ENCRYPTION_KEY_FILE is required")
	}
	if c.MasterKeyHex != "" {
		if len(c.MasterKeyHex) != 64 {
			return fmt.Errorf("MASTER_ENCRYPTION_KEY must be 64 hex characters, got %d", len(c.MasterKeyHex))
		}
		if _, err := hex.DecodeString(c.MasterKeyHex); err != nil {
			return fmt.Errorf("MASTER_ENCRYPTION_KEY is not valid hex")
		}
	}

	if c.RPCEndpoint == "" {
		return fmt.Errorf("SOLANA_RPC_ENDPOINT is required")
	}

	if c.TaxBps < 0 || c.TaxBps > 10000 {
		return fmt.Errorf("TAX_BPS must be between 0 and 10000")
	}

	if c.RelayEndpoint != "" && c.RelayAuthUUID == "" {
		return fmt.Errorf("RELAY_AUTH_UUID is required when RELAY_ENDPOINT is set")
	}

	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set USE_MEMORY=true for in-memory storage)")
	}

	if c.MaxWalletsPerOwner < 1 {
		return fmt.Errorf("MAX_WALLETS_PER_OWNER must be at least 1")
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("COMMITMENT must be processed, confirmed or finalized")
	}

	return nil
}

// TaxEnabled reports whether taxation is configured.
func (c *Config) TaxEnabled() bool {
	return c.TaxBps > 0 && c.TaxRecipient != ""
}

// RelayEnabled reports whether protected submission is configured.
func (c *Config) RelayEnabled() bool {
	return c.RelayEndpoint != "" && c.RelayAuthUUID != ""
}

// MaskedMasterKey returns the master key with most characters hidden for logging.
func (c *Config) MaskedMasterKey() string {
	return maskSecret(c.MasterKeyHex)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a duration or returns a default.
// Accepts Go duration strings ("90s", "10m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
