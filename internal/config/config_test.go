package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		MasterKeyHex:       strings.Repeat("ab", 32),
		RPCEndpoint:        "https://rpc.example",
		AggregatorEndpoint: "https://quote.example",
		TaxBps:             87,
		TaxRecipient:       "TaxRecipient1111111111111111111111111111111",
		UseMemory:          true,
		MaxWalletsPerOwner: 10,
		KeypairCacheTTL:    10 * time.Minute,
		DerivedKeyTTL:      30 * time.Minute,
		Commitment:         "confirmed",
		ConfirmTimeout:     60 * time.Second,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_MissingKey(t *testing.T) {
	cfg := validConfig()
	cfg.MasterKeyHex = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing master key")
	}
}

func TestValidate_ShortKey(t *testing.T) {
	cfg := validConfig()
	cfg.MasterKeyHex = "abcd"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short master key")
	}
}

func TestValidate_NonHexKey(t *testing.T) {
	cfg := validConfig()
	cfg.MasterKeyHex = strings.Repeat("zz", 32)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-hex master key")
	}
}

func TestValidate_KeyFileAlone(t *testing.T) {
	cfg := validConfig()
	cfg.MasterKeyHex = ""
	cfg.MasterKeyFile = "/run/secrets/master.key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("key file alone should validate, got %v", err)
	}
}

func TestValidate_TaxBpsRange(t *testing.T) {
	cfg := validConfig()
	cfg.TaxBps = 10001
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for tax bps > 10000")
	}
}

func TestValidate_RelayRequiresAuth(t *testing.T) {
	cfg := validConfig()
	cfg.RelayEndpoint = "https://relay.example"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relay endpoint without auth")
	}
	cfg.RelayAuthUUID = "uuid"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("relay with auth should validate, got %v", err)
	}
}

func TestValidate_PersistenceRequired(t *testing.T) {
	cfg := validConfig()
	cfg.UseMemory = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when neither postgres dsn nor memory mode set")
	}
	cfg.PostgresDSN = "postgres://localhost/engine"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("postgres dsn should validate, got %v", err)
	}
}

func TestValidate_Commitment(t *testing.T) {
	cfg := validConfig()
	cfg.Commitment = "instant"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown commitment level")
	}
}

func TestTaxEnabled(t *testing.T) {
	cfg := validConfig()
	if !cfg.TaxEnabled() {
		t.Fatal("tax should be enabled with bps and recipient set")
	}
	cfg.TaxRecipient = ""
	if cfg.TaxEnabled() {
		t.Fatal("tax should be disabled without recipient")
	}
}

func TestMaskedMasterKey(t *testing.T) {
	cfg := validConfig()
	masked := cfg.MaskedMasterKey()
	if masked == cfg.MasterKeyHex {
		t.Fatal("masked key must not equal raw key")
	}
	if !strings.Contains(masked, "****") {
		t.Fatalf("masked key missing mask: %s", masked)
	}
}
