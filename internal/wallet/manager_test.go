package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage/memory"
	"solana-trade-engine/internal/vault"
)

func newTestManager(t *testing.T, opts ...func(*ManagerConfig)) *Manager {
	t.Helper()

	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	enc, err := vault.NewService(key)
	if err != nil {
		t.Fatalf("vault.NewService failed: %v", err)
	}

	cache := NewKeypairCache(time.Minute, time.Minute)
	t.Cleanup(cache.Close)

	cfg := ManagerConfig{
		Store:       memory.NewWalletStore(),
		Vault:       enc,
		Cache:       cache,
		MaxPerOwner: 3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestManager_CreateWallet_FirstIsDefault(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.CreateWallet(ctx, "owner1", "main")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if !first.IsDefault {
		t.Error("first wallet should be default")
	}
	if first.Label != "main" {
		t.Errorf("label = %q, want main", first.Label)
	}

	second, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if second.IsDefault {
		t.Error("second wallet should not be default")
	}

	def, err := m.DefaultWallet(ctx, "owner1")
	if err != nil {
		t.Fatalf("DefaultWallet failed: %v", err)
	}
	if def.Address != first.Address {
		t.Errorf("default = %s, want %s", def.Address, first.Address)
	}
}

func TestManager_CreateWallet_CapEnforced(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.CreateWallet(ctx, "owner1", ""); err != nil {
			t.Fatalf("CreateWallet %d failed: %v", i, err)
		}
	}

	if _, err := m.CreateWallet(ctx, "owner1", ""); !errors.Is(err, domain.ErrLimitExceeded) {
		t.Errorf("over cap: got err %v, want ErrLimitExceeded", err)
	}

	// Cap is per owner
	if _, err := m.CreateWallet(ctx, "owner2", ""); err != nil {
		t.Errorf("other owner blocked by cap: %v", err)
	}
}

func TestManager_ImportExport_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	encoded, err := EncodeSecret(kp.Secret(), domain.SecretEncodingArray)
	if err != nil {
		t.Fatalf("EncodeSecret failed: %v", err)
	}

	record, err := m.ImportWallet(ctx, "owner1", encoded, "imported")
	if err != nil {
		t.Fatalf("ImportWallet failed: %v", err)
	}
	if record.Address != kp.Address() {
		t.Errorf("imported address = %s, want %s", record.Address, kp.Address())
	}
	if record.SecretEncoding != domain.SecretEncodingArray {
		t.Errorf("secret encoding = %q, want array", record.SecretEncoding)
	}

	// Export returns the secret in its original encoding
	exported, err := m.ExportWallet(ctx, "owner1", record.Address)
	if err != nil {
		t.Fatalf("ExportWallet failed: %v", err)
	}
	if exported != encoded {
		t.Errorf("exported secret = %q, want %q", exported, encoded)
	}
}

func TestManager_ImportWallet_RejectsDuplicate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	secret, err := EncodeSecret(kp.Secret(), domain.SecretEncodingBase58)
	if err != nil {
		t.Fatalf("EncodeSecret failed: %v", err)
	}

	if _, err := m.ImportWallet(ctx, "owner1", secret, ""); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	if _, err := m.ImportWallet(ctx, "owner1", secret, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("duplicate import: got err %v, want ErrValidation", err)
	}

	// A different owner may hold the same address
	if _, err := m.ImportWallet(ctx, "owner2", secret, ""); err != nil {
		t.Errorf("cross-owner import failed: %v", err)
	}
}

func TestManager_Keypair_CacheSkipsDecrypt(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	// Create primes the cache, so the first lookup is a hit
	if _, err := m.Keypair(ctx, "owner1", record.Address); err != nil {
		t.Fatalf("Keypair failed: %v", err)
	}
	if got := m.DecryptCount(); got != 0 {
		t.Errorf("DecryptCount = %d after cache hit, want 0", got)
	}

	// Evict and look up again: exactly one decrypt
	m.ClearCache()
	if _, err := m.Keypair(ctx, "owner1", record.Address); err != nil {
		t.Fatalf("Keypair failed: %v", err)
	}
	if got := m.DecryptCount(); got != 1 {
		t.Errorf("DecryptCount = %d after cache miss, want 1", got)
	}

	// Back in cache now
	if _, err := m.Keypair(ctx, "owner1", record.Address); err != nil {
		t.Fatalf("Keypair failed: %v", err)
	}
	if got := m.DecryptCount(); got != 1 {
		t.Errorf("DecryptCount = %d after re-cache, want 1", got)
	}
}

func TestManager_Keypair_OwnershipEnforced(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	// The keypair sits in the cache, but a different owner must not reach it
	if _, err := m.Keypair(ctx, "owner2", record.Address); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign owner: got err %v, want ErrNotFound", err)
	}
	if _, err := m.ExportWallet(ctx, "owner2", record.Address); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign export: got err %v, want ErrNotFound", err)
	}
}

func TestManager_DeleteWallet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	def, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	extra, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	// Default cannot be deleted
	if err := m.DeleteWallet(ctx, "owner1", def.Address); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("delete default: got err %v, want ErrValidation", err)
	}

	if err := m.DeleteWallet(ctx, "owner1", extra.Address); err != nil {
		t.Fatalf("DeleteWallet failed: %v", err)
	}

	// Deleted wallet is gone from listings and cache
	wallets, err := m.ListWallets(ctx, "owner1")
	if err != nil {
		t.Fatalf("ListWallets failed: %v", err)
	}
	if len(wallets) != 1 {
		t.Fatalf("len(wallets) = %d, want 1", len(wallets))
	}
	if _, ok := m.cache.Get(extra.Address); ok {
		t.Error("deleted wallet keypair still cached")
	}
	if _, err := m.Keypair(ctx, "owner1", extra.Address); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted wallet keypair: got err %v, want ErrNotFound", err)
	}
}

func TestManager_SetDefault_Switches(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	second, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	if err := m.SetDefault(ctx, "owner1", second.Address); err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}

	def, err := m.DefaultWallet(ctx, "owner1")
	if err != nil {
		t.Fatalf("DefaultWallet failed: %v", err)
	}
	if def.Address != second.Address {
		t.Errorf("default = %s, want %s", def.Address, second.Address)
	}

	// Old default can now be deleted
	if err := m.DeleteWallet(ctx, "owner1", first.Address); err != nil {
		t.Errorf("delete former default failed: %v", err)
	}
}

type stubBalanceSource struct {
	balance float64
	err     error
}

func (s *stubBalanceSource) Balance(_ context.Context, _ string) (float64, error) {
	return s.balance, s.err
}

func TestManager_RefreshBalance(t *testing.T) {
	src := &stubBalanceSource{balance: 1.25}
	m := newTestManager(t, func(cfg *ManagerConfig) {
		cfg.Balances = src
	})
	ctx := context.Background()

	record, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}

	got, err := m.RefreshBalance(ctx, "owner1", record.Address)
	if err != nil {
		t.Fatalf("RefreshBalance failed: %v", err)
	}
	if got != 1.25 {
		t.Errorf("balance = %v, want 1.25", got)
	}

	wallets, err := m.ListWallets(ctx, "owner1")
	if err != nil {
		t.Fatalf("ListWallets failed: %v", err)
	}
	if wallets[0].CachedBalance != 1.25 {
		t.Errorf("persisted balance = %v, want 1.25", wallets[0].CachedBalance)
	}

	src.err = errors.New("rpc down")
	if _, err := m.RefreshBalance(ctx, "owner1", record.Address); !errors.Is(err, domain.ErrExternalService) {
		t.Errorf("rpc failure: got err %v, want ErrExternalService", err)
	}
}

func TestManager_Keypair_TamperedRecordFailsClosed(t *testing.T) {
	store := memory.NewWalletStore()
	m := newTestManager(t, func(cfg *ManagerConfig) {
		cfg.Store = store
	})
	ctx := context.Background()

	record, err := m.CreateWallet(ctx, "owner1", "")
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	m.ClearCache()

	// Replace the row with a ciphertext-corrupted copy
	stored, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	stored.ID = "tampered-" + stored.ID
	stored.EncryptedSecret[0] ^= 0xFF
	if err := store.SoftDelete(ctx, record.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if err := store.Insert(ctx, stored); err != nil {
		t.Fatalf("re-insert failed: %v", err)
	}

	if _, err := m.Keypair(ctx, "owner1", record.Address); !errors.Is(err, domain.ErrTamper) {
		t.Errorf("tampered record: got err %v, want ErrTamper", err)
	}
}
