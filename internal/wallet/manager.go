package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/observability"
	"solana-trade-engine/internal/storage"
	"solana-trade-engine/internal/vault"
)

// DefaultMaxWalletsPerOwner caps active wallets per owner.
const DefaultMaxWalletsPerOwner = 10

// BalanceSource reads the current SOL balance of an address from chain.
type BalanceSource interface {
	Balance(ctx context.Context, address string) (float64, error)
}

// ManagerConfig holds Manager dependencies.
type ManagerConfig struct {
	Store       storage.WalletStore
	Vault       *vault.Service
	Cache       *KeypairCache
	Balances    BalanceSource // optional; RefreshBalance fails without it
	MaxPerOwner int
	Logger      *log.Logger
}

// Manager is the custodial wallet layer: it owns the create/import/export
// lifecycle and is the only component that decrypts secret key material.
// Decrypted keypairs are served through the cache; the plaintext secret
// leaves this package only via ExportWallet.
type Manager struct {
	store       storage.WalletStore
	vault       *vault.Service
	cache       *KeypairCache
	balances    BalanceSource
	maxPerOwner int
	logger      *log.Logger

	decrypts atomic.Uint64
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("wallet store is required")
	}
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault service is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("keypair cache is required")
	}
	if cfg.MaxPerOwner <= 0 {
		cfg.MaxPerOwner = DefaultMaxWalletsPerOwner
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[wallet] ", log.LstdFlags)
	}

	return &Manager{
		store:       cfg.Store,
		vault:       cfg.Vault,
		cache:       cfg.Cache,
		balances:    cfg.Balances,
		maxPerOwner: cfg.MaxPerOwner,
		logger:      cfg.Logger,
	}, nil
}

// CreateWallet generates a fresh keypair, encrypts its secret and persists
// the record. The first active wallet of an owner becomes the default.
func (m *Manager) CreateWallet(ctx context.Context, ownerID, label string) (*domain.WalletRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	count, err := m.store.CountActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count wallets: %w", err)
	}
	if count >= m.maxPerOwner {
		return nil, fmt.Errorf("%w: owner has %d of %d wallets", domain.ErrLimitExceeded, count, m.maxPerOwner)
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	record, err := m.newRecord(ownerID, kp, domain.SecretEncodingBase58, label, count == 0)
	if err != nil {
		return nil, err
	}

	if err := m.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	m.cache.Put(record.Address, kp)
	observability.RecordWalletCreated()
	m.logger.Printf("created wallet %s for owner %s (default=%v)", record.Address, ownerID, record.IsDefault)
	return record, nil
}

// ImportWallet stores an externally generated secret. The secret may be a
// base58 string or a bracketed numeric array; export returns the same shape.
func (m *Manager) ImportWallet(ctx context.Context, ownerID, secretInput, label string) (*domain.WalletRecord, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	secret, encoding, err := ParseSecret(secretInput)
	if err != nil {
		return nil, err
	}
	kp, err := KeypairFromSecret(secret)
	if err != nil {
		return nil, err
	}
	address := kp.Address()

	if _, err := m.store.GetByAddress(ctx, ownerID, address); err == nil {
		return nil, fmt.Errorf("%w: wallet %s already imported", domain.ErrValidation, address)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check duplicate wallet: %w", err)
	}

	count, err := m.store.CountActive(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count wallets: %w", err)
	}
	if count >= m.maxPerOwner {
		return nil, fmt.Errorf("%w: owner has %d of %d wallets", domain.ErrLimitExceeded, count, m.maxPerOwner)
	}

	record, err := m.newRecord(ownerID, kp, encoding, label, count == 0)
	if err != nil {
		return nil, err
	}

	if err := m.store.Insert(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: wallet %s already imported", domain.ErrValidation, address)
		}
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	m.cache.Put(address, kp)
	observability.RecordWalletImported()
	m.logger.Printf("imported wallet %s for owner %s (default=%v)", address, ownerID, record.IsDefault)
	return record, nil
}

// ExportWallet decrypts and returns the secret in its original import
// encoding. Ownership is enforced by the (owner, address) lookup.
func (m *Manager) ExportWallet(ctx context.Context, ownerID, address string) (string, error) {
	record, err := m.getOwned(ctx, ownerID, address)
	if err != nil {
		return "", err
	}

	kp, err := m.decryptRecord(record)
	if err != nil {
		return "", err
	}

	return EncodeSecret(kp.Secret(), record.SecretEncoding)
}

// Keypair returns the signing keypair for an owner's wallet, serving from
// cache when possible. The record is loaded on both paths so ownership and
// active status are always checked; the cache only skips the decrypt.
func (m *Manager) Keypair(ctx context.Context, ownerID, address string) (*Keypair, error) {
	record, err := m.getOwned(ctx, ownerID, address)
	if err != nil {
		return nil, err
	}

	if kp, ok := m.cache.Get(address); ok {
		m.touch(ctx, record.ID)
		return kp, nil
	}

	kp, err := m.decryptRecord(record)
	if err != nil {
		return nil, err
	}

	m.cache.Put(address, kp)
	m.touch(ctx, record.ID)
	return kp, nil
}

// DefaultWallet returns the owner's default active wallet.
func (m *Manager) DefaultWallet(ctx context.Context, ownerID string) (*domain.WalletRecord, error) {
	record, err := m.store.GetDefault(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: owner %s has no default wallet", domain.ErrNotFound, ownerID)
		}
		return nil, fmt.Errorf("get default wallet: %w", err)
	}
	return record, nil
}

// ListWallets returns the owner's active wallets, oldest first.
func (m *Manager) ListWallets(ctx context.Context, ownerID string) ([]*domain.WalletRecord, error) {
	wallets, err := m.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

// SetDefault makes the given wallet the owner's default.
func (m *Manager) SetDefault(ctx context.Context, ownerID, address string) error {
	record, err := m.getOwned(ctx, ownerID, address)
	if err != nil {
		return err
	}

	if err := m.store.SetDefault(ctx, ownerID, record.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: wallet %s", domain.ErrNotFound, address)
		}
		return fmt.Errorf("set default wallet: %w", err)
	}
	return nil
}

// DeleteWallet soft-deletes a wallet and evicts its cached keypair. The
// default wallet cannot be deleted; callers must promote another wallet
// first so an owner with wallets always has a usable default.
func (m *Manager) DeleteWallet(ctx context.Context, ownerID, address string) error {
	record, err := m.getOwned(ctx, ownerID, address)
	if err != nil {
		return err
	}
	if record.IsDefault {
		return fmt.Errorf("%w: cannot delete the default wallet, set another default first", domain.ErrValidation)
	}

	if err := m.store.SoftDelete(ctx, record.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: wallet %s", domain.ErrNotFound, address)
		}
		return fmt.Errorf("delete wallet: %w", err)
	}

	m.cache.Evict(address)
	m.logger.Printf("deleted wallet %s for owner %s", address, ownerID)
	return nil
}

// RefreshBalance reads the wallet's SOL balance from chain and persists it.
func (m *Manager) RefreshBalance(ctx context.Context, ownerID, address string) (float64, error) {
	if m.balances == nil {
		return 0, fmt.Errorf("%w: no balance source configured", domain.ErrExternalService)
	}

	record, err := m.getOwned(ctx, ownerID, address)
	if err != nil {
		return 0, err
	}

	balance, err := m.balances.Balance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch balance: %v", domain.ErrExternalService, err)
	}

	if err := m.store.UpdateBalance(ctx, record.ID, balance); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}
	return balance, nil
}

// ClearCache drops every cached keypair. Security action: all subsequent
// signing re-decrypts from storage.
func (m *Manager) ClearCache() {
	m.cache.Clear()
	m.logger.Printf("keypair cache cleared")
}

// DecryptCount reports how many times a secret was decrypted from storage.
func (m *Manager) DecryptCount() uint64 {
	return m.decrypts.Load()
}

// getOwned loads an owner's active wallet by address, mapping storage
// not-found onto the domain error.
func (m *Manager) getOwned(ctx context.Context, ownerID, address string) (*domain.WalletRecord, error) {
	if ownerID == "" || address == "" {
		return nil, fmt.Errorf("%w: owner id and address are required", domain.ErrValidation)
	}

	record, err := m.store.GetByAddress(ctx, ownerID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: wallet %s", domain.ErrNotFound, address)
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return record, nil
}

// newRecord encrypts the keypair secret and builds the persistence row.
// EncryptedSecret holds ciphertext||tag; the IV is stored alongside.
func (m *Manager) newRecord(ownerID string, kp *Keypair, encoding, label string, isDefault bool) (*domain.WalletRecord, error) {
	ciphertext, iv, tag, err := m.vault.Encrypt(kp.Secret())
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}

	return &domain.WalletRecord{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Address:         kp.Address(),
		EncryptedSecret: append(ciphertext, tag...),
		IV:              iv,
		SecretEncoding:  encoding,
		Label:           label,
		IsDefault:       isDefault,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// decryptRecord opens the stored secret and rebuilds the keypair. The
// derived address must match the record; a mismatch means the row was
// tampered with or encrypted under a different record's material.
func (m *Manager) decryptRecord(record *domain.WalletRecord) (*Keypair, error) {
	if len(record.EncryptedSecret) <= vault.TagSize {
		return nil, fmt.Errorf("%w: encrypted secret too short", domain.ErrTamper)
	}
	split := len(record.EncryptedSecret) - vault.TagSize
	ciphertext := record.EncryptedSecret[:split]
	tag := record.EncryptedSecret[split:]

	secret, err := m.vault.Decrypt(ciphertext, record.IV, tag)
	if err != nil {
		return nil, err
	}

	kp, err := KeypairFromSecret(secret)
	if err != nil {
		return nil, err
	}
	if kp.Address() != record.Address {
		return nil, fmt.Errorf("%w: decrypted key does not match wallet address", domain.ErrTamper)
	}

	m.decrypts.Add(1)
	observability.RecordKeyDecrypt()
	return kp, nil
}

// touch updates last-used best effort; a failure never blocks signing.
func (m *Manager) touch(ctx context.Context, walletID string) {
	if err := m.store.TouchLastUsed(ctx, walletID); err != nil {
		m.logger.Printf("touch wallet %s: %v", walletID, err)
	}
}
