package domain

import "time"

// Secret encodings accepted on import. Export returns the secret in the same
// encoding it was imported with.
const (
	SecretEncodingBase58 = "base58"
	SecretEncodingArray  = "array"
)

// WalletRecord is a persisted custodial wallet. The secret key material is
// stored only in encrypted form; rows are soft-deleted by flipping IsActive.
type WalletRecord struct {
	ID              string // uuid
	OwnerID         string
	Address         string // base58 public key
	EncryptedSecret []byte // AES-GCM ciphertext with appended auth tag
	IV              []byte // GCM nonce used for this record
	SecretEncoding  string // encoding the secret was imported with
	Label           string
	IsDefault       bool
	IsActive        bool
	CachedBalance   float64 // SOL, refreshed opportunistically
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}
