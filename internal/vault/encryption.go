// Package vault provides authenticated encryption for custodial key material.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/scrypt"

	"solana-trade-engine/internal/domain"
)

// KeySize is the required master key length in bytes (AES-256).
const KeySize = 32

// GCM sizes. The tag is stored separately from the ciphertext so the row
// shape makes tampering with either detectable.
const (
	NonceSize = 12
	TagSize   = 16
)

// minDistinctKeyBytes rejects degenerate keys (all-zero, repeated patterns).
const minDistinctKeyBytes = 8

// DefaultDerivedKeyTTL bounds how long a scrypt-derived key may be served
// from cache before re-derivation.
const DefaultDerivedKeyTTL = 30 * time.Minute

// scrypt parameters (interactive profile).
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// SourceKey resolves the master key following the fixed priority order:
// direct hex value, then key file. There is no insecure default; both
// sources missing is a hard failure.
func SourceKey(directHex, file string) ([]byte, error) {
	if directHex != "" {
		key, err := hex.DecodeString(strings.TrimSpace(directHex))
		if err != nil {
			return nil, fmt.Errorf("%w: master key is not valid hex", domain.ErrValidation)
		}
		return key, nil
	}
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read master key file: %w", err)
		}
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("%w: master key file is not valid hex", domain.ErrValidation)
		}
		return key, nil
	}
	return nil, fmt.Errorf("%w: no master key configured", domain.ErrValidation)
}

// ValidateKey checks length and rejects low-entropy keys.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: master key must be %d bytes, got %d", domain.ErrValidation, KeySize, len(key))
	}
	seen := make(map[byte]struct{}, len(key))
	for _, b := range key {
		seen[b] = struct{}{}
	}
	if len(seen) < minDistinctKeyBytes {
		return fmt.Errorf("%w: master key entropy too low", domain.ErrValidation)
	}
	return nil
}

type derivedEntry struct {
	key       []byte
	expiresAt time.Time
}

// Service encrypts and decrypts secrets with AES-256-GCM under a single
// master key. Rotation swaps the key atomically and clears the derived-key
// cache; it does not re-encrypt existing records.
type Service struct {
	mu        sync.RWMutex
	key       []byte
	destroyed bool

	derivedTTL time.Duration
	derivedMu  sync.Mutex
	derived    map[string]derivedEntry
}

// Option configures Service.
type Option func(*Service)

// WithDerivedKeyTTL overrides the derived-key cache TTL.
func WithDerivedKeyTTL(d time.Duration) Option {
	return func(s *Service) {
		s.derivedTTL = d
	}
}

// NewService creates a Service from validated key material.
func NewService(key []byte, opts ...Option) (*Service, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	s := &Service{
		key:        append([]byte(nil), key...),
		derivedTTL: DefaultDerivedKeyTTL,
		derived:    make(map[string]derivedEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Encrypt seals plaintext with a fresh random nonce.
// Returns ciphertext, nonce and authentication tag separately.
func (s *Service) Encrypt(plaintext []byte) (ciphertext, iv, tag []byte, err error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagSize
	return sealed[:split], iv, sealed[split:], nil
}

// Decrypt opens ciphertext and verifies the authentication tag. A tag
// mismatch (tamper or wrong key) fails closed with ErrTamper.
func (s *Service) Decrypt(ciphertext, iv, tag []byte) ([]byte, error) {
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", domain.ErrValidation, len(iv))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: bad tag length %d", domain.ErrValidation, len(tag))
	}

	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, domain.ErrTamper
	}
	return plaintext, nil
}

// DeriveKey derives a 256-bit key from a passphrase and salt via scrypt.
// Derivation results are cached for latency only; entries expire after the
// configured TTL and the cache is cleared on rotation.
func (s *Service) DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", domain.ErrValidation)
	}
	if len(salt) == 0 {
		salt = []byte("solana-trade-engine.v1")
	}

	cacheKey := cacheKeyFor(passphrase, salt)
	now := time.Now()

	s.derivedMu.Lock()
	if e, ok := s.derived[cacheKey]; ok && now.Before(e.expiresAt) {
		key := append([]byte(nil), e.key...)
		s.derivedMu.Unlock()
		return key, nil
	}
	// Miss or expired: sweep every stale entry so distinct passphrase/salt
	// pairs cannot grow the map without bound.
	s.evictExpiredLocked(now)
	s.derivedMu.Unlock()

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	s.derivedMu.Lock()
	s.derived[cacheKey] = derivedEntry{
		key:       append([]byte(nil), key...),
		expiresAt: now.Add(s.derivedTTL),
	}
	s.derivedMu.Unlock()

	return key, nil
}

// RotateKey swaps the active master key and clears all derived-key caches.
// Existing records stay encrypted under the previous key; re-encryption is
// a separate migration concern.
func (s *Service) RotateKey(newKeyHex string) error {
	newKey, err := hex.DecodeString(strings.TrimSpace(newKeyHex))
	if err != nil {
		return fmt.Errorf("%w: rotation key is not valid hex", domain.ErrValidation)
	}
	if err := ValidateKey(newKey); err != nil {
		return err
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return fmt.Errorf("%w: encryption service destroyed", domain.ErrValidation)
	}
	zero(s.key)
	s.key = newKey
	s.mu.Unlock()

	s.derivedMu.Lock()
	for k, e := range s.derived {
		zero(e.key)
		delete(s.derived, k)
	}
	s.derivedMu.Unlock()

	return nil
}

// Destroy zeroizes the in-memory key buffer and all cached derived keys.
// The service is unusable afterwards.
func (s *Service) Destroy() {
	s.mu.Lock()
	zero(s.key)
	s.key = nil
	s.destroyed = true
	s.mu.Unlock()

	s.derivedMu.Lock()
	for k, e := range s.derived {
		zero(e.key)
		delete(s.derived, k)
	}
	s.derivedMu.Unlock()
}

// evictExpiredLocked zeroizes and drops expired derived keys. Callers hold
// derivedMu.
func (s *Service) evictExpiredLocked(now time.Time) {
	for k, e := range s.derived {
		if !now.Before(e.expiresAt) {
			zero(e.key)
			delete(s.derived, k)
		}
	}
}

// aead builds a GCM instance for the current key.
func (s *Service) aead() (cipher.AEAD, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.key == nil {
		return nil, fmt.Errorf("%w: encryption service destroyed", domain.ErrValidation)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// cacheKeyFor hashes passphrase+salt so raw passphrases never sit in map keys.
func cacheKeyFor(passphrase string, salt []byte) string {
	h := sha256.New()
	h.Write([]byte(passphrase))
	h.Write([]byte{0})
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil))
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
