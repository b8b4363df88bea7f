package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-trade-engine/internal/domain"
)

// Keypair is an ed25519 signing keypair. The secret half stays inside this
// struct; callers sign through it instead of handling raw bytes.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSecret builds a keypair from raw secret material: a 64-byte
// expanded key (seed || public key, the Solana convention) or a 32-byte seed.
func KeypairFromSecret(secret []byte) (*Keypair, error) {
	switch len(secret) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(append([]byte(nil), secret...))
		derived := ed25519.NewKeyFromSeed(priv.Seed())
		if !derived.Public().(ed25519.PublicKey).Equal(priv.Public().(ed25519.PublicKey)) {
			return nil, fmt.Errorf("%w: secret key public half does not match seed", domain.ErrValidation)
		}
		return &Keypair{priv: priv}, nil
	case ed25519.SeedSize:
		return &Keypair{priv: ed25519.NewKeyFromSeed(secret)}, nil
	default:
		return nil, fmt.Errorf("%w: secret key must be 32 or 64 bytes, got %d", domain.ErrValidation, len(secret))
	}
}

// Address returns the base58-encoded public key.
func (k *Keypair) Address() string {
	return base58.Encode(k.priv.Public().(ed25519.PublicKey))
}

// PublicKey returns the raw 32-byte public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Secret returns the 64-byte expanded secret key.
func (k *Keypair) Secret() []byte {
	return append([]byte(nil), k.priv...)
}

// Sign signs a message with the secret key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// ParseSecret decodes imported secret material. Accepts a bracketed numeric
// array ("[12,34,...]") or a base58 string, and reports which encoding was
// used so export can return the same shape.
func ParseSecret(input string) (secret []byte, encoding string, err error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, "", fmt.Errorf("%w: empty secret", domain.ErrValidation)
	}

	if strings.HasPrefix(trimmed, "[") {
		if !strings.HasSuffix(trimmed, "]") {
			return nil, "", fmt.Errorf("%w: unterminated numeric array", domain.ErrValidation)
		}
		body := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		if body == "" {
			return nil, "", fmt.Errorf("%w: empty numeric array", domain.ErrValidation)
		}
		parts := strings.Split(body, ",")
		secret = make([]byte, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 255 {
				return nil, "", fmt.Errorf("%w: numeric array element %q out of byte range", domain.ErrValidation, strings.TrimSpace(p))
			}
			secret = append(secret, byte(n))
		}
		return secret, domain.SecretEncodingArray, nil
	}

	secret, err = base58.Decode(trimmed)
	if err != nil {
		return nil, "", fmt.Errorf("%w: secret is neither a numeric array nor base58", domain.ErrValidation)
	}
	return secret, domain.SecretEncodingBase58, nil
}

// EncodeSecret renders secret material in the requested encoding.
func EncodeSecret(secret []byte, encoding string) (string, error) {
	switch encoding {
	case domain.SecretEncodingArray:
		parts := make([]string, len(secret))
		for i, b := range secret {
			parts[i] = strconv.Itoa(int(b))
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	case domain.SecretEncodingBase58:
		return base58.Encode(secret), nil
	default:
		return "", fmt.Errorf("%w: unknown secret encoding %q", domain.ErrValidation, encoding)
	}
}

// ValidateAddress checks that an address is 32 base58 bytes on the ed25519
// curve. Program-derived addresses are intentionally rejected: a custodial
// wallet address must correspond to a signable keypair.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: address is not base58", domain.ErrValidation)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: address must decode to 32 bytes, got %d", domain.ErrValidation, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("%w: address is not on the ed25519 curve", domain.ErrValidation)
	}
	return nil
}
