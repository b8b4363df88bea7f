package domain

import "errors"

// Engine error taxonomy. Callers classify failures with errors.Is; messages
// wrapped around these sentinels must stay human-readable and must never
// contain key material or cipher internals.
var (
	// ErrValidation indicates malformed input: bad key encoding, bad amount,
	// out-of-range slippage.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a wallet/owner mismatch or a missing record.
	ErrNotFound = errors.New("not found")

	// ErrLimitExceeded indicates the per-owner active wallet cap was reached.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrTamper indicates an authentication-tag mismatch on decrypt.
	// Fatal for the operation: decryption fails closed, never returns
	// corrupted plaintext.
	ErrTamper = errors.New("ciphertext authentication failed")

	// ErrExternalService indicates a non-2xx or transport failure from the
	// aggregator, relay or price source. Aborts quote/build attempts;
	// triggers direct-broadcast fallback for relay submission.
	ErrExternalService = errors.New("external service error")

	// ErrPersistence indicates a ledger/wallet row write failure. Logged,
	// never surfaced as a trade failure once the chain-side effect happened.
	ErrPersistence = errors.New("persistence error")
)
