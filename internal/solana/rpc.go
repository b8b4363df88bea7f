package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the trade engine.
type RPCClient interface {
	// GetLatestBlockhash retrieves a recent blockhash for transaction building.
	GetLatestBlockhash(ctx context.Context, commitment string) (*Blockhash, error)

	// SendTransaction submits a signed base64-encoded transaction.
	SendTransaction(ctx context.Context, txBase64 string, opts *SendOpts) (string, error)

	// GetBalance retrieves an address's balance in lamports.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenBalance retrieves an owner's balance of a token mint in UI units.
	GetTokenBalance(ctx context.Context, owner, mint string) (*TokenBalance, error)

	// GetSignatureStatuses retrieves confirmation status for signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil when the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Blockhash is the result of getLatestBlockhash.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SendOpts are optional parameters for sendTransaction.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *int
}

// SignatureStatus is one entry of getSignatureStatuses. A nil entry at the
// corresponding index means the cluster does not know the signature.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus string // processed | confirmed | finalized
	Err                interface{}
}

// Confirmed reports whether the status has reached the given commitment.
func (s *SignatureStatus) Confirmed(commitment string) bool {
	if s == nil || s.Err != nil {
		return false
	}
	switch s.ConfirmationStatus {
	case CommitmentFinalized:
		return true
	case CommitmentConfirmed:
		return commitment != CommitmentFinalized
	case CommitmentProcessed:
		return commitment == CommitmentProcessed
	}
	return false
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	Fee         uint64
	LogMessages []string
}
