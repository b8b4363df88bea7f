package stub

import (
	"context"
	"sync"

	"solana-trade-engine/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Behaviors are
// programmed through exported fields; submitted transactions are recorded.
type RPCClient struct {
	mu sync.Mutex

	Blockhash     *solana.Blockhash
	BlockhashErr  error
	SendSignature string
	SendErr       error
	Balances      map[string]uint64
	TokenBalances map[string]*solana.TokenBalance // keyed by owner + "/" + mint
	Statuses      map[string]*solana.SignatureStatus
	Transactions  map[string]*solana.Transaction

	// SentTransactions records every base64 payload passed to SendTransaction.
	SentTransactions []string
}

// NewRPCClient creates a stub with a usable default blockhash.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Blockhash: &solana.Blockhash{
			Blockhash:            "GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W",
			LastValidBlockHeight: 100,
		},
		SendSignature: "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]*solana.TokenBalance),
		Statuses:      make(map[string]*solana.SignatureStatus),
		Transactions:  make(map[string]*solana.Transaction),
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetLatestBlockhash returns the programmed blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ string) (*solana.Blockhash, error) {
	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	return c.Blockhash, nil
}

// SendTransaction records the payload and returns the programmed signature.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	c.SentTransactions = append(c.SentTransactions, txBase64)
	c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	return c.SendSignature, nil
}

// GetBalance returns the programmed lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	return c.Balances[address], nil
}

// GetTokenBalance returns the programmed token balance, or zero.
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (*solana.TokenBalance, error) {
	if tb, ok := c.TokenBalances[owner+"/"+mint]; ok {
		return tb, nil
	}
	return &solana.TokenBalance{Mint: mint}, nil
}

// GetSignatureStatuses returns programmed statuses, index-aligned.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	statuses := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		statuses[i] = c.Statuses[sig]
	}
	return statuses, nil
}

// GetTransaction returns the programmed transaction, or nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	return c.Transactions[signature], nil
}

// SentCount returns how many transactions were submitted.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.SentTransactions)
}

// WSClient implements solana.WSClient for testing. Notify delivers a
// confirmation to the matching pending subscription.
type WSClient struct {
	mu      sync.Mutex
	pending map[string]chan solana.SignatureNotification

	SubscribeErr error
}

// NewWSClient creates a stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{
		pending: make(map[string]chan solana.SignatureNotification),
	}
}

var _ solana.WSClient = (*WSClient)(nil)

// SubscribeSignature registers a pending one-shot subscription.
func (c *WSClient) SubscribeSignature(_ context.Context, signature, _ string) (<-chan solana.SignatureNotification, error) {
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	ch := make(chan solana.SignatureNotification, 1)
	c.mu.Lock()
	c.pending[signature] = ch
	c.mu.Unlock()
	return ch, nil
}

// Notify fires the pending subscription for a signature.
func (c *WSClient) Notify(signature string, errValue interface{}) {
	c.mu.Lock()
	ch, ok := c.pending[signature]
	delete(c.pending, signature)
	c.mu.Unlock()

	if ok {
		ch <- solana.SignatureNotification{Signature: signature, Err: errValue}
		close(ch)
	}
}

// Close is a no-op.
func (c *WSClient) Close() error {
	return nil
}
