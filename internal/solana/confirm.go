package solana

import (
	"context"
	"log"
	"os"
	"time"
)

// DefaultPollInterval is how often the polling fallback queries signature
// statuses when no WebSocket client is available.
const DefaultPollInterval = 2 * time.Second

// Confirmer waits for a submitted transaction to reach a commitment level.
// It prefers the WebSocket signatureSubscribe path and falls back to polling
// getSignatureStatuses when no WS client is configured or the subscription
// fails. The caller bounds the wait through the context deadline.
type Confirmer struct {
	rpc          RPCClient
	ws           WSClient // optional
	pollInterval time.Duration
	logger       *log.Logger
}

// ConfirmerOption configures Confirmer.
type ConfirmerOption func(*Confirmer)

// WithWSClient enables the WebSocket confirmation path.
func WithWSClient(ws WSClient) ConfirmerOption {
	return func(c *Confirmer) {
		c.ws = ws
	}
}

// WithPollInterval overrides the polling fallback interval.
func WithPollInterval(d time.Duration) ConfirmerOption {
	return func(c *Confirmer) {
		c.pollInterval = d
	}
}

// WithConfirmerLogger sets the logger.
func WithConfirmerLogger(l *log.Logger) ConfirmerOption {
	return func(c *Confirmer) {
		c.logger = l
	}
}

// NewConfirmer creates a Confirmer.
func NewConfirmer(rpc RPCClient, opts ...ConfirmerOption) *Confirmer {
	c := &Confirmer{
		rpc:          rpc,
		pollInterval: DefaultPollInterval,
		logger:       log.New(os.Stdout, "[confirm] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitForSignature blocks until the signature reaches the commitment, the
// transaction fails on chain, or the context expires. On context expiry the
// returned error is ctx.Err(); the transaction may still land later.
func (c *Confirmer) WaitForSignature(ctx context.Context, signature, commitment string) (*SignatureNotification, error) {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}

	if c.ws != nil {
		ch, err := c.ws.SubscribeSignature(ctx, signature, commitment)
		if err == nil {
			select {
			case notif, ok := <-ch:
				if ok {
					return &notif, nil
				}
				// WS client closed mid-wait, fall through to polling
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			c.logger.Printf("signature subscribe failed, polling instead: %v", err)
		}
	}

	return c.poll(ctx, signature, commitment)
}

// poll queries getSignatureStatuses until confirmation or context expiry.
func (c *Confirmer) poll(ctx context.Context, signature, commitment string) (*SignatureNotification, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			c.logger.Printf("poll signature %s: %v", signature, err)
		} else if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil || st.Confirmed(commitment) {
				return &SignatureNotification{
					Signature: signature,
					Slot:      int64(st.Slot),
					Err:       st.Err,
				}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
