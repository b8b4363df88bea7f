package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature subscribes to the confirmation of one signature.
	// The returned channel delivers at most one notification; the server
	// cancels the subscription after it fires.
	SubscribeSignature(ctx context.Context, signature, commitment string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification reports that a subscribed signature reached the
// requested commitment. A non-nil Err means the transaction failed on chain.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}
