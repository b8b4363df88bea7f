package solana

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"
)

// fakeStatusRPC serves programmable signature statuses and fails every other
// RPC method.
type fakeStatusRPC struct {
	mu       sync.Mutex
	statuses map[string]*SignatureStatus
	calls    int
}

func (f *fakeStatusRPC) GetSignatureStatuses(_ context.Context, signatures []string) ([]*SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	out := make([]*SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = f.statuses[sig]
	}
	return out, nil
}

func (f *fakeStatusRPC) setStatus(sig string, st *SignatureStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[sig] = st
}

func (f *fakeStatusRPC) GetLatestBlockhash(context.Context, string) (*Blockhash, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStatusRPC) SendTransaction(context.Context, string, *SendOpts) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeStatusRPC) GetBalance(context.Context, string) (uint64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeStatusRPC) GetTokenBalance(context.Context, string, string) (*TokenBalance, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeStatusRPC) GetTransaction(context.Context, string) (*Transaction, error) {
	return nil, errors.New("not implemented")
}

// fakeWS delivers a single canned notification.
type fakeWS struct {
	notif  *SignatureNotification
	subErr error
}

func (f *fakeWS) SubscribeSignature(_ context.Context, signature, _ string) (<-chan SignatureNotification, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan SignatureNotification, 1)
	if f.notif != nil {
		n := *f.notif
		n.Signature = signature
		ch <- n
		close(ch)
	}
	return ch, nil
}

func (f *fakeWS) Close() error { return nil }

func quietLogger() *log.Logger {
	return log.New(discard{}, "", 0)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestConfirmer_WSPath(t *testing.T) {
	rpc := &fakeStatusRPC{statuses: make(map[string]*SignatureStatus)}
	ws := &fakeWS{notif: &SignatureNotification{Slot: 500}}

	c := NewConfirmer(rpc, WithWSClient(ws), WithConfirmerLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	notif, err := c.WaitForSignature(ctx, "sig1", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("WaitForSignature: %v", err)
	}
	if notif.Signature != "sig1" || notif.Slot != 500 {
		t.Errorf("unexpected notification %+v", notif)
	}
	if rpc.calls != 0 {
		t.Errorf("WS path should not poll, got %d status calls", rpc.calls)
	}
}

func TestConfirmer_PollFallbackWhenSubscribeFails(t *testing.T) {
	rpc := &fakeStatusRPC{statuses: map[string]*SignatureStatus{
		"sig1": {Slot: 42, ConfirmationStatus: CommitmentConfirmed},
	}}
	ws := &fakeWS{subErr: errors.New("ws down")}

	c := NewConfirmer(rpc,
		WithWSClient(ws),
		WithPollInterval(5*time.Millisecond),
		WithConfirmerLogger(quietLogger()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	notif, err := c.WaitForSignature(ctx, "sig1", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("WaitForSignature: %v", err)
	}
	if notif.Slot != 42 {
		t.Errorf("expected slot 42, got %d", notif.Slot)
	}
}

func TestConfirmer_PollUntilConfirmed(t *testing.T) {
	rpc := &fakeStatusRPC{statuses: make(map[string]*SignatureStatus)}
	c := NewConfirmer(rpc, WithPollInterval(5*time.Millisecond), WithConfirmerLogger(quietLogger()))

	go func() {
		time.Sleep(20 * time.Millisecond)
		rpc.setStatus("sig1", &SignatureStatus{Slot: 7, ConfirmationStatus: CommitmentFinalized})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	notif, err := c.WaitForSignature(ctx, "sig1", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("WaitForSignature: %v", err)
	}
	if notif.Slot != 7 {
		t.Errorf("expected slot 7, got %d", notif.Slot)
	}
}

func TestConfirmer_OnChainFailureDelivered(t *testing.T) {
	rpc := &fakeStatusRPC{statuses: map[string]*SignatureStatus{
		"sig1": {Slot: 9, ConfirmationStatus: CommitmentConfirmed, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
	}}
	c := NewConfirmer(rpc, WithPollInterval(5*time.Millisecond), WithConfirmerLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	notif, err := c.WaitForSignature(ctx, "sig1", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("WaitForSignature: %v", err)
	}
	if notif.Err == nil {
		t.Error("expected on-chain error in notification")
	}
}

func TestConfirmer_Timeout(t *testing.T) {
	rpc := &fakeStatusRPC{statuses: make(map[string]*SignatureStatus)}
	c := NewConfirmer(rpc, WithPollInterval(5*time.Millisecond), WithConfirmerLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.WaitForSignature(ctx, "neverlands", CommitmentConfirmed)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
