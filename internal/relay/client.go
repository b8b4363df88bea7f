// Package relay submits signed transactions through an MEV-protected bundle
// relay. The relay is an optimization: submit failures trigger the caller's
// direct-broadcast fallback, never trade failure.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"solana-trade-engine/internal/domain"
)

// DefaultTimeout bounds bundle submission requests.
const DefaultTimeout = 10 * time.Second

// authHeader carries the relay credential.
const authHeader = "X-Relay-Auth"

// Client submits transaction bundles to the relay endpoint.
type Client struct {
	endpoint  string
	authUUID  string
	client    *http.Client
	requestID atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a relay client. Both endpoint and credential are
// required; configuration with one but not the other is a startup error
// handled by the config layer.
func NewClient(endpoint, authUUID string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		authUUID: authUUID,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type bundleRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type bundleResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitBundle submits signed base64 transactions as one bundle with the
// given tip and returns the relay's bundle id. Single attempt; any failure
// maps to ErrExternalService so the caller can fall back to direct send.
func (c *Client) SubmitBundle(ctx context.Context, txsBase64 []string, tipLamports uint64) (string, error) {
	if len(txsBase64) == 0 {
		return "", fmt.Errorf("%w: bundle must contain at least one transaction", domain.ErrValidation)
	}

	req := bundleRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "sendBundle",
		Params: []interface{}{
			txsBase64,
			map[string]interface{}{
				"encoding":    "base64",
				"tipLamports": tipLamports,
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal bundle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(authHeader, c.authUUID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: relay request: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read relay response: %v", domain.ErrExternalService, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: relay status %d: %s", domain.ErrExternalService, resp.StatusCode, string(respBody))
	}

	var bundleResp bundleResponse
	if err := json.Unmarshal(respBody, &bundleResp); err != nil {
		return "", fmt.Errorf("%w: malformed relay response: %v", domain.ErrExternalService, err)
	}
	if bundleResp.Error != nil {
		return "", fmt.Errorf("%w: relay error %d: %s", domain.ErrExternalService, bundleResp.Error.Code, bundleResp.Error.Message)
	}
	if bundleResp.Result == "" {
		return "", fmt.Errorf("%w: relay response missing bundle id", domain.ErrExternalService)
	}

	return bundleResp.Result, nil
}
