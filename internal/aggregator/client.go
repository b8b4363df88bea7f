// Package aggregator consumes a Jupiter-shaped quote/swap HTTP API. Routes
// are time-sensitive, so calls are single-attempt: a failed quote aborts the
// trade rather than retrying into a stale price.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-trade-engine/internal/domain"
)

// DefaultTimeout bounds quote and swap-build requests.
const DefaultTimeout = 15 * time.Second

// Client talks to the quote aggregator.
type Client struct {
	endpoint string
	client   *http.Client
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

// NewClient creates an aggregator client for the given base endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Route is a priced swap route. Raw carries the aggregator's full quote
// response; it is passed back verbatim when building the swap transaction.
type Route struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	OutputDecimals int
	PriceImpactPct float64
	Raw            json.RawMessage
}

// quoteResponse is the consumed subset of the aggregator's quote shape.
// Amount fields arrive as decimal strings.
type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	OutputDecimals int    `json:"outputDecimals"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// Quote requests the best route for swapping amount raw units of inputMint
// into outputMint. Non-2xx responses map to ErrExternalService; quotes are
// never retried.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Route, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: quote amount must be positive", domain.ErrValidation)
	}

	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := c.do(ctx, http.MethodGet, c.endpoint+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed quote response: %v", domain.ErrExternalService, err)
	}

	route := &Route{
		InputMint:      resp.InputMint,
		OutputMint:     resp.OutputMint,
		OutputDecimals: resp.OutputDecimals,
		Raw:            body,
	}
	if route.InputMint == "" {
		route.InputMint = inputMint
	}
	if route.OutputMint == "" {
		route.OutputMint = outputMint
	}

	if route.InAmount, err = parseAmount(resp.InAmount); err != nil {
		route.InAmount = amount
	}
	if route.OutAmount, err = parseAmount(resp.OutAmount); err != nil {
		return nil, fmt.Errorf("%w: quote missing outAmount", domain.ErrExternalService)
	}
	if resp.PriceImpactPct != "" {
		route.PriceImpactPct, _ = strconv.ParseFloat(resp.PriceImpactPct, 64)
	}

	return route, nil
}

// swapRequest is the consumed swap-build shape.
type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildSwap asks the aggregator to build an unsigned transaction for the
// route, payable and signable by signerPublicKey.
func (c *Client) BuildSwap(ctx context.Context, route *Route, signerPublicKey string, priorityFeeLamports uint64) (string, error) {
	if route == nil || len(route.Raw) == 0 {
		return "", fmt.Errorf("%w: route is required", domain.ErrValidation)
	}

	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:             route.Raw,
		UserPublicKey:             signerPublicKey,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.endpoint+"/swap", reqBody)
	if err != nil {
		return "", err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: malformed swap response: %v", domain.ErrExternalService, err)
	}
	if resp.SwapTransaction == "" {
		return "", fmt.Errorf("%w: swap response missing transaction", domain.ErrExternalService)
	}

	return resp.SwapTransaction, nil
}

// do performs a single-attempt HTTP request.
func (c *Client) do(ctx context.Context, method, reqURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregator request: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read aggregator response: %v", domain.ErrExternalService, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: aggregator status %d: %s", domain.ErrExternalService, resp.StatusCode, truncate(respBody, 200))
	}

	return respBody, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseUint(s, 10, 64)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
