// Package pricing consumes a Jupiter-price-shaped endpoint for best-effort
// USD enrichment. A missing price must never block ledger recording, so
// lookups degrade to a zero price instead of failing.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultTimeout bounds price lookups. Enrichment sits on the trade path's
// bookkeeping tail, so the budget is tight.
const DefaultTimeout = 5 * time.Second

// Source resolves a mint's USD price.
type Source interface {
	UsdPrice(ctx context.Context, mint string) (float64, error)
}

// Client implements Source over HTTP.
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

// NewClient creates a price client for the given base endpoint.
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

var _ Source = (*Client)(nil)

// priceResponse is the consumed subset of the price endpoint's shape.
// Prices arrive as decimal strings keyed by mint.
type priceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// UsdPrice resolves a mint's USD price. Unknown mints return zero without
// error; transport and decode failures are errors the caller may default.
func (c *Client) UsdPrice(ctx context.Context, mint string) (float64, error) {
	q := url.Values{}
	q.Set("ids", mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price status %d", resp.StatusCode)
	}

	var pr priceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, fmt.Errorf("malformed price response: %w", err)
	}

	entry, ok := pr.Data[mint]
	if !ok || entry.Price == "" {
		return 0, nil
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", entry.Price, err)
	}
	return price, nil
}
