// Package pricefeed provides the external fiat conversion rate for the
// chain's native currency, with an optional cache layer in front.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RateSource yields the current ETH/USD conversion rate.
type RateSource interface {
	USDRate(ctx context.Context) (float64, error)
}

// Client queries the CoinGecko simple-price endpoint for the ETH/USD rate.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price feed client.
//
// baseURL is the simple-price endpoint, e.g.
// "https://api.coingecko.com/api/v3/simple/price".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// USDRate fetches the current ETH/USD rate. Callers decide the fallback
// policy; this client reports failures honestly.
func (c *Client) USDRate(ctx context.Context) (float64, error) {
	params := url.Values{}
	params.Set("ids", "ethereum")
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("pricefeed: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("pricefeed: decode response: %w", err)
	}

	rate, ok := payload["ethereum"]["usd"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("pricefeed: response missing ethereum/usd rate")
	}
	return rate, nil
}

// Compile-time interface check.
var _ RateSource = (*Client)(nil)
