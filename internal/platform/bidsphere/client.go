// Package bidsphere is the REST client for the BidSphere backend API:
// listing reads, bid recording, and user registration.
package bidsphere

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

	"github.com/bidsphere/bidsphere/internal/domain"
)

// Client is the HTTP client for the BidSphere backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a backend API client.
//
// baseURL is the API root, e.g. "https://api.bidsphere.io". apiKey may be
// empty for unauthenticated deployments.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetListing returns a single listing by its ID.
func (c *Client) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	body, err := c.doGet(ctx, "/api/listing/"+url.PathEscape(id))
	if err != nil {
		return domain.Listing{}, fmt.Errorf("bidsphere: get listing %s: %w", id, err)
	}

	var listing APIListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return domain.Listing{}, fmt.Errorf("bidsphere: decode listing: %w", err)
	}
	return listing.ToDomain(), nil
}

// ListListings returns a page of active listings.
func (c *Client) ListListings(ctx context.Context, limit, offset int) ([]domain.Listing, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := c.doGet(ctx, "/api/listings?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("bidsphere: list listings: %w", err)
	}

	var listings []APIListing
	if err := json.Unmarshal(body, &listings); err != nil {
		return nil, fmt.Errorf("bidsphere: decode listings: %w", err)
	}

	out := make([]domain.Listing, 0, len(listings))
	for i := range listings {
		out = append(out, listings[i].ToDomain())
	}
	return out, nil
}

// CreateBid records a bid that has already been paid on chain. A non-2xx
// response maps onto domain.ErrBackendRecording so callers can distinguish
// the partial-failure case.
func (c *Client) CreateBid(ctx context.Context, req CreateBidRequest) (domain.Bid, error) {
	body, err := c.doPost(ctx, "/api/bid/create", req)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("bidsphere: create bid: %w: %w", domain.ErrBackendRecording, err)
	}

	var bid APIBid
	if err := json.Unmarshal(body, &bid); err != nil {
		return domain.Bid{}, fmt.Errorf("bidsphere: decode bid: %w: %w", domain.ErrBackendRecording, err)
	}
	return bid.ToDomain(), nil
}

// ListBids returns the bids recorded for a listing, newest first.
func (c *Client) ListBids(ctx context.Context, listingID string, limit, offset int) ([]domain.Bid, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := c.doGet(ctx, "/api/bid/listing/"+url.PathEscape(listingID)+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("bidsphere: list bids for %s: %w", listingID, err)
	}

	var bids []APIBid
	if err := json.Unmarshal(body, &bids); err != nil {
		return nil, fmt.Errorf("bidsphere: decode bids: %w", err)
	}

	out := make([]domain.Bid, 0, len(bids))
	for i := range bids {
		out = append(out, bids[i].ToDomain())
	}
	return out, nil
}

// RegisterUser creates a user profile on the backend.
func (c *Client) RegisterUser(ctx context.Context, req RegisterUserRequest) (domain.UserProfile, error) {
	body, err := c.doPost(ctx, "/api/user/register", req)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("bidsphere: register user: %w", err)
	}

	var user APIUser
	if err := json.Unmarshal(body, &user); err != nil {
		return domain.UserProfile{}, fmt.Errorf("bidsphere: decode user: %w", err)
	}
	return user.ToDomain(), nil
}

// doGet performs a GET request and returns the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// doPost performs a POST request with a JSON payload and returns the
// response body.
func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
