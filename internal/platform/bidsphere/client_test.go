package bidsphere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidsphere/bidsphere/internal/domain"
)

func TestGetListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/listing/listing-1", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"listingId": "listing-1",
			"title": "vintage synth",
			"sellerId": "seller-1",
			"startingPrice": 100,
			"latestBid": {"bidPrice": 150, "bidDate": "2026-08-30T12:00:00Z"},
			"endDate": "2026-09-30T12:00:00Z",
			"status": "active"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	listing, err := c.GetListing(context.Background(), "listing-1")
	require.NoError(t, err)
	require.Equal(t, "listing-1", listing.ID)
	require.Equal(t, domain.ListingStatusActive, listing.Status)
	require.NotNil(t, listing.LatestBid)
	require.Equal(t, 150.0, listing.MinimumBid())
}

func TestGetListingNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).GetListing(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateBid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/bid/create", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateBidRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "listing-1", req.ListingID)
		require.Equal(t, "user-1", req.UserID)
		require.Equal(t, int64(150), req.Amount)
		require.Equal(t, "0xabc", req.TransactionHash)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"bidId": "bid-1",
			"listingId": "listing-1",
			"userId": "user-1",
			"amount": 150,
			"transactionHash": "0xabc"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	bid, err := c.CreateBid(context.Background(), CreateBidRequest{
		ListingID:       "listing-1",
		UserID:          "user-1",
		Amount:          150,
		TransactionHash: "0xabc",
	})
	require.NoError(t, err)
	require.Equal(t, "bid-1", bid.ID)
	require.Equal(t, "0xabc", bid.TransactionHash)
}

// Any recording failure maps onto the sentinel that drives the
// partial-failure path.
func TestCreateBidServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).CreateBid(context.Background(), CreateBidRequest{
		ListingID: "listing-1",
		UserID:    "user-1",
		Amount:    150,
	})
	require.ErrorIs(t, err, domain.ErrBackendRecording)
}

func TestListListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/listings", r.URL.Path)
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		require.Equal(t, "20", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`[{"listingId":"l1","startingPrice":5},{"listingId":"l2","startingPrice":7}]`))
	}))
	defer srv.Close()

	listings, err := NewClient(srv.URL, "", time.Second).ListListings(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	require.Equal(t, "l2", listings[1].ID)
}

func TestRegisterUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/user/register", r.URL.Path)
		_, _ = w.Write([]byte(`{"userId":"user-9","name":"Alex","email":"alex@example.com"}`))
	}))
	defer srv.Close()

	user, err := NewClient(srv.URL, "", time.Second).RegisterUser(context.Background(), RegisterUserRequest{
		Name:  "Alex",
		Email: "alex@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "user-9", user.ID)
}
