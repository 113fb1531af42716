package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidsphere/bidsphere/internal/domain"
)

func activeListing(id string) domain.Listing {
	return domain.Listing{
		ID:            id,
		Title:         "vintage synth",
		SellerID:      "seller-1",
		StartingPrice: 100,
		Status:        domain.ListingStatusActive,
		EndDate:       time.Now().Add(time.Hour),
	}
}

func validInput() RecordBidInput {
	return RecordBidInput{
		ListingID:       "listing-1",
		UserID:          "user-1",
		Amount:          150,
		TransactionHash: "0xabc",
	}
}

func TestRecordBid(t *testing.T) {
	listings := newMemListings(activeListing("listing-1"))
	bids := &memBids{}
	locks := &fakeLocks{}
	audit := &memAudit{}
	bus := &memBus{}
	svc := NewBidService(bids, listings, locks, audit, bus, testLogger)

	bid, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)
	require.NotEmpty(t, bid.ID)
	require.Equal(t, 150.0, bid.Amount)
	require.Equal(t, "0xabc", bid.TransactionHash)

	// Recording runs under the per-listing lock.
	require.Equal(t, []string{"bid:listing-1"}, locks.keys)

	// The listing's price floor moved.
	l, err := listings.GetByID(context.Background(), "listing-1")
	require.NoError(t, err)
	require.NotNil(t, l.LatestBid)
	require.Equal(t, 150.0, l.LatestBid.BidPrice)

	require.Contains(t, audit.events(), "bid.recorded")

	events := bus.published("bids")
	require.Len(t, events, 1)
	var event map[string]any
	require.NoError(t, json.Unmarshal(events[0], &event))
	require.Equal(t, "bid_recorded", event["type"])
}

func TestRecordBidValidation(t *testing.T) {
	svc := NewBidService(&memBids{}, newMemListings(activeListing("listing-1")), &fakeLocks{}, nil, nil, testLogger)

	tests := []struct {
		name    string
		mutate  func(*RecordBidInput)
		wantErr error
	}{
		{name: "missing_listing_id", mutate: func(in *RecordBidInput) { in.ListingID = "" }},
		{name: "missing_user_id", mutate: func(in *RecordBidInput) { in.UserID = "" }},
		{name: "missing_tx_hash", mutate: func(in *RecordBidInput) { in.TransactionHash = "" }},
		{name: "zero_amount", mutate: func(in *RecordBidInput) { in.Amount = 0 }, wantErr: domain.ErrInvalidBidAmount},
		{name: "negative_amount", mutate: func(in *RecordBidInput) { in.Amount = -5 }, wantErr: domain.ErrInvalidBidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Record(context.Background(), in)
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRecordBidTooLow(t *testing.T) {
	listing := activeListing("listing-1")
	listing.LatestBid = &domain.BidSnapshot{BidPrice: 200, BidDate: time.Now()}
	bids := &memBids{}
	svc := NewBidService(bids, newMemListings(listing), &fakeLocks{}, nil, nil, testLogger)

	in := validInput()
	in.Amount = 200 // equal to the floor, not above it
	_, err := svc.Record(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrBidTooLow)
	require.Empty(t, bids.all())
}

func TestRecordBidClosedListing(t *testing.T) {
	expired := activeListing("listing-1")
	expired.EndDate = time.Now().Add(-time.Minute)
	svc := NewBidService(&memBids{}, newMemListings(expired), &fakeLocks{}, nil, nil, testLogger)

	_, err := svc.Record(context.Background(), validInput())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not open")
}

func TestRecordBidUnknownListing(t *testing.T) {
	svc := NewBidService(&memBids{}, newMemListings(), &fakeLocks{}, nil, nil, testLogger)

	_, err := svc.Record(context.Background(), validInput())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordBidLockContention(t *testing.T) {
	locks := &fakeLocks{err: domain.ErrLockHeld}
	bids := &memBids{}
	svc := NewBidService(bids, newMemListings(activeListing("listing-1")), locks, nil, nil, testLogger)

	_, err := svc.Record(context.Background(), validInput())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.Empty(t, bids.all())
}

// A failed snapshot update does not lose the bid: the row is the source of
// truth and the snapshot is derivable.
func TestRecordBidSurvivesSnapshotFailure(t *testing.T) {
	listings := newMemListings(activeListing("listing-1"))
	listings.snapErr = domain.ErrNotFound
	bids := &memBids{}
	svc := NewBidService(bids, listings, &fakeLocks{}, nil, nil, testLogger)

	bid, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)
	require.Len(t, bids.all(), 1)
	require.Equal(t, bid.ID, bids.all()[0].ID)
}

func TestListBidsByListingAndUser(t *testing.T) {
	bids := &memBids{}
	svc := NewBidService(bids, newMemListings(activeListing("listing-1")), &fakeLocks{}, nil, nil, testLogger)

	for _, in := range []RecordBidInput{
		{ListingID: "listing-1", UserID: "user-1", Amount: 150, TransactionHash: "0x01"},
		{ListingID: "listing-1", UserID: "user-2", Amount: 160, TransactionHash: "0x02"},
	} {
		_, err := svc.Record(context.Background(), in)
		require.NoError(t, err)
	}

	byListing, err := svc.ListByListing(context.Background(), "listing-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, byListing, 2)

	byUser, err := svc.ListByUser(context.Background(), "user-2", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, 160.0, byUser[0].Amount)
}
