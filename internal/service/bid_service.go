package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// bidEventsChannel is the pub/sub channel for recorded-bid events.
const bidEventsChannel = "bids"

// bidLockTTL bounds how long a listing's recording lock can be held if the
// holder dies mid-operation.
const bidLockTTL = 10 * time.Second

// RecordBidInput is the payload of a bid recording request. Amount is the
// integer floor the client sends; TransactionHash identifies the on-chain
// escrow payment backing the bid.
type RecordBidInput struct {
	ListingID       string
	UserID          string
	Amount          int64
	TransactionHash string
}

// BidService records bids that have been paid on chain. Recording runs under
// a per-listing distributed lock: the read of the current minimum bid and the
// write of the new latest bid must not interleave between two clients.
type BidService struct {
	bids     domain.BidStore
	listings domain.ListingStore
	locks    domain.LockManager
	audit    domain.AuditStore
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewBidService creates a BidService. bus may be nil.
func NewBidService(
	bids domain.BidStore,
	listings domain.ListingStore,
	locks domain.LockManager,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *BidService {
	return &BidService{
		bids:     bids,
		listings: listings,
		locks:    locks,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "bid_service")),
	}
}

// Record validates and persists a bid, then updates the listing's latest-bid
// snapshot. Returns domain.ErrLockHeld when another bid on the same listing
// is being recorded; the client should retry.
func (s *BidService) Record(ctx context.Context, in RecordBidInput) (domain.Bid, error) {
	if in.ListingID == "" || in.UserID == "" {
		return domain.Bid{}, fmt.Errorf("service: record bid: listing id and user id are required")
	}
	if in.TransactionHash == "" {
		return domain.Bid{}, fmt.Errorf("service: record bid: transaction hash is required")
	}
	if in.Amount <= 0 {
		return domain.Bid{}, fmt.Errorf("service: record bid: %w", domain.ErrInvalidBidAmount)
	}

	unlock, err := s.locks.Acquire(ctx, "bid:"+in.ListingID, bidLockTTL)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("service: record bid on %s: %w", in.ListingID, err)
	}
	defer unlock()

	listing, err := s.listings.GetByID(ctx, in.ListingID)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("service: record bid: %w", err)
	}
	if !listing.IsOpen(time.Now()) {
		return domain.Bid{}, fmt.Errorf("service: record bid: listing %s is not open", in.ListingID)
	}

	amount := float64(in.Amount)
	if !listing.AcceptsBid(amount) {
		return domain.Bid{}, fmt.Errorf(
			"service: record bid: amount %d not above current price %.2f: %w",
			in.Amount, listing.MinimumBid(), domain.ErrBidTooLow,
		)
	}

	bid := domain.Bid{
		ID:              uuid.NewString(),
		ListingID:       in.ListingID,
		UserID:          in.UserID,
		Amount:          amount,
		TransactionHash: in.TransactionHash,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.bids.Create(ctx, bid); err != nil {
		return domain.Bid{}, fmt.Errorf("service: record bid: %w", err)
	}

	snap := domain.BidSnapshot{BidPrice: bid.Amount, BidDate: bid.CreatedAt}
	if err := s.listings.SetLatestBid(ctx, in.ListingID, snap); err != nil {
		// The bid row exists; the snapshot is derivable, so log and carry on.
		s.logger.ErrorContext(ctx, "latest bid snapshot update failed",
			slog.String("listing_id", in.ListingID),
			slog.String("bid_id", bid.ID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "bid.recorded", map[string]any{
		"bid_id":     bid.ID,
		"listing_id": bid.ListingID,
		"user_id":    bid.UserID,
		"amount":     bid.Amount,
		"tx_hash":    bid.TransactionHash,
	})
	s.publish(ctx, map[string]any{
		"type":       "bid_recorded",
		"bid_id":     bid.ID,
		"listing_id": bid.ListingID,
		"amount":     bid.Amount,
	})

	s.logger.InfoContext(ctx, "bid recorded",
		slog.String("bid_id", bid.ID),
		slog.String("listing_id", bid.ListingID),
		slog.Float64("amount", bid.Amount),
	)
	return bid, nil
}

// ListByListing returns a listing's bids, newest first.
func (s *BidService) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error) {
	bids, err := s.bids.ListByListing(ctx, listingID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list bids for %s: %w", listingID, err)
	}
	return bids, nil
}

// ListByUser returns a user's bids, newest first.
func (s *BidService) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bid, error) {
	bids, err := s.bids.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list bids by user %s: %w", userID, err)
	}
	return bids, nil
}

func (s *BidService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BidService) publish(ctx context.Context, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, bidEventsChannel, payload); err != nil {
		s.logger.DebugContext(ctx, "publish bid event failed", slog.String("error", err.Error()))
	}
}
