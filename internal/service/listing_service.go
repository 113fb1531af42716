// Package service contains the server-side business logic behind the
// BidSphere API: listing lifecycle, bid recording, and user registration.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// listingEventsChannel is the pub/sub channel for listing lifecycle events.
const listingEventsChannel = "listings"

// CreateListingInput carries the fields a seller provides for a new listing.
type CreateListingInput struct {
	Title         string
	Description   string
	SellerID      string
	StartingPrice float64
	EndDate       time.Time
}

// ListingService manages the listing lifecycle.
type ListingService struct {
	listings domain.ListingStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewListingService creates a ListingService. bus may be nil when event
// fan-out is not wanted.
func NewListingService(listings domain.ListingStore, audit domain.AuditStore, bus domain.SignalBus, logger *slog.Logger) *ListingService {
	return &ListingService{
		listings: listings,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "listing_service")),
	}
}

// Create validates and persists a new listing.
func (s *ListingService) Create(ctx context.Context, in CreateListingInput) (domain.Listing, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Listing{}, fmt.Errorf("service: create listing: title is required")
	}
	if in.SellerID == "" {
		return domain.Listing{}, fmt.Errorf("service: create listing: seller id is required")
	}
	if in.StartingPrice <= 0 {
		return domain.Listing{}, fmt.Errorf("service: create listing: starting price must be positive")
	}
	if !in.EndDate.After(time.Now()) {
		return domain.Listing{}, fmt.Errorf("service: create listing: end date must be in the future")
	}

	listing := domain.Listing{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		SellerID:      in.SellerID,
		StartingPrice: in.StartingPrice,
		EndDate:       in.EndDate.UTC(),
		Status:        domain.ListingStatusActive,
	}

	if err := s.listings.Create(ctx, listing); err != nil {
		return domain.Listing{}, fmt.Errorf("service: create listing: %w", err)
	}

	s.auditLog(ctx, "listing.created", map[string]any{
		"listing_id":     listing.ID,
		"seller_id":      listing.SellerID,
		"starting_price": listing.StartingPrice,
	})
	s.publish(ctx, map[string]any{
		"type":       "listing_created",
		"listing_id": listing.ID,
	})

	s.logger.InfoContext(ctx, "listing created",
		slog.String("listing_id", listing.ID),
		slog.Float64("starting_price", listing.StartingPrice),
	)
	return listing, nil
}

// Get returns a listing by ID.
func (s *ListingService) Get(ctx context.Context, id string) (domain.Listing, error) {
	listing, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("service: get listing: %w", err)
	}
	return listing, nil
}

// ListActive returns a page of active listings.
func (s *ListingService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	listings, err := s.listings.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list active listings: %w", err)
	}
	return listings, nil
}

// CloseExpired transitions every active listing whose end date has passed.
// Listings with at least one bid become sold, the rest become ended. Returns
// the number of listings closed.
func (s *ListingService) CloseExpired(ctx context.Context) (int, error) {
	// Active listings are ordered by end date, so expired ones come first.
	listings, err := s.listings.ListActive(ctx, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("service: close expired: %w", err)
	}

	now := time.Now()
	closed := 0
	for _, l := range listings {
		if l.EndDate.After(now) {
			continue
		}

		status := domain.ListingStatusEnded
		if l.LatestBid != nil {
			status = domain.ListingStatusSold
		}
		if err := s.listings.UpdateStatus(ctx, l.ID, status); err != nil {
			s.logger.WarnContext(ctx, "close expired listing failed",
				slog.String("listing_id", l.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed++

		s.auditLog(ctx, "listing.closed", map[string]any{
			"listing_id": l.ID,
			"status":     string(status),
		})
		s.publish(ctx, map[string]any{
			"type":       "listing_closed",
			"listing_id": l.ID,
			"status":     string(status),
		})
	}
	return closed, nil
}

func (s *ListingService) auditLog(ctx context.Context, event string, detail map[string]any) {
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

func (s *ListingService) publish(ctx context.Context, event map[string]any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, listingEventsChannel, payload); err != nil {
		s.logger.DebugContext(ctx, "publish listing event failed", slog.String("error", err.Error()))
	}
}
