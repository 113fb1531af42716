package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore persists auction listings.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)
	SetLatestBid(ctx context.Context, listingID string, snap BidSnapshot) error
	UpdateStatus(ctx context.Context, id string, status ListingStatus) error
	Count(ctx context.Context) (int64, error)
}

// BidStore persists recorded bids.
type BidStore interface {
	Create(ctx context.Context, b Bid) error
	GetByID(ctx context.Context, id string) (Bid, error)
	ListByListing(ctx context.Context, listingID string, opts ListOpts) ([]Bid, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bid, error)
	ListBefore(ctx context.Context, before time.Time) ([]Bid, error)
}

// ProfileStore persists user profiles. The client side backs this with a
// local JSON file; the server side backs it with PostgreSQL.
type ProfileStore interface {
	Get(ctx context.Context, id string) (UserProfile, error)
	GetByEmail(ctx context.Context, email string) (UserProfile, error)
	Save(ctx context.Context, p UserProfile) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
