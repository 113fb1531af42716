package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Create inserts a new listing.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (
			id, title, description, seller_id, starting_price,
			latest_bid_price, latest_bid_date, end_date, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	var bidPrice *float64
	var bidDate *time.Time
	if l.LatestBid != nil {
		bidPrice = &l.LatestBid.BidPrice
		bidDate = &l.LatestBid.BidDate
	}

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.Title, l.Description, l.SellerID, l.StartingPrice,
		bidPrice, bidDate, l.EndDate, string(l.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: create listing %s: %w", l.ID, err)
	}
	return nil
}

// GetByID returns a listing by ID, or domain.ErrNotFound.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	const query = `
		SELECT id, title, description, seller_id, starting_price,
		       latest_bid_price, latest_bid_date, end_date, status,
		       created_at, updated_at
		FROM listings WHERE id = $1`

	l, err := scanListing(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("postgres: listing %s: %w", id, domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}

// ListActive returns active listings ordered by soonest end date.
func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `
		SELECT id, title, description, seller_id, starting_price,
		       latest_bid_price, latest_bid_date, end_date, status,
		       created_at, updated_at
		FROM listings
		WHERE status = 'active' AND end_date > NOW()
		ORDER BY end_date ASC`
	args := []any{}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active listings rows: %w", err)
	}
	return listings, nil
}

// SetLatestBid updates the listing's latest-bid snapshot.
func (s *ListingStore) SetLatestBid(ctx context.Context, listingID string, snap domain.BidSnapshot) error {
	const query = `
		UPDATE listings
		SET latest_bid_price = $2, latest_bid_date = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, listingID, snap.BidPrice, snap.BidDate)
	if err != nil {
		return fmt.Errorf("postgres: set latest bid for %s: %w", listingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: listing %s: %w", listingID, domain.ErrNotFound)
	}
	return nil
}

// UpdateStatus transitions a listing's lifecycle status.
func (s *ListingStore) UpdateStatus(ctx context.Context, id string, status domain.ListingStatus) error {
	const query = `UPDATE listings SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update listing %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: listing %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Count returns the total number of listings.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return n, nil
}

// scanListing scans a single listing row.
func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	var status string
	var bidPrice *float64
	var bidDate *time.Time

	err := row.Scan(
		&l.ID, &l.Title, &l.Description, &l.SellerID, &l.StartingPrice,
		&bidPrice, &bidDate, &l.EndDate, &status,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.Status = domain.ListingStatus(status)
	if bidPrice != nil && bidDate != nil {
		l.LatestBid = &domain.BidSnapshot{BidPrice: *bidPrice, BidDate: *bidDate}
	}
	return l, nil
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
