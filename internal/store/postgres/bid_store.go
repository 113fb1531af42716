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

// BidStore implements domain.BidStore using PostgreSQL.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// Create inserts a new bid. A duplicate transaction hash maps onto
// domain.ErrAlreadyExists; the client retrying a partial failure must not
// double-record a payment.
func (s *BidStore) Create(ctx context.Context, b domain.Bid) error {
	const query = `
		INSERT INTO bids (id, listing_id, user_id, amount, transaction_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_hash) DO NOTHING`

	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, query,
		b.ID, b.ListingID, b.UserID, b.Amount, b.TransactionHash, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bid %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: bid tx %s: %w", b.TransactionHash, domain.ErrAlreadyExists)
	}
	return nil
}

// GetByID returns a bid by ID, or domain.ErrNotFound.
func (s *BidStore) GetByID(ctx context.Context, id string) (domain.Bid, error) {
	const query = `
		SELECT id, listing_id, user_id, amount, transaction_hash, created_at
		FROM bids WHERE id = $1`

	b, err := scanBid(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bid{}, fmt.Errorf("postgres: bid %s: %w", id, domain.ErrNotFound)
		}
		return domain.Bid{}, fmt.Errorf("postgres: get bid %s: %w", id, err)
	}
	return b, nil
}

// ListByListing returns a listing's bids, newest first.
func (s *BidStore) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error) {
	const base = `
		SELECT id, listing_id, user_id, amount, transaction_hash, created_at
		FROM bids WHERE listing_id = $1
		ORDER BY created_at DESC`
	return s.list(ctx, base, listingID, opts)
}

// ListByUser returns a user's bids, newest first.
func (s *BidStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bid, error) {
	const base = `
		SELECT id, listing_id, user_id, amount, transaction_hash, created_at
		FROM bids WHERE user_id = $1
		ORDER BY created_at DESC`
	return s.list(ctx, base, userID, opts)
}

func (s *BidStore) list(ctx context.Context, base, key string, opts domain.ListOpts) ([]domain.Bid, error) {
	query := base
	args := []any{key}

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
		return nil, fmt.Errorf("postgres: list bids: %w", err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", err)
	}
	return bids, nil
}

// ListBefore returns every bid created before the cutoff, oldest first. The
// archiver uses it to export cold data.
func (s *BidStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Bid, error) {
	const query = `
		SELECT id, listing_id, user_id, amount, transaction_hash, created_at
		FROM bids WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids before %s: %w", before, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids before rows: %w", err)
	}
	return bids, nil
}

func scanBid(row pgx.Row) (domain.Bid, error) {
	var b domain.Bid
	err := row.Scan(&b.ID, &b.ListingID, &b.UserID, &b.Amount, &b.TransactionHash, &b.CreatedAt)
	if err != nil {
		return domain.Bid{}, err
	}
	return b, nil
}

// Compile-time interface check.
var _ domain.BidStore = (*BidStore)(nil)
