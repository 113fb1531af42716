package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a ProfileStore backed by the given connection pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Get returns the profile for id, or domain.ErrNotFound.
func (s *ProfileStore) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	const query = `
		SELECT id, name, email, wallet_address, created_at, updated_at
		FROM profiles WHERE id = $1`
	return s.get(ctx, query, id)
}

// GetByEmail returns the profile with the given email, or domain.ErrNotFound.
func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (domain.UserProfile, error) {
	const query = `
		SELECT id, name, email, wallet_address, created_at, updated_at
		FROM profiles WHERE email = $1`
	return s.get(ctx, query, email)
}

func (s *ProfileStore) get(ctx context.Context, query, key string) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&p.ID, &p.Name, &p.Email, &p.WalletAddress, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, fmt.Errorf("postgres: profile %s: %w", key, domain.ErrNotFound)
		}
		return domain.UserProfile{}, fmt.Errorf("postgres: get profile %s: %w", key, err)
	}
	return p, nil
}

// Save inserts or updates a profile.
func (s *ProfileStore) Save(ctx context.Context, p domain.UserProfile) error {
	const query = `
		INSERT INTO profiles (id, name, email, wallet_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			email          = EXCLUDED.email,
			wallet_address = EXCLUDED.wallet_address,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.Email, p.WalletAddress)
	if err != nil {
		return fmt.Errorf("postgres: save profile %s: %w", p.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ProfileStore = (*ProfileStore)(nil)
