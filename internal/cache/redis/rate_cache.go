package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// RateCache implements domain.RateCache using plain string keys with a TTL.
// Each pair's rate lives at "rate:{pair}"; expiry is the staleness bound, so
// a missing key simply forces a fresh feed fetch.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(pair string) string {
	return "rate:" + pair
}

// SetRate stores the conversion rate for a pair with the given TTL.
func (rc *RateCache) SetRate(ctx context.Context, pair string, rate float64, ttl time.Duration) error {
	val := strconv.FormatFloat(rate, 'f', -1, 64)
	if err := rc.rdb.Set(ctx, rateKey(pair), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", pair, err)
	}
	return nil
}

// GetRate retrieves the conversion rate for a pair. It returns
// domain.ErrNotFound when the key is missing or expired.
func (rc *RateCache) GetRate(ctx context.Context, pair string) (float64, error) {
	val, err := rc.rdb.Get(ctx, rateKey(pair)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: get rate %s: %w", pair, err)
	}

	rate, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse rate %s: %w", pair, err)
	}
	return rate, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
