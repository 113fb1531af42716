package pricefeed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bidsphere/bidsphere/internal/domain"
)

// ratePair is the cache key for the ETH/USD conversion rate.
const ratePair = "eth_usd"

// CachedSource wraps a RateSource with a shared rate cache so repeated
// balance checks within the TTL do not hammer the upstream feed. Cache
// failures are non-fatal: the wrapped source is always the fallback path.
type CachedSource struct {
	src    RateSource
	cache  domain.RateCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource creates a cache-backed rate source.
func NewCachedSource(src RateSource, cache domain.RateCache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{
		src:    src,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "pricefeed_cache")),
	}
}

// USDRate returns the cached rate when fresh, otherwise fetches from the
// upstream source and refreshes the cache.
func (c *CachedSource) USDRate(ctx context.Context) (float64, error) {
	rate, err := c.cache.GetRate(ctx, ratePair)
	if err == nil && rate > 0 {
		return rate, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.logger.DebugContext(ctx, "rate cache read failed", slog.String("error", err.Error()))
	}

	rate, err = c.src.USDRate(ctx)
	if err != nil {
		return 0, err
	}

	if setErr := c.cache.SetRate(ctx, ratePair, rate, c.ttl); setErr != nil {
		c.logger.DebugContext(ctx, "rate cache write failed", slog.String("error", setErr.Error()))
	}
	return rate, nil
}

// Compile-time interface check.
var _ RateSource = (*CachedSource)(nil)
