package domain

import (
	"context"
	"time"
)

// RateCache stores the latest fiat conversion rate per currency pair.
type RateCache interface {
	SetRate(ctx context.Context, pair string, rate float64, ttl time.Duration) error
	GetRate(ctx context.Context, pair string) (float64, error)
}

// LockManager provides distributed locking. The bid recording path holds a
// per-listing lock so concurrent bids cannot both read the same latest bid.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of bid and listing events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter limits request rates per key. The API server applies it per
// client IP.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
