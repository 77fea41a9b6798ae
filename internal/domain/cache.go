package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest mid prices per market.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID string, yesPrice float64, ts time.Time) error
	GetPrice(ctx context.Context, marketID string) (float64, time.Time, error)
}

// OrderBookCache stores recently aggregated order books.
type OrderBookCache interface {
	Set(ctx context.Context, book OrderBook) error
	Get(ctx context.Context, marketID string) (OrderBook, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed rate limiting for the trading API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking for singleton background jobs
// such as the market-close sweeper.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus fans out engine events (trades, price moves, resolutions) to
// subscribers such as the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error)
}
