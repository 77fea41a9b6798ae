package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yesnolabs/venue/internal/domain"
)

// bookTTL bounds staleness of a cached book. The engine invalidates on every
// pool mutation, so the TTL only matters when invalidation is lost.
const bookTTL = 5 * time.Second

// BookCache implements domain.OrderBookCache. Aggregated books are stored
// whole as JSON at key "book:{marketID}" with a short TTL.
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(marketID string) string {
	return "book:" + marketID
}

// Set stores an aggregated order book.
func (bc *BookCache) Set(ctx context.Context, book domain.OrderBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", book.MarketID, err)
	}
	if err := bc.rdb.Set(ctx, bookKey(book.MarketID), data, bookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s: %w", book.MarketID, err)
	}
	return nil
}

// Get retrieves a cached order book, returning domain.ErrNotFound on a miss.
func (bc *BookCache) Get(ctx context.Context, marketID string) (domain.OrderBook, error) {
	data, err := bc.rdb.Get(ctx, bookKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBook{}, domain.ErrNotFound
		}
		return domain.OrderBook{}, fmt.Errorf("redis: get book %s: %w", marketID, err)
	}

	var book domain.OrderBook
	if err := json.Unmarshal(data, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: unmarshal book %s: %w", marketID, err)
	}
	return book, nil
}

// Invalidate drops the cached book for a market.
func (bc *BookCache) Invalidate(ctx context.Context, marketID string) error {
	if err := bc.rdb.Del(ctx, bookKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate book %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderBookCache = (*BookCache)(nil)
