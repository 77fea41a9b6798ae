// Package book builds the unified order-book view for a market: resting
// limit orders merged with virtual depth synthesized from the AMM pool.
package book

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/yesnolabs/venue/internal/amm"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

const (
	// MaxLevels caps the number of levels returned per side.
	MaxLevels = 5

	// syntheticSteps is how many one-cent price steps away from the current
	// price the aggregator synthesizes AMM depth for.
	syntheticSteps = 5
)

// Aggregator assembles order books from resting orders and pool state.
// Books are cached briefly; any pool mutation invalidates the cache.
type Aggregator struct {
	markets domain.MarketStore
	orders  domain.OrderStore
	cache   domain.OrderBookCache
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator. The cache is optional.
func NewAggregator(markets domain.MarketStore, orders domain.OrderStore, cache domain.OrderBookCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		markets: markets,
		orders:  orders,
		cache:   cache,
		logger:  logger.With(slog.String("component", "book")),
	}
}

// Get returns the order book for a market, serving from cache when fresh.
func (a *Aggregator) Get(ctx context.Context, marketID string) (domain.OrderBook, error) {
	if a.cache != nil {
		if cached, err := a.cache.Get(ctx, marketID); err == nil {
			return cached, nil
		}
	}

	m, err := a.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.OrderBook{}, err
	}
	resting, err := a.orders.ListResting(ctx, marketID)
	if err != nil {
		return domain.OrderBook{}, err
	}

	book := Build(&m, resting)

	if a.cache != nil {
		if err := a.cache.Set(ctx, book); err != nil {
			a.logger.WarnContext(ctx, "book: cache set failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return book, nil
}

// Build assembles the book from a market snapshot and its resting orders.
//
// Bids are YES limit buys grouped by price descending. Asks are NO limit
// buys translated to the equivalent YES sell price (1 - limitPrice) and
// sorted ascending. Remaining quantity per level is amount/limitPrice minus
// filled shares; empty levels are dropped. When the pool holds liquidity,
// AMM virtual depth fills in one-cent levels around the current price that
// no real order occupies, tagged with a zero order count so a synthetic
// level can never masquerade as (or outrank) a real one.
func Build(m *domain.Market, resting []domain.Order) domain.OrderBook {
	pool := amm.FromMarket(m)
	currentPrice := pool.Price(domain.OutcomeYes)

	bidLevels := make(map[float64]*domain.BookLevel)
	askLevels := make(map[float64]*domain.BookLevel)

	for i := range resting {
		o := &resting[i]
		if !o.Resting() || o.LimitPrice == nil {
			continue
		}
		price := *o.LimitPrice
		if price <= 0 || price >= 1 {
			continue
		}

		remaining := o.RemainingShares()
		if remaining <= 0 {
			continue
		}
		remainingNotional := o.Amount - money.FromDollars(o.FilledShares*price)
		if remainingNotional < 0 {
			remainingNotional = 0
		}

		side := bidLevels
		levelPrice := price
		if o.Outcome == domain.OutcomeNo {
			side = askLevels
			levelPrice = roundPrice(1 - price)
		}

		if lvl, ok := side[levelPrice]; ok {
			lvl.Quantity += remaining
			lvl.Notional += remainingNotional
			lvl.OrderCount++
		} else {
			side[levelPrice] = &domain.BookLevel{
				Price:      levelPrice,
				Quantity:   remaining,
				Notional:   remainingNotional,
				OrderCount: 1,
			}
		}
	}

	// Synthesize AMM depth at vacant levels. The depth at a level is the
	// notional the pool absorbs before the price reaches it, under the
	// venue's constant-sum reserve convention.
	if pool.Total() > 0 {
		for i := 1; i <= syntheticSteps; i++ {
			step := float64(i) / 100

			bidPrice := roundPrice(currentPrice - step)
			if bidPrice > 0 && bidPrice < 1 {
				if _, taken := bidLevels[bidPrice]; !taken {
					if lvl, ok := syntheticLevel(pool, bidPrice, false); ok {
						bidLevels[bidPrice] = &lvl
					}
				}
			}

			askPrice := roundPrice(currentPrice + step)
			if askPrice > 0 && askPrice < 1 {
				if _, taken := askLevels[askPrice]; !taken {
					if lvl, ok := syntheticLevel(pool, askPrice, true); ok {
						askLevels[askPrice] = &lvl
					}
				}
			}
		}
	}

	bids := flatten(bidLevels, func(a, b float64) bool { return a > b })
	asks := flatten(askLevels, func(a, b float64) bool { return a < b })

	spread := 0.0
	if len(bids) > 0 && len(asks) > 0 {
		spread = math.Max(0, asks[0].Price-bids[0].Price)
	}

	return domain.OrderBook{
		MarketID:     m.ID,
		Bids:         bids,
		Asks:         asks,
		Spread:       spread,
		CurrentPrice: currentPrice,
		GeneratedAt:  time.Now().UTC(),
	}
}

// syntheticLevel computes the AMM depth entry at a target YES price. For an
// ask (price above current) the depth is the YES buy notional that moves
// the pool price up to the target; for a bid the depth is the YES sell
// notional that moves it down to the target.
func syntheticLevel(pool amm.Pool, target float64, ask bool) (domain.BookLevel, bool) {
	yes := pool.Yes.Dollars()
	total := pool.Total().Dollars()

	var notional float64
	if ask {
		// (yes + n) / (total + n) = target  =>  n = (target*total - yes) / (1 - target)
		notional = (target*total - yes) / (1 - target)
	} else {
		// (yes - n) / (total - n) = target  =>  n = (yes - target*total) / (1 - target)
		notional = (yes - target*total) / (1 - target)
	}
	if notional <= 0 || math.IsInf(notional, 0) || math.IsNaN(notional) {
		return domain.BookLevel{}, false
	}

	return domain.BookLevel{
		Price:      target,
		Quantity:   notional / target,
		Notional:   money.FromDollars(notional),
		OrderCount: 0,
	}, true
}

func flatten(levels map[float64]*domain.BookLevel, less func(a, b float64) bool) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Quantity <= 0 {
			continue
		}
		out = append(out, *lvl)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Price, out[j].Price) })
	if len(out) > MaxLevels {
		out = out[:MaxLevels]
	}
	return out
}

// roundPrice snaps a price to the cent grid to keep map keys stable.
func roundPrice(p float64) float64 {
	return math.Round(p*100) / 100
}
