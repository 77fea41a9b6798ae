// Package engine implements the trading venue's core: trade execution
// against the AMM pool, liquidity management, and settlement.
//
// Every state-changing operation runs inside a single atomic transaction
// that locks the market row first, so concurrent operations on the same
// market are serialized while different markets proceed in parallel. All
// monetary arithmetic is fixed-point cents; the legs of each operation are
// checked to sum to zero before commit.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// Signal bus channels the engine publishes on.
const (
	ChannelTrades      = "trades"
	ChannelPrices      = "prices"
	ChannelLiquidity   = "liquidity"
	ChannelResolutions = "resolutions"
)

// Config holds the engine's safety parameters.
type Config struct {
	// WithdrawRatioCap is the maximum fraction of total reserves a single
	// liquidity withdrawal may take.
	WithdrawRatioCap float64

	// SolvencyFactor: when a market has nonzero cumulative volume, the
	// post-withdrawal reserves must stay >= SolvencyFactor * totalVolume.
	SolvencyFactor float64
}

// DefaultConfig returns the production safety parameters.
func DefaultConfig() Config {
	return Config{
		WithdrawRatioCap: 0.8,
		SolvencyFactor:   0.5,
	}
}

// Engine executes trades, liquidity operations, and settlement against the
// transactional store. System accounts are injected explicitly so tests can
// supply their own double-entry counterparts.
type Engine struct {
	db      domain.TxRunner
	markets domain.MarketStore
	pos     domain.PositionStore
	sys     domain.SystemAccounts
	cfg     Config

	prices domain.PriceCache
	books  domain.OrderBookCache
	bus    domain.SignalBus

	logger *slog.Logger
}

// New creates an Engine. The cache and bus attachments are optional; use
// the With* methods to enable them.
func New(db domain.TxRunner, markets domain.MarketStore, pos domain.PositionStore, sys domain.SystemAccounts, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		db:      db,
		markets: markets,
		pos:     pos,
		sys:     sys,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "engine")),
	}
}

// WithCaches attaches the price and order-book caches. After a committed
// mutation the engine refreshes the price and invalidates the book.
func (e *Engine) WithCaches(prices domain.PriceCache, books domain.OrderBookCache) *Engine {
	e.prices = prices
	e.books = books
	return e
}

// WithSignalBus attaches the event bus used to fan out trade, price, and
// resolution events.
func (e *Engine) WithSignalBus(bus domain.SignalBus) *Engine {
	e.bus = bus
	return e
}

// custodyAccount loads the pool custody account inside a transaction,
// mapping a missing row to the fatal taxonomy: a venue without its
// double-entry counterpart account cannot safely move money. Other store
// errors (connection loss, timeouts) pass through unchanged so callers can
// retry them.
func (e *Engine) custodyAccount(ctx context.Context, tx domain.EngineTx) (domain.Account, error) {
	acct, err := tx.GetAccount(ctx, e.sys.Custody)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Account{}, fmt.Errorf("%w: %q", domain.ErrCustodyAccountMissing, e.sys.Custody)
		}
		return domain.Account{}, err
	}
	return acct, nil
}

// ledgerGuard accumulates the balance deltas of one operation and verifies
// they sum to zero before the transaction is allowed to commit.
type ledgerGuard struct {
	sum money.Cents
}

func (g *ledgerGuard) add(delta money.Cents) { g.sum += delta }

func (g *ledgerGuard) check() error {
	if g.sum != 0 {
		return fmt.Errorf("%w: residual %d cents", domain.ErrLedgerImbalance, g.sum)
	}
	return nil
}

// publish fans out an engine event. Publish failures are logged, never
// propagated: the transaction has already committed.
func (e *Engine) publish(ctx context.Context, channel string, payload any) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, data); err != nil {
		e.logger.WarnContext(ctx, "engine: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// refreshMarketViews updates the price cache and invalidates the cached
// order book after a committed pool mutation.
func (e *Engine) refreshMarketViews(ctx context.Context, m *domain.Market, yesPrice float64) {
	if e.prices != nil {
		if err := e.prices.SetPrice(ctx, m.ID, yesPrice, time.Now().UTC()); err != nil {
			e.logger.WarnContext(ctx, "engine: price cache update failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.books != nil {
		if err := e.books.Invalidate(ctx, m.ID); err != nil {
			e.logger.WarnContext(ctx, "engine: book cache invalidate failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(ctx, ChannelPrices, map[string]any{
		"market_id": m.ID,
		"yes_price": yesPrice,
		"no_price":  1 - yesPrice,
	})
}
