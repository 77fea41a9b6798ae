package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/engine"
	"github.com/yesnolabs/venue/internal/money"
	"github.com/yesnolabs/venue/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	eng   *engine.Engine
	sys   domain.SystemAccounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	sys := domain.SystemAccounts{
		Custody:   "sys:custody",
		Fee:       "sys:fee",
		Liquidity: "sys:liquidity",
	}

	ctx := context.Background()
	accounts := store.Accounts()
	_, err := accounts.Ensure(ctx, domain.Account{ID: sys.Custody, Name: "pool custody", System: true})
	require.NoError(t, err)
	_, err = accounts.Ensure(ctx, domain.Account{ID: sys.Fee, Name: "fee income", System: true})
	require.NoError(t, err)
	_, err = accounts.Ensure(ctx, domain.Account{
		ID: sys.Liquidity, Name: "liquidity capital", System: true,
		Balance: money.FromDollars(100000),
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, store.Markets(), store.Positions(), sys, engine.DefaultConfig(), logger)

	return &fixture{store: store, eng: eng, sys: sys}
}

func (f *fixture) fundUser(t *testing.T, id string, dollars float64) {
	t.Helper()
	_, err := f.store.Accounts().Ensure(context.Background(), domain.Account{
		ID: id, Balance: money.FromDollars(dollars),
	})
	require.NoError(t, err)
}

func (f *fixture) createMarket(t *testing.T, reserveYes, reserveNo float64, feeRate float64) domain.Market {
	t.Helper()
	m, err := f.eng.CreateMarket(context.Background(), engine.CreateMarketParams{
		Question:   "Will it rain tomorrow?",
		FeeRate:    feeRate,
		ClosesAt:   time.Now().UTC().Add(24 * time.Hour),
		ReserveYes: money.FromDollars(reserveYes),
		ReserveNo:  money.FromDollars(reserveNo),
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) balance(t *testing.T, id string) money.Cents {
	t.Helper()
	a, err := f.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

// totalBalance sums every known account. Each engine operation writes
// zero-sum ledger legs, so the total never moves.
func (f *fixture) totalBalance(t *testing.T, userIDs ...string) money.Cents {
	t.Helper()
	total := f.balance(t, f.sys.Custody) + f.balance(t, f.sys.Fee) + f.balance(t, f.sys.Liquidity)
	for _, id := range userIDs {
		total += f.balance(t, id)
	}
	return total
}

func TestBuyScenario(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	before := f.totalBalance(t, "alice")

	res, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)

	// Fee 2% of $100, net $98 into the YES reserve.
	assert.Equal(t, money.Cents(200), res.FeeDeducted)
	assert.Equal(t, money.FromDollars(598), res.NewReserves.Yes)
	assert.Equal(t, money.FromDollars(500), res.NewReserves.No)

	// Constant-product issuance: k=250000, newNo=598.
	assert.InDelta(t, 500.0-250000.0/598.0, res.Shares, 1e-9)
	assert.InDelta(t, 98.0/res.Shares, res.ExecPrice, 1e-9)

	// Price moved above even odds.
	got, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	yesPrice := float64(got.ReserveYes) / float64(got.ReserveYes+got.ReserveNo)
	assert.Greater(t, yesPrice, 0.5)

	// Money trail: user down $100, fee up $2, custody up $98.
	assert.Equal(t, money.FromDollars(900), f.balance(t, "alice"))
	assert.Equal(t, money.Cents(200), f.balance(t, f.sys.Fee))
	assert.Equal(t, before, f.totalBalance(t, "alice"))

	// Position opened with the issued shares.
	pos, err := f.store.Positions().GetOpen(ctx, "alice", m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.InDelta(t, res.Shares, pos.Shares, 1e-9)
}

func TestBuySellRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	before := f.totalBalance(t, "alice")

	buy, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)

	sell, err := f.eng.Sell(ctx, "alice", m.ID, domain.OutcomeYes, buy.Shares)
	require.NoError(t, err)

	// Fees make the round trip strictly lossy.
	assert.Less(t, sell.NetReturn, money.FromDollars(100))
	assert.Greater(t, sell.NetReturn, money.Cents(0))

	// Selling everything closes the position.
	_, err = f.store.Positions().GetOpen(ctx, "alice", m.ID, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	assert.Equal(t, before, f.totalBalance(t, "alice"))
}

func TestBuyValidation(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	_, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.eng.Buy(ctx, "alice", "no-such-market", domain.OutcomeYes, money.FromDollars(10))
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestBuyInsufficientBalanceRollsBack(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "bob", 10)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	_, err := f.eng.Buy(ctx, "bob", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Nothing moved: balance, reserves, and positions are untouched.
	assert.Equal(t, money.FromDollars(10), f.balance(t, "bob"))
	got, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromDollars(500), got.ReserveYes)
	_, err = f.store.Positions().GetOpen(ctx, "bob", m.ID, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestBuyClosedMarket(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	_, err := f.eng.Resolve(ctx, m.ID, domain.OutcomeYes)
	require.NoError(t, err)

	_, err = f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(10))
	assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
}

func TestSellInsufficientShares(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	buy, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)

	_, err = f.eng.Sell(ctx, "alice", m.ID, domain.OutcomeYes, buy.Shares*2)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = f.eng.Sell(ctx, "alice", m.ID, domain.OutcomeNo, 1)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestLimitPlaceAndCancelRefund(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	before := f.totalBalance(t, "alice")

	res, err := f.eng.PlaceLimitBuy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100), 0.40)
	require.NoError(t, err)

	// Funds frozen immediately, pool untouched.
	assert.Equal(t, money.FromDollars(900), f.balance(t, "alice"))
	got, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromDollars(500), got.ReserveYes)

	o, err := f.store.Orders().GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	require.NotNil(t, o.LimitPrice)
	assert.InDelta(t, 0.40, *o.LimitPrice, 1e-12)

	// Cancel refunds the full frozen amount, fee share included.
	require.NoError(t, f.eng.CancelOrder(ctx, res.OrderID))
	assert.Equal(t, money.FromDollars(1000), f.balance(t, "alice"))
	assert.Equal(t, money.Cents(0), f.balance(t, f.sys.Fee))

	o, err = f.store.Orders().GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)

	assert.Equal(t, before, f.totalBalance(t, "alice"))
}

func TestPlaceLimitBuyValidation(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	_, err := f.eng.PlaceLimitBuy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidLimitPrice)

	_, err = f.eng.PlaceLimitBuy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidLimitPrice)

	_, err = f.eng.PlaceLimitBuy(ctx, "alice", m.ID, domain.OutcomeYes, 0, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCancelNonRestingOrder(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	buy, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)

	err = f.eng.CancelOrder(ctx, buy.OrderID)
	assert.ErrorIs(t, err, domain.ErrOrderNotResting)

	err = f.eng.CancelOrder(ctx, "no-such-order")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestInjectLiquiditySplit(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 600, 400, 0.02)
	ctx := context.Background()

	liquidityBefore := f.balance(t, f.sys.Liquidity)

	// Price(YES) = 0.6; $100.01 splits into floored YES part plus exact
	// complement.
	res, err := f.eng.InjectLiquidity(ctx, m.ID, 10001, "test injection")
	require.NoError(t, err)

	assert.Equal(t, money.Cents(6000), res.AmountYes)
	assert.Equal(t, money.Cents(4001), res.AmountNo)
	assert.Equal(t, money.Cents(10001), res.AmountYes+res.AmountNo)
	assert.Equal(t, money.FromDollars(600)+6000, res.NewReserves.Yes)
	assert.Equal(t, money.FromDollars(400)+4001, res.NewReserves.No)

	assert.Equal(t, liquidityBefore-10001, f.balance(t, f.sys.Liquidity))
}

func TestWithdrawRatioCap(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 250, 250, 0.02)
	ctx := context.Background()

	// 80% of the $500 pool is $400; $401 exceeds the cap.
	_, err := f.eng.WithdrawLiquidity(ctx, m.ID, money.FromDollars(401), "")
	assert.ErrorIs(t, err, domain.ErrRatioLimitExceeded)

	// More than the whole pool is rejected before the ratio check.
	_, err = f.eng.WithdrawLiquidity(ctx, m.ID, money.FromDollars(501), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientPoolLiquidity)

	// At the cap the withdrawal goes through.
	res, err := f.eng.WithdrawLiquidity(ctx, m.ID, money.FromDollars(400), "")
	require.NoError(t, err)
	assert.Equal(t, money.FromDollars(400), res.AmountYes+res.AmountNo)
	assert.Equal(t, money.FromDollars(100), res.NewReserves.Yes+res.NewReserves.No)
}

func TestWithdrawSolvencyMargin(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 5000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	// Trade $2500 of volume: reserves grow to $3450, and the solvency
	// floor becomes 0.5 x $2500 = $1250.
	_, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(2500))
	require.NoError(t, err)

	// $2500 is within the 80% cap ($2760) but would leave only $950.
	_, err = f.eng.WithdrawLiquidity(ctx, m.ID, money.FromDollars(2500), "")
	assert.ErrorIs(t, err, domain.ErrSolvencyMarginViolated)

	// Leaving exactly the margin is allowed.
	_, err = f.eng.WithdrawLiquidity(ctx, m.ID, money.FromDollars(2200), "")
	assert.NoError(t, err)
}

func TestResolveSettlesAndReplays(t *testing.T) {
	f := newFixture(t)
	f.fundUser(t, "alice", 1000)
	f.fundUser(t, "bob", 1000)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	buyYes, err := f.eng.Buy(ctx, "alice", m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)
	_, err = f.eng.Buy(ctx, "bob", m.ID, domain.OutcomeNo, money.FromDollars(50))
	require.NoError(t, err)

	// A resting order that settlement must cancel and refund.
	rest, err := f.eng.PlaceLimitBuy(ctx, "bob", m.ID, domain.OutcomeYes, money.FromDollars(20), 0.30)
	require.NoError(t, err)
	bobAfterPlace := f.balance(t, "bob")

	summary, err := f.eng.Resolve(ctx, m.ID, domain.OutcomeYes)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeYes, summary.Outcome)
	assert.False(t, summary.Replayed)
	assert.Equal(t, 2, summary.PositionsSettled)
	assert.Equal(t, 1, summary.WinningPositions)
	assert.Equal(t, 1, summary.OrdersCanceled)
	assert.Equal(t, money.FromDollars(buyYes.Shares), summary.TotalPayout)

	// Winner paid shares x $1, loser paid nothing, resting order refunded.
	assert.Equal(t, money.FromDollars(900)+money.FromDollars(buyYes.Shares), f.balance(t, "alice"))
	assert.Equal(t, bobAfterPlace+money.FromDollars(20), f.balance(t, "bob"))

	o, err := f.store.Orders().GetByID(ctx, rest.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, o.Status)

	// Every position is closed; the winner's records its payout.
	positions, err := f.store.Positions().ListByMarket(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	for _, p := range positions {
		assert.Equal(t, domain.PositionStatusClosed, p.Status)
	}

	// Replay: same outcome, no money moves.
	aliceAfter := f.balance(t, "alice")
	replay, err := f.eng.Resolve(ctx, m.ID, domain.OutcomeNo)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, domain.OutcomeYes, replay.Outcome)
	assert.Equal(t, summary.TotalPayout, replay.TotalPayout)
	assert.Equal(t, summary.WinningPositions, replay.WinningPositions)
	assert.Equal(t, aliceAfter, f.balance(t, "alice"))
}

func TestResolveInvalidOutcome(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 500, 500, 0.02)

	_, err := f.eng.Resolve(context.Background(), m.ID, domain.Outcome("MAYBE"))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestCreateMarketSeedSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	liquidityBefore := f.balance(t, f.sys.Liquidity)

	m, err := f.eng.CreateMarket(ctx, engine.CreateMarketParams{
		Question: "Seeded?",
		FeeRate:  0.02,
		ClosesAt: time.Now().UTC().Add(time.Hour),
		Seed:     10001,
	})
	require.NoError(t, err)

	assert.Equal(t, money.Cents(5000), m.ReserveYes)
	assert.Equal(t, money.Cents(5001), m.ReserveNo)
	assert.Equal(t, liquidityBefore-10001, f.balance(t, f.sys.Liquidity))
	assert.Equal(t, money.Cents(10001), f.balance(t, f.sys.Custody))
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.CreateMarket(ctx, engine.CreateMarketParams{Question: "  ", FeeRate: 0.02})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.eng.CreateMarket(ctx, engine.CreateMarketParams{Question: "q", FeeRate: 1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCloseExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, err := f.eng.CreateMarket(ctx, engine.CreateMarketParams{
		Question:   "Already over?",
		FeeRate:    0.02,
		ClosesAt:   time.Now().UTC().Add(-time.Minute),
		ReserveYes: money.FromDollars(100),
		ReserveNo:  money.FromDollars(100),
	})
	require.NoError(t, err)
	live := f.createMarket(t, 100, 100, 0.02)

	closed, err := f.eng.CloseExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := f.store.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, got.Status)

	got, err = f.store.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, got.Status)
}

// staleExpiredLister replays a fixed expired-market snapshot, standing in for
// a replica whose list query raced another sweeper.
type staleExpiredLister struct {
	domain.MarketStore
	stale []domain.Market
}

func (s *staleExpiredLister) ListExpired(_ context.Context, _ int) ([]domain.Market, error) {
	return s.stale, nil
}

func TestCloseExpiredCountsOnlyTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, err := f.eng.CreateMarket(ctx, engine.CreateMarketParams{
		Question:   "Already over?",
		FeeRate:    0.02,
		ClosesAt:   time.Now().UTC().Add(-time.Minute),
		ReserveYes: money.FromDollars(100),
		ReserveNo:  money.FromDollars(100),
	})
	require.NoError(t, err)

	closed, err := f.eng.CloseExpired(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	// A second sweeper still holding the pre-close snapshot finds the market
	// already CLOSED under the lock and must not count it again.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	racing := engine.New(
		f.store,
		&staleExpiredLister{MarketStore: f.store.Markets(), stale: []domain.Market{expired}},
		f.store.Positions(),
		f.sys,
		engine.DefaultConfig(),
		logger,
	)

	closed, err = racing.CloseExpired(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

// transientTx fails account reads with a non-domain error, as a dropped
// connection would.
type transientTx struct {
	domain.EngineTx
	err error
}

func (t transientTx) GetAccount(_ context.Context, _ string) (domain.Account, error) {
	return domain.Account{}, t.err
}

type transientTxRunner struct {
	err error
}

func (r transientTxRunner) InTx(_ context.Context, fn func(tx domain.EngineTx) error) error {
	return fn(transientTx{err: r.err})
}

func TestCustodyAccountErrorClassification(t *testing.T) {
	ctx := context.Background()
	sys := domain.SystemAccounts{Custody: "sys:custody", Fee: "sys:fee", Liquidity: "sys:liquidity"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("missing account is fatal", func(t *testing.T) {
		store := memory.NewStore()
		eng := engine.New(store, store.Markets(), store.Positions(), sys, engine.DefaultConfig(), logger)

		_, err := eng.CreateMarket(ctx, engine.CreateMarketParams{
			Question: "Does the venue have a custody account?",
			FeeRate:  0.02,
			ClosesAt: time.Now().UTC().Add(time.Hour),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCustodyAccountMissing)
		assert.True(t, domain.IsFatal(err))
	})

	t.Run("transient store error passes through", func(t *testing.T) {
		store := memory.NewStore()
		transient := errors.New("connection reset")
		eng := engine.New(transientTxRunner{err: transient}, store.Markets(), store.Positions(), sys, engine.DefaultConfig(), logger)

		_, err := eng.CreateMarket(ctx, engine.CreateMarketParams{
			Question: "Does a dropped connection look fatal?",
			FeeRate:  0.02,
			ClosesAt: time.Now().UTC().Add(time.Hour),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, transient)
		assert.NotErrorIs(t, err, domain.ErrCustodyAccountMissing)
		assert.False(t, domain.IsFatal(err))
	})
}

func TestQuoteDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, 500, 500, 0.02)
	ctx := context.Background()

	q, err := f.eng.Quote(ctx, m.ID, domain.OutcomeYes, money.FromDollars(100))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, q.CurrentPrice, 1e-12)
	assert.InDelta(t, 500.0-250000.0/598.0, q.Shares, 1e-9)
	assert.Greater(t, q.ExecutionPrice, q.CurrentPrice)

	got, err := f.store.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromDollars(500), got.ReserveYes)
	assert.Equal(t, money.FromDollars(500), got.ReserveNo)
}
