package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

func testMarket(yes, no money.Cents) *domain.Market {
	return &domain.Market{
		ID:         "mkt-1",
		Question:   "Will it rain tomorrow?",
		Status:     domain.MarketStatusOpen,
		ReserveYes: yes,
		ReserveNo:  no,
		FeeRate:    0.02,
		ClosesAt:   time.Now().Add(24 * time.Hour),
	}
}

func limitOrder(outcome domain.Outcome, amountCents money.Cents, price float64, filled float64) domain.Order {
	p := price
	return domain.Order{
		ID:           "ord-" + string(outcome),
		UserID:       "user-1",
		MarketID:     "mkt-1",
		Outcome:      outcome,
		Type:         domain.OrderTypeLimit,
		Side:         domain.OrderSideBuy,
		Amount:       amountCents,
		FilledShares: filled,
		LimitPrice:   &p,
		Status:       domain.OrderStatusPending,
	}
}

func TestBuildRealBidLevels(t *testing.T) {
	m := testMarket(50000, 50000) // price 0.50

	orders := []domain.Order{
		limitOrder(domain.OutcomeYes, 4500, 0.45, 0), // 100 shares @ 0.45
		limitOrder(domain.OutcomeYes, 9000, 0.45, 0), // 200 shares @ 0.45
		limitOrder(domain.OutcomeYes, 4000, 0.40, 0), // 100 shares @ 0.40
	}

	book := Build(m, orders)

	require.NotEmpty(t, book.Bids)
	top := book.Bids[0]
	assert.InDelta(t, 0.45, top.Price, 1e-9)
	assert.InDelta(t, 300, top.Quantity, 1e-6)
	assert.Equal(t, 2, top.OrderCount)
	assert.False(t, top.Synthetic())

	// Bids must be sorted descending.
	for i := 1; i < len(book.Bids); i++ {
		assert.Greater(t, book.Bids[i-1].Price, book.Bids[i].Price)
	}
}

func TestBuildNoOrdersTranslateToAsks(t *testing.T) {
	m := testMarket(50000, 50000)

	// A NO buy at 0.40 is YES sell interest at 0.60.
	orders := []domain.Order{
		limitOrder(domain.OutcomeNo, 4000, 0.40, 0),
	}

	book := Build(m, orders)

	require.NotEmpty(t, book.Asks)
	found := false
	for _, lvl := range book.Asks {
		if lvl.OrderCount == 1 {
			assert.InDelta(t, 0.60, lvl.Price, 1e-9)
			assert.InDelta(t, 100, lvl.Quantity, 1e-6)
			found = true
		}
	}
	assert.True(t, found, "translated NO order missing from asks")
}

func TestBuildPartialFillReducesLevel(t *testing.T) {
	m := testMarket(50000, 50000)

	// 100 shares @ 0.50, 40 already filled.
	orders := []domain.Order{
		limitOrder(domain.OutcomeYes, 5000, 0.50, 40),
	}
	orders[0].Status = domain.OrderStatusPartiallyFilled

	book := Build(m, orders)

	var real *domain.BookLevel
	for i := range book.Bids {
		if !book.Bids[i].Synthetic() {
			real = &book.Bids[i]
		}
	}
	require.NotNil(t, real)
	assert.InDelta(t, 60, real.Quantity, 1e-6)
}

func TestBuildFullyFilledLevelDropped(t *testing.T) {
	m := testMarket(50000, 50000)

	orders := []domain.Order{
		limitOrder(domain.OutcomeYes, 5000, 0.50, 100),
	}

	book := Build(m, orders)

	for _, lvl := range book.Bids {
		assert.True(t, lvl.Synthetic(), "exhausted order should not produce a level")
	}
}

func TestBuildSyntheticDepth(t *testing.T) {
	m := testMarket(50000, 50000)

	book := Build(m, nil)

	require.NotEmpty(t, book.Bids)
	require.NotEmpty(t, book.Asks)
	assert.InDelta(t, 0.50, book.CurrentPrice, 1e-9)

	for _, lvl := range book.Bids {
		assert.True(t, lvl.Synthetic())
		assert.Less(t, lvl.Price, book.CurrentPrice)
		assert.Greater(t, lvl.Quantity, 0.0)
	}
	for _, lvl := range book.Asks {
		assert.True(t, lvl.Synthetic())
		assert.Greater(t, lvl.Price, book.CurrentPrice)
		assert.Greater(t, lvl.Quantity, 0.0)
	}

	// Best synthetic ask one cent above, best bid one cent below.
	assert.InDelta(t, 0.51, book.Asks[0].Price, 1e-9)
	assert.InDelta(t, 0.49, book.Bids[0].Price, 1e-9)
	assert.InDelta(t, 0.02, book.Spread, 1e-9)
}

func TestBuildEmptyPoolNoSyntheticLevels(t *testing.T) {
	m := testMarket(0, 0)

	book := Build(m, nil)

	assert.Empty(t, book.Bids)
	assert.Empty(t, book.Asks)
	assert.InDelta(t, 0.50, book.CurrentPrice, 1e-9)
	assert.Zero(t, book.Spread)
}

func TestBuildRealLevelBlocksSyntheticAtSamePrice(t *testing.T) {
	m := testMarket(50000, 50000)

	// Real bid exactly at the first synthetic slot (0.49).
	orders := []domain.Order{
		limitOrder(domain.OutcomeYes, 4900, 0.49, 0),
	}

	book := Build(m, orders)

	count := 0
	for _, lvl := range book.Bids {
		if lvl.Price == 0.49 {
			count++
			assert.False(t, lvl.Synthetic())
			assert.Equal(t, 1, lvl.OrderCount)
		}
	}
	assert.Equal(t, 1, count, "exactly one level at 0.49 expected")
}

func TestBuildCapsLevelsPerSide(t *testing.T) {
	m := testMarket(50000, 50000)

	orders := make([]domain.Order, 0, 8)
	for i := 0; i < 8; i++ {
		price := 0.30 + float64(i)*0.02
		orders = append(orders, limitOrder(domain.OutcomeYes, money.FromDollars(100*price), price, 0))
	}

	book := Build(m, orders)

	assert.LessOrEqual(t, len(book.Bids), MaxLevels)
	assert.LessOrEqual(t, len(book.Asks), MaxLevels)
}

func TestSyntheticDepthMatchesPoolInversion(t *testing.T) {
	// 600/400 pool, price(YES)=0.60. Moving to 0.61 needs
	// n = (0.61*1000 - 600) / (1 - 0.61) = 10 / 0.39 ≈ 25.64 dollars.
	m := testMarket(60000, 40000)

	book := Build(m, nil)

	require.NotEmpty(t, book.Asks)
	top := book.Asks[0]
	assert.InDelta(t, 0.61, top.Price, 1e-9)
	assert.InDelta(t, 25.64, top.Notional.Dollars(), 0.01)
	assert.InDelta(t, 25.64/0.61, top.Quantity, 0.05)
}
