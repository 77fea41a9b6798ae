package amm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

func TestPriceFromReserves(t *testing.T) {
	tests := []struct {
		name    string
		pool    Pool
		outcome domain.Outcome
		want    float64
	}{
		{"balanced pool", Pool{Yes: 50000, No: 50000}, domain.OutcomeYes, 0.5},
		{"yes-heavy pool", Pool{Yes: 60000, No: 40000}, domain.OutcomeYes, 0.6},
		{"no side of yes-heavy pool", Pool{Yes: 60000, No: 40000}, domain.OutcomeNo, 0.4},
		{"empty pool defaults to even odds", Pool{}, domain.OutcomeYes, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.pool.Price(tt.outcome), 1e-12)
		})
	}
}

func TestPricesSumToOne(t *testing.T) {
	pool := Pool{Yes: 37123, No: 91877}
	sum := pool.Price(domain.OutcomeYes) + pool.Price(domain.OutcomeNo)
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestSharesOutConstantProduct(t *testing.T) {
	// 500/500 pool, net $98 (a $100 buy at 2% fee): k = 250000,
	// newNo = 598, sharesOut = 500 - 250000/598.
	pool := Pool{Yes: 50000, No: 50000}
	sq := pool.SharesOut(domain.OutcomeYes, 9800)

	require.False(t, sq.Fallback)
	assert.InDelta(t, 500.0-250000.0/598.0, sq.Shares, 1e-9)
	assert.InDelta(t, 98.0/sq.Shares, sq.ExecPrice, 1e-9)
	// Execution price is above the instantaneous 0.5 price: buys move the
	// market against the buyer.
	assert.Greater(t, sq.ExecPrice, 0.5)
}

func TestSharesOutNeverExceedsSameReserve(t *testing.T) {
	pool := Pool{Yes: 10000, No: 10000}
	sq := pool.SharesOut(domain.OutcomeYes, 1000000)
	require.False(t, sq.Fallback)
	assert.LessOrEqual(t, sq.Shares, pool.Yes.Dollars())
	assert.Greater(t, sq.Shares, 0.0)
}

func TestSharesOutFallbackOnEmptyPool(t *testing.T) {
	pool := Pool{}
	sq := pool.SharesOut(domain.OutcomeYes, 5000)

	require.True(t, sq.Fallback)
	// Empty pool prices at 0.5, so $50 buys 100 shares.
	assert.InDelta(t, 100.0, sq.Shares, 1e-9)
	assert.InDelta(t, 0.5, sq.ExecPrice, 1e-9)
}

func TestSharesOutFallbackFloorsPrice(t *testing.T) {
	// Degenerate pool with a zero same-side reserve: constant-product is
	// unusable and the instantaneous price is zero, so the fallback floor
	// applies.
	pool := Pool{Yes: 0, No: 10000}
	sq := pool.SharesOut(domain.OutcomeYes, 1000)

	require.True(t, sq.Fallback)
	assert.InDelta(t, 10.0/0.01, sq.Shares, 1e-9)
}

func TestQuote(t *testing.T) {
	pool := Pool{Yes: 50000, No: 50000}
	q := pool.Quote(domain.OutcomeYes, 10000, 0.02)

	assert.Equal(t, money.Cents(10000), q.Amount)
	assert.InDelta(t, 0.5, q.CurrentPrice, 1e-12)
	assert.InDelta(t, 500.0-250000.0/598.0, q.Shares, 1e-9)
	assert.Greater(t, q.ExecutionPrice, q.CurrentPrice)
	assert.Greater(t, q.SlippagePercent, 0.0)
}

func TestQuoteZeroFee(t *testing.T) {
	pool := Pool{Yes: 50000, No: 50000}
	q := pool.Quote(domain.OutcomeYes, 10000, 0)

	// Full gross reaches the pool: newNo = 600.
	assert.InDelta(t, 500.0-250000.0/600.0, q.Shares, 1e-9)
}

func TestK(t *testing.T) {
	pool := Pool{Yes: 50000, No: 50000}
	assert.InDelta(t, 250000.0, pool.K(), 1e-9)
}
