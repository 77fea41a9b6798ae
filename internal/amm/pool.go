// Package amm models the automated-market-maker pool backing one market.
//
// Prices derive from the reserve pair: price(outcome) = reserve[outcome] /
// (reserveYes + reserveNo), so price(YES) + price(NO) == 1 by construction.
// Share issuance for buys is priced with the constant-product formula over
// the same reserves, with a constant-sum fallback for near-empty or
// degenerate pools.
//
// Everything in this package is pure computation over a snapshot of the
// reserves; committing the resulting deltas is the engine's job.
package amm

import (
	"math"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// fallbackPriceFloor clamps the execution price used by the constant-sum
// fallback so a degenerate zero-side pool cannot divide by zero.
const fallbackPriceFloor = 0.01

// Pool is a snapshot of a market's reserve pair.
type Pool struct {
	Yes money.Cents
	No  money.Cents
}

// FromMarket snapshots the pool state of a market.
func FromMarket(m *domain.Market) Pool {
	return Pool{Yes: m.ReserveYes, No: m.ReserveNo}
}

// Total returns the combined reserves.
func (p Pool) Total() money.Cents {
	return p.Yes + p.No
}

// Reserve returns the reserve backing the given outcome.
func (p Pool) Reserve(o domain.Outcome) money.Cents {
	if o == domain.OutcomeYes {
		return p.Yes
	}
	return p.No
}

// Price returns the instantaneous price of the given outcome in (0,1).
// A cold-start pool with both reserves at zero prices both sides at 0.5.
func (p Pool) Price(o domain.Outcome) float64 {
	total := p.Total()
	if total <= 0 {
		return 0.5
	}
	return float64(p.Reserve(o)) / float64(total)
}

// K returns the constant-product invariant reserveYes * reserveNo in dollar
// units. It is recomputed from the reserves on every call, never cached:
// liquidity operations move it deliberately.
func (p Pool) K() float64 {
	return p.Yes.Dollars() * p.No.Dollars()
}

// ShareQuote is the result of pricing a prospective buy against the pool.
type ShareQuote struct {
	// Shares is the quantity issued for the net amount.
	Shares float64
	// ExecPrice is net/shares, the effective per-share price paid.
	ExecPrice float64
	// Fallback is set when the constant-product result was unusable and
	// the constant-sum approximation was used instead.
	Fallback bool
}

// SharesOut prices a buy of net cents on the given outcome.
//
// Constant-product path: with same = reserve of the bought outcome and
// other = the opposite reserve, k = same*other, the issuance is
// same - k/(other + net). When that result is non-positive, exceeds the
// same-side reserve, or is non-finite (near-empty pools), the constant-sum
// fallback net/price applies, with the price floored at 0.01.
func (p Pool) SharesOut(o domain.Outcome, net money.Cents) ShareQuote {
	netD := net.Dollars()
	same := p.Reserve(o).Dollars()
	other := p.Reserve(o.Opposite()).Dollars()

	price := p.Price(o)

	shares := 0.0
	fallback := true
	if k := same * other; k > 0 {
		newOther := other + netD
		s := same - k/newOther
		if s > 0 && s <= same && !math.IsInf(s, 0) && !math.IsNaN(s) {
			shares = s
			fallback = false
		}
	}
	if fallback {
		shares = netD / math.Max(price, fallbackPriceFloor)
	}

	execPrice := price
	if shares > 0 {
		execPrice = netD / shares
	}

	return ShareQuote{Shares: shares, ExecPrice: execPrice, Fallback: fallback}
}

// Quote runs the full read-only price-impact query for a gross buy amount:
// fee is deducted at feeRate, the remainder is priced via SharesOut, and
// slippage is reported relative to the instantaneous price.
func (p Pool) Quote(o domain.Outcome, gross money.Cents, feeRate float64) domain.Quote {
	fee := gross.MulRate(feeRate)
	net := gross - fee

	current := p.Price(o)
	sq := p.SharesOut(o, net)

	slippage := 0.0
	if current > 0 {
		slippage = (sq.ExecPrice - current) / current * 100
	}

	return domain.Quote{
		Outcome:         o,
		Amount:          gross,
		CurrentPrice:    current,
		ExecutionPrice:  sq.ExecPrice,
		SlippagePercent: slippage,
		Shares:          sq.Shares,
	}
}
