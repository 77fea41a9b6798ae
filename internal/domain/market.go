package domain

import (
	"time"

	"github.com/yesnolabs/venue/internal/money"
)

// MarketStatus represents the lifecycle state of a market. Transitions are
// monotonic: OPEN -> CLOSED -> RESOLVED, or any non-terminal state ->
// CANCELED. There is no transition out of RESOLVED or CANCELED.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "OPEN"
	MarketStatusClosed   MarketStatus = "CLOSED"
	MarketStatusResolved MarketStatus = "RESOLVED"
	MarketStatusCanceled MarketStatus = "CANCELED"
)

// Market is one binary prediction event with its AMM pool state. The pool
// reserves are the single source of truth for price; nothing downstream
// caches a derived price beyond the instant of computation.
type Market struct {
	ID       string
	Question string

	// ReserveYes and ReserveNo back the two outcome sides. A buy grows the
	// bought side by the net amount; a sell shrinks the sold side by the
	// net return. Both are always >= 0.
	ReserveYes money.Cents
	ReserveNo  money.Cents

	// FeeRate is the fraction of gross trade notional taken as fee, in [0,1].
	FeeRate float64

	// TotalVolume is cumulative internal gross trading volume. Buys add the
	// gross amount, sells subtract the gross value. The liquidity-withdrawal
	// solvency margin is checked against it.
	TotalVolume money.Cents

	Status          MarketStatus
	ResolvedOutcome *Outcome
	ClosesAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalReserves returns the combined pool depth.
func (m *Market) TotalReserves() money.Cents {
	return m.ReserveYes + m.ReserveNo
}

// Reserve returns the reserve backing the given outcome.
func (m *Market) Reserve(o Outcome) money.Cents {
	if o == OutcomeYes {
		return m.ReserveYes
	}
	return m.ReserveNo
}

// AddReserve mutates the reserve backing the given outcome by delta.
func (m *Market) AddReserve(o Outcome, delta money.Cents) {
	if o == OutcomeYes {
		m.ReserveYes += delta
	} else {
		m.ReserveNo += delta
	}
}
