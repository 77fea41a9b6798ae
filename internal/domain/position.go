package domain

import (
	"time"

	"github.com/yesnolabs/venue/internal/money"
)

// SharesEpsilon is the tolerance below which a position's share count is
// treated as zero and the position is closed.
const SharesEpsilon = 0.001

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position is one user's net exposure to one outcome of one market. At most
// one OPEN position exists per (user, market, outcome); closed positions may
// coexist historically.
type Position struct {
	ID       string
	UserID   string
	MarketID string
	Outcome  Outcome

	// Shares is the net share quantity held, always >= 0.
	Shares float64

	// AvgPrice is the volume-weighted average entry price in (0,1],
	// recomputed on every additional buy.
	AvgPrice float64

	// Payout is the settlement value credited when the market resolved,
	// zero for losing or still-open positions.
	Payout money.Cents

	Status    PositionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dust reports whether the position's share count is within the close
// tolerance of zero.
func (p *Position) Dust() bool {
	return p.Shares <= SharesEpsilon
}
