package domain

import (
	"time"

	"github.com/yesnolabs/venue/internal/money"
)

// BookLevel is a single aggregated price level in the order book. Levels
// synthesized from AMM pool depth carry OrderCount == 0; levels built from
// real resting orders carry the number of orders aggregated into them.
type BookLevel struct {
	Price      float64
	Quantity   float64     // remaining shares at this level
	Notional   money.Cents // remaining gross notional at this level
	OrderCount int
}

// Synthetic reports whether the level was synthesized from AMM depth rather
// than built from resting orders.
func (l BookLevel) Synthetic() bool { return l.OrderCount == 0 }

// OrderBook is the merged view of resting limit orders and AMM virtual
// depth for one market. Bids are YES buy interest sorted by price
// descending; asks are NO buy interest translated to equivalent YES sell
// prices (1 - limitPrice) and sorted ascending.
type OrderBook struct {
	MarketID     string
	Bids         []BookLevel
	Asks         []BookLevel
	Spread       float64
	CurrentPrice float64
	GeneratedAt  time.Time
}

// Quote is the result of a read-only price-impact query: what a buy of the
// given size would execute at without committing anything.
type Quote struct {
	MarketID        string
	Outcome         Outcome
	Amount          money.Cents
	CurrentPrice    float64
	ExecutionPrice  float64
	SlippagePercent float64
	Shares          float64
}
