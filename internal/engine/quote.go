package engine

import (
	"context"

	"github.com/yesnolabs/venue/internal/amm"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// Quote runs the buy computation against a snapshot of the pool without
// committing anything: the execution price a gross buy would pay, the
// slippage relative to the instantaneous price, and the shares issued. Used
// by the UI and by order-book depth synthesis.
func (e *Engine) Quote(ctx context.Context, marketID string, outcome domain.Outcome, gross money.Cents) (domain.Quote, error) {
	if gross <= 0 {
		return domain.Quote{}, domain.ErrInvalidAmount
	}

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}

	q := amm.FromMarket(&m).Quote(outcome, gross, m.FeeRate)
	q.MarketID = m.ID
	return q, nil
}
