package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/yesnolabs/venue/internal/domain"
)

// CancelOrder cancels a resting limit order and refunds its unfilled frozen
// funds to the owner. Market orders and already-terminal orders are
// rejected; the order record itself is never deleted, only transitioned to
// CANCELED.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	var marketID string

	err := e.db.InTx(ctx, func(tx domain.EngineTx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Resting() {
			return domain.ErrOrderNotResting
		}
		if _, err := e.custodyAccount(ctx, tx); err != nil {
			return err
		}
		marketID = o.MarketID
		return e.refundRestingOrder(ctx, tx, &o, time.Now().UTC())
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "engine: order canceled",
		slog.String("order_id", orderID),
		slog.String("market_id", marketID),
	)
	if e.books != nil {
		if err := e.books.Invalidate(ctx, marketID); err != nil {
			e.logger.WarnContext(ctx, "engine: book cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
