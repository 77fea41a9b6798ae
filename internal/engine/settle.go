package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// Resolve settles a market: status moves to RESOLVED, the outcome is
// recorded exactly once, and every open position is settled eagerly in the
// same transaction. Winning positions receive shares x $1 from custody,
// losing positions collapse to zero, and resting limit orders are canceled
// and refunded.
//
// Resolving an already-resolved market is a no-op that returns the prior
// result, so retried settlement jobs are harmless. Resolving a canceled
// market is a state error.
func (e *Engine) Resolve(ctx context.Context, marketID string, outcome domain.Outcome) (domain.SettlementSummary, error) {
	if _, err := domain.ParseOutcome(string(outcome)); err != nil {
		return domain.SettlementSummary{}, err
	}

	var (
		summary  domain.SettlementSummary
		replayed bool
	)

	err := e.db.InTx(ctx, func(tx domain.EngineTx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}

		switch m.Status {
		case domain.MarketStatusResolved:
			replayed = true
			summary = domain.SettlementSummary{
				MarketID: m.ID,
				Outcome:  *m.ResolvedOutcome,
				Replayed: true,
			}
			return nil
		case domain.MarketStatusCanceled:
			return domain.ErrMarketCanceled
		}

		if _, err := e.custodyAccount(ctx, tx); err != nil {
			return err
		}

		now := time.Now().UTC()
		resolved := outcome
		m.Status = domain.MarketStatusResolved
		m.ResolvedOutcome = &resolved
		m.UpdatedAt = now

		positions, err := tx.ListOpenPositions(ctx, m.ID)
		if err != nil {
			return err
		}

		var totalPayout money.Cents
		winning := 0
		for _, pos := range positions {
			var payout money.Cents
			if pos.Outcome == resolved {
				payout = money.FromDollars(pos.Shares * 1.0)
			}

			if payout > 0 {
				var guard ledgerGuard
				if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
					AccountID: e.sys.Custody,
					Amount:    -payout,
					Kind:      domain.LedgerKindSettlement,
					Reason:    "settlement payout for market " + m.ID,
				}, true); err != nil {
					return err
				}
				guard.add(-payout)
				if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
					AccountID: pos.UserID,
					Amount:    payout,
					Kind:      domain.LedgerKindSettlement,
					Reason:    "settlement payout for market " + m.ID,
				}, true); err != nil {
					return err
				}
				guard.add(payout)
				if err := guard.check(); err != nil {
					return err
				}
				winning++
				totalPayout += payout
			}

			pos.Payout = payout
			pos.Status = domain.PositionStatusClosed
			pos.UpdatedAt = now
			if err := tx.UpsertPosition(ctx, pos); err != nil {
				return err
			}
		}

		resting, err := tx.ListRestingOrders(ctx, m.ID)
		if err != nil {
			return err
		}
		canceled := 0
		for _, o := range resting {
			if err := e.refundRestingOrder(ctx, tx, &o, now); err != nil {
				return err
			}
			canceled++
		}

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		summary = domain.SettlementSummary{
			MarketID:         m.ID,
			Outcome:          resolved,
			PositionsSettled: len(positions),
			WinningPositions: winning,
			TotalPayout:      totalPayout,
			OrdersCanceled:   canceled,
		}
		return nil
	})
	if err != nil {
		return domain.SettlementSummary{}, err
	}

	if replayed {
		// Rebuild the payout totals from the stored position records so a
		// retried settlement job sees the same numbers as the first run.
		positions, err := e.pos.ListByMarket(ctx, marketID, domain.ListOpts{})
		if err == nil {
			for _, pos := range positions {
				if pos.Payout > 0 {
					summary.WinningPositions++
					summary.TotalPayout += pos.Payout
				}
			}
		}
		e.logger.InfoContext(ctx, "engine: resolve replayed",
			slog.String("market_id", marketID),
			slog.String("outcome", string(summary.Outcome)),
		)
		return summary, nil
	}

	e.logger.InfoContext(ctx, "engine: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int("positions_settled", summary.PositionsSettled),
		slog.Int64("total_payout_cents", int64(summary.TotalPayout)),
	)
	e.publish(ctx, ChannelResolutions, map[string]any{
		"event":        "market_resolved",
		"market_id":    marketID,
		"outcome":      string(outcome),
		"total_payout": summary.TotalPayout.Dollars(),
	})
	if e.books != nil {
		if err := e.books.Invalidate(ctx, marketID); err != nil {
			e.logger.WarnContext(ctx, "engine: book cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	return summary, nil
}

// refundRestingOrder cancels one resting limit order and returns the
// unfilled portion of its frozen funds to the user. The refund is split
// back out of custody and the fee account with remainder absorption so the
// legs cancel the original placement exactly.
func (e *Engine) refundRestingOrder(ctx context.Context, tx domain.EngineTx, o *domain.Order, now time.Time) error {
	refund := o.Amount
	feeRefund := o.FeeDeducted
	if o.Status == domain.OrderStatusPartiallyFilled && o.LimitPrice != nil {
		filled := money.FromDollars(o.FilledShares * *o.LimitPrice)
		refund = o.Amount - filled
		if refund < 0 {
			refund = 0
		}
		if o.Amount > 0 {
			feeRefund, _ = money.SplitByRatio(refund, float64(o.FeeDeducted)/float64(o.Amount))
		}
	}
	netRefund := refund - feeRefund

	var guard ledgerGuard

	if refund > 0 {
		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Custody,
			Amount:    -netRefund,
			Kind:      domain.LedgerKindRefund,
			Reason:    "refund for canceled order " + o.ID,
			OrderID:   o.ID,
		}, true); err != nil {
			return err
		}
		guard.add(-netRefund)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Fee,
			Amount:    -feeRefund,
			Kind:      domain.LedgerKindRefund,
			Reason:    "fee refund for canceled order " + o.ID,
			OrderID:   o.ID,
		}, true); err != nil {
			return err
		}
		guard.add(-feeRefund)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: o.UserID,
			Amount:    refund,
			Kind:      domain.LedgerKindRefund,
			Reason:    "refund for canceled order " + o.ID,
			OrderID:   o.ID,
		}, true); err != nil {
			return err
		}
		guard.add(refund)

		if err := guard.check(); err != nil {
			return err
		}
	}

	o.Status = domain.OrderStatusCanceled
	o.UpdatedAt = now
	return tx.UpdateOrder(ctx, *o)
}
