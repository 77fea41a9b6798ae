package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yesnolabs/venue/internal/amm"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// Buy executes a market buy of gross cents on the given outcome.
//
// The fee is taken from the gross amount, the remainder is priced against
// the pool for share issuance, and the bought side's reserve grows by the
// net amount. User debit, fee credit, custody credit, pool update, position
// upsert, and the order record are committed as one atomic unit.
func (e *Engine) Buy(ctx context.Context, userID, marketID string, outcome domain.Outcome, gross money.Cents) (domain.TradeResult, error) {
	if gross <= 0 {
		return domain.TradeResult{}, domain.ErrInvalidAmount
	}

	var (
		result   domain.TradeResult
		yesPrice float64
		market   domain.Market
	)

	err := e.db.InTx(ctx, func(tx domain.EngineTx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketStatusOpen {
			return domain.ErrMarketNotOpen
		}
		if _, err := e.custodyAccount(ctx, tx); err != nil {
			return err
		}

		fee := gross.MulRate(m.FeeRate)
		net := gross - fee

		pool := amm.FromMarket(&m)
		sq := pool.SharesOut(outcome, net)

		orderID := uuid.New().String()
		now := time.Now().UTC()
		reason := fmt.Sprintf("buy %s on market %s", outcome, m.ID)

		var guard ledgerGuard

		newBalance, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: userID,
			Amount:    -gross,
			Kind:      domain.LedgerKindTrade,
			Reason:    reason,
			OrderID:   orderID,
		}, false)
		if err != nil {
			return err
		}
		guard.add(-gross)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Fee,
			Amount:    fee,
			Kind:      domain.LedgerKindFee,
			Reason:    "fee income from order " + orderID,
			OrderID:   orderID,
		}, true); err != nil {
			return err
		}
		guard.add(fee)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Custody,
			Amount:    net,
			Kind:      domain.LedgerKindTrade,
			Reason:    "pool deposit from order " + orderID,
			OrderID:   orderID,
		}, true); err != nil {
			return err
		}
		guard.add(net)

		if err := guard.check(); err != nil {
			return err
		}

		m.AddReserve(outcome, net)
		m.TotalVolume += gross
		m.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		if err := e.upsertPosition(ctx, tx, userID, m.ID, outcome, sq.Shares, sq.ExecPrice, net, now); err != nil {
			return err
		}

		order := domain.Order{
			ID:           orderID,
			UserID:       userID,
			MarketID:     m.ID,
			Outcome:      outcome,
			Type:         domain.OrderTypeMarket,
			Side:         domain.OrderSideBuy,
			Amount:       gross,
			FilledShares: sq.Shares,
			FeeDeducted:  fee,
			Status:       domain.OrderStatusFilled,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		result = domain.TradeResult{
			OrderID:     orderID,
			Shares:      sq.Shares,
			ExecPrice:   sq.ExecPrice,
			FeeDeducted: fee,
			NewBalance:  newBalance,
			NewReserves: domain.Reserves{Yes: m.ReserveYes, No: m.ReserveNo},
		}
		yesPrice = amm.FromMarket(&m).Price(domain.OutcomeYes)
		market = m
		return nil
	})
	if err != nil {
		return domain.TradeResult{}, err
	}

	e.logger.InfoContext(ctx, "engine: buy filled",
		slog.String("order_id", result.OrderID),
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int64("gross_cents", int64(gross)),
		slog.Float64("shares", result.Shares),
	)

	e.publish(ctx, ChannelTrades, map[string]any{
		"event":     "trade",
		"order_id":  result.OrderID,
		"market_id": marketID,
		"side":      "BUY",
		"outcome":   string(outcome),
		"amount":    gross.Dollars(),
		"shares":    result.Shares,
		"price":     result.ExecPrice,
	})
	e.refreshMarketViews(ctx, &market, yesPrice)

	return result, nil
}

// PlaceLimitBuy rests a limit buy order in the book. The gross amount is
// debited immediately (funds frozen in custody, fee set aside) but the pool
// and positions are untouched until the order fills.
func (e *Engine) PlaceLimitBuy(ctx context.Context, userID, marketID string, outcome domain.Outcome, gross money.Cents, limitPrice float64) (domain.TradeResult, error) {
	if gross <= 0 {
		return domain.TradeResult{}, domain.ErrInvalidAmount
	}
	if limitPrice <= 0 || limitPrice >= 1 {
		return domain.TradeResult{}, domain.ErrInvalidLimitPrice
	}

	var result domain.TradeResult

	err := e.db.InTx(ctx, func(tx domain.EngineTx) error {
		m, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketStatusOpen {
			return domain.ErrMarketNotOpen
		}
		if _, err := e.custodyAccount(ctx, tx); err != nil {
			return err
		}

		fee := gross.MulRate(m.FeeRate)
		net := gross - fee

		orderID := uuid.New().String()
		now := time.Now().UTC()

		var guard ledgerGuard

		newBalance, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: userID,
			Amount:    -gross,
			Kind:      domain.LedgerKindTrade,
			Reason:    fmt.Sprintf("limit buy %s on market %s", outcome, m.ID),
			OrderID:   orderID,
		}, false)
		if err != nil {
			return err
		}
		guard.add(-gross)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Fee,
			Amount:    fee,
			Kind:      domain.LedgerKindFee,
			Reason:    "fee income from order " + orderID,
			OrderID:   orderID,
		}, true); err != nil {
			return err
		}
		guard.add(fee)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Custody,
			Amount:    net,
			Kind:      domain.LedgerKindTrade,
			Reason:    "frozen funds for resting order " + orderID,
			OrderID:   orderID,
		}, true); err != nil {
			return err
		}
		guard.add(net)

		if err := guard.check(); err != nil {
			return err
		}

		lp := limitPrice
		order := domain.Order{
			ID:          orderID,
			UserID:      userID,
			MarketID:    m.ID,
			Outcome:     outcome,
			Type:        domain.OrderTypeLimit,
			Side:        domain.OrderSideBuy,
			Amount:      gross,
			LimitPrice:  &lp,
			FeeDeducted: fee,
			Status:      domain.OrderStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		result = domain.TradeResult{
			OrderID:     orderID,
			FeeDeducted: fee,
			NewBalance:  newBalance,
			NewReserves: domain.Reserves{Yes: m.ReserveYes, No: m.ReserveNo},
		}
		return nil
	})
	if err != nil {
		return domain.TradeResult{}, err
	}

	e.logger.InfoContext(ctx, "engine: limit order resting",
		slog.String("order_id", result.OrderID),
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Float64("limit_price", limitPrice),
	)
	if e.books != nil {
		if err := e.books.Invalidate(ctx, marketID); err != nil {
			e.logger.WarnContext(ctx, "engine: book cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	return result, nil
}

// upsertPosition folds an executed buy into the user's open position,
// recomputing the volume-weighted average entry price, or opens a new one.
func (e *Engine) upsertPosition(ctx context.Context, tx domain.EngineTx, userID, marketID string, outcome domain.Outcome, shares, execPrice float64, net money.Cents, now time.Time) error {
	existing, err := tx.GetOpenPosition(ctx, userID, marketID, outcome)
	switch {
	case err == nil:
		newShares := existing.Shares + shares
		existing.AvgPrice = (existing.Shares*existing.AvgPrice + net.Dollars()) / newShares
		existing.Shares = newShares
		existing.UpdatedAt = now
		return tx.UpsertPosition(ctx, existing)
	case errors.Is(err, domain.ErrPositionNotFound) || errors.Is(err, domain.ErrNotFound):
		return tx.UpsertPosition(ctx, domain.Position{
			ID:        uuid.New().String(),
			UserID:    userID,
			MarketID:  marketID,
			Outcome:   outcome,
			Shares:    shares,
			AvgPrice:  execPrice,
			Status:    domain.PositionStatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		})
	default:
		return err
	}
}
