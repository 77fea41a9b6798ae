package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yesnolabs/venue/internal/amm"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// Sell sells shares from the user's open position at the current pool
// price. The gross value leaves custody, the fee is retained, and the sold
// side's reserve shrinks by the net return, mirroring the buy convention in
// reverse. There is no partial execution: any rejection leaves state
// untouched.
func (e *Engine) Sell(ctx context.Context, userID, marketID string, outcome domain.Outcome, shares float64) (domain.TradeResult, error) {
	if shares <= 0 {
		return domain.TradeResult{}, domain.ErrInvalidShares
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
		custody, err := e.custodyAccount(ctx, tx)
		if err != nil {
			return err
		}

		pos, err := tx.GetOpenPosition(ctx, userID, m.ID, outcome)
		if err != nil {
			return err
		}
		if shares > pos.Shares+domain.SharesEpsilon {
			return domain.ErrInsufficientShares
		}

		pool := amm.FromMarket(&m)
		currentPrice := pool.Price(outcome)

		gross := money.FromDollars(shares * currentPrice)
		fee := gross.MulRate(m.FeeRate)
		net := gross - fee

		if custody.Balance < gross {
			return domain.ErrInsufficientPoolLiquidity
		}
		if m.Reserve(outcome) < net {
			return domain.ErrInsufficientPoolLiquidity
		}

		orderID := uuid.New().String()
		now := time.Now().UTC()

		var guard ledgerGuard

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Custody,
			Amount:    -gross,
			Kind:      domain.LedgerKindTrade,
			Reason:    "pool payout for order " + orderID,
			OrderID:   orderID,
		}, false); err != nil {
			return err
		}
		guard.add(-gross)

		newBalance, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: userID,
			Amount:    net,
			Kind:      domain.LedgerKindTrade,
			Reason:    fmt.Sprintf("sell %s on market %s", outcome, m.ID),
			OrderID:   orderID,
		}, true)
		if err != nil {
			return err
		}
		guard.add(net)

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

		if err := guard.check(); err != nil {
			return err
		}

		m.AddReserve(outcome, -net)
		m.TotalVolume -= gross
		m.UpdatedAt = now
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		pos.Shares -= shares
		if pos.Dust() {
			pos.Shares = 0
			pos.Status = domain.PositionStatusClosed
		}
		pos.UpdatedAt = now
		if err := tx.UpsertPosition(ctx, pos); err != nil {
			return err
		}

		order := domain.Order{
			ID:           orderID,
			UserID:       userID,
			MarketID:     m.ID,
			Outcome:      outcome,
			Type:         domain.OrderTypeMarket,
			Side:         domain.OrderSideSell,
			Amount:       gross,
			FilledShares: shares,
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
			Shares:      shares,
			ExecPrice:   currentPrice,
			FeeDeducted: fee,
			NetReturn:   net,
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

	e.logger.InfoContext(ctx, "engine: sell filled",
		slog.String("order_id", result.OrderID),
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Float64("shares", shares),
		slog.Int64("net_return_cents", int64(result.NetReturn)),
	)

	e.publish(ctx, ChannelTrades, map[string]any{
		"event":     "trade",
		"order_id":  result.OrderID,
		"market_id": marketID,
		"side":      "SELL",
		"outcome":   string(outcome),
		"amount":    result.NetReturn.Dollars(),
		"shares":    shares,
		"price":     result.ExecPrice,
	})
	e.refreshMarketViews(ctx, &market, yesPrice)

	return result, nil
}
