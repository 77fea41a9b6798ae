package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/yesnolabs/venue/internal/amm"
	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// InjectLiquidity adds pool capital to an open market, split across the
// YES/NO reserves proportionally to the current YES price. The YES part is
// floored and the NO part is the exact complement, so the two always sum to
// the injected amount. The liquidity account is debited and custody
// credited in the same transaction.
func (e *Engine) InjectLiquidity(ctx context.Context, marketID string, amount money.Cents, reason string) (domain.LiquidityResult, error) {
	if amount <= 0 {
		return domain.LiquidityResult{}, domain.ErrInvalidAmount
	}

	var (
		result   domain.LiquidityResult
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

		pool := amm.FromMarket(&m)
		injectYes, injectNo := money.SplitByRatio(amount, pool.Price(domain.OutcomeYes))

		if reason == "" {
			reason = "liquidity injection into market " + m.ID
		}

		var guard ledgerGuard

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Liquidity,
			Amount:    -amount,
			Kind:      domain.LedgerKindLiquidity,
			Reason:    reason,
		}, false); err != nil {
			return err
		}
		guard.add(-amount)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Custody,
			Amount:    amount,
			Kind:      domain.LedgerKindLiquidity,
			Reason:    reason,
		}, true); err != nil {
			return err
		}
		guard.add(amount)

		if err := guard.check(); err != nil {
			return err
		}

		m.ReserveYes += injectYes
		m.ReserveNo += injectNo
		m.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		result = domain.LiquidityResult{
			AmountYes:   injectYes,
			AmountNo:    injectNo,
			NewReserves: domain.Reserves{Yes: m.ReserveYes, No: m.ReserveNo},
		}
		yesPrice = amm.FromMarket(&m).Price(domain.OutcomeYes)
		market = m
		return nil
	})
	if err != nil {
		return domain.LiquidityResult{}, err
	}

	e.logger.InfoContext(ctx, "engine: liquidity injected",
		slog.String("market_id", marketID),
		slog.Int64("amount_cents", int64(amount)),
		slog.Int64("yes_cents", int64(result.AmountYes)),
		slog.Int64("no_cents", int64(result.AmountNo)),
	)
	e.publish(ctx, ChannelLiquidity, map[string]any{
		"event":     "liquidity_injected",
		"market_id": marketID,
		"amount":    amount.Dollars(),
	})
	e.refreshMarketViews(ctx, &market, yesPrice)

	return result, nil
}

// WithdrawLiquidity removes pool capital from an open market, subject to
// two mandatory safety constraints: no single withdrawal may take more than
// the ratio cap (80%) of total reserves, and when the market has traded,
// the post-withdrawal reserves must keep the solvency margin over
// cumulative volume. The withdrawn amount is split proportionally across
// the reserves with remainder absorption.
func (e *Engine) WithdrawLiquidity(ctx context.Context, marketID string, amount money.Cents, reason string) (domain.LiquidityResult, error) {
	if amount <= 0 {
		return domain.LiquidityResult{}, domain.ErrInvalidAmount
	}

	var (
		result   domain.LiquidityResult
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

		total := m.TotalReserves()
		if amount > total {
			return domain.ErrInsufficientPoolLiquidity
		}
		if float64(amount) > e.cfg.WithdrawRatioCap*float64(total) {
			return domain.ErrRatioLimitExceeded
		}
		if m.TotalVolume > 0 {
			remaining := float64(total - amount)
			if remaining < e.cfg.SolvencyFactor*float64(m.TotalVolume) {
				return domain.ErrSolvencyMarginViolated
			}
		}

		pool := amm.FromMarket(&m)
		withdrawYes, withdrawNo := money.SplitByRatio(amount, pool.Price(domain.OutcomeYes))
		if withdrawYes > m.ReserveYes {
			withdrawYes = m.ReserveYes
			withdrawNo = amount - withdrawYes
		}
		if withdrawNo > m.ReserveNo {
			withdrawNo = m.ReserveNo
			withdrawYes = amount - withdrawNo
		}

		if reason == "" {
			reason = "liquidity withdrawal from market " + m.ID
		}

		var guard ledgerGuard

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Custody,
			Amount:    -amount,
			Kind:      domain.LedgerKindLiquidity,
			Reason:    reason,
		}, false); err != nil {
			return err
		}
		guard.add(-amount)

		if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
			AccountID: e.sys.Liquidity,
			Amount:    amount,
			Kind:      domain.LedgerKindLiquidity,
			Reason:    reason,
		}, true); err != nil {
			return err
		}
		guard.add(amount)

		if err := guard.check(); err != nil {
			return err
		}

		m.ReserveYes -= withdrawYes
		m.ReserveNo -= withdrawNo
		m.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return err
		}

		result = domain.LiquidityResult{
			AmountYes:   withdrawYes,
			AmountNo:    withdrawNo,
			NewReserves: domain.Reserves{Yes: m.ReserveYes, No: m.ReserveNo},
		}
		yesPrice = amm.FromMarket(&m).Price(domain.OutcomeYes)
		market = m
		return nil
	})
	if err != nil {
		return domain.LiquidityResult{}, err
	}

	e.logger.InfoContext(ctx, "engine: liquidity withdrawn",
		slog.String("market_id", marketID),
		slog.Int64("amount_cents", int64(amount)),
	)
	e.publish(ctx, ChannelLiquidity, map[string]any{
		"event":     "liquidity_withdrawn",
		"market_id": marketID,
		"amount":    amount.Dollars(),
	})
	e.refreshMarketViews(ctx, &market, yesPrice)

	return result, nil
}
