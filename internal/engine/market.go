package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// CreateMarketParams describes a new market. Either explicit reserves or a
// seed amount (split 50/50) funds the initial pool; both are drawn from the
// liquidity account so the books stay balanced from the first cent.
type CreateMarketParams struct {
	Question   string
	FeeRate    float64
	ClosesAt   time.Time
	ReserveYes money.Cents
	ReserveNo  money.Cents
	// Seed, when set, overrides the explicit reserves with a 50/50 split.
	Seed money.Cents
}

// CreateMarket provisions a new OPEN market and funds its pool from the
// liquidity account.
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	if strings.TrimSpace(p.Question) == "" {
		return domain.Market{}, domain.ErrInvalidAmount
	}
	if p.FeeRate < 0 || p.FeeRate > 1 {
		return domain.Market{}, domain.ErrInvalidAmount
	}

	reserveYes, reserveNo := p.ReserveYes, p.ReserveNo
	if p.Seed > 0 {
		reserveYes, reserveNo = money.SplitByRatio(p.Seed, 0.5)
	}
	if reserveYes < 0 || reserveNo < 0 {
		return domain.Market{}, domain.ErrInvalidAmount
	}
	funding := reserveYes + reserveNo

	var market domain.Market

	err := e.db.InTx(ctx, func(tx domain.EngineTx) error {
		if _, err := e.custodyAccount(ctx, tx); err != nil {
			return err
		}

		now := time.Now().UTC()
		m := domain.Market{
			ID:         uuid.New().String(),
			Question:   p.Question,
			ReserveYes: reserveYes,
			ReserveNo:  reserveNo,
			FeeRate:    p.FeeRate,
			Status:     domain.MarketStatusOpen,
			ClosesAt:   p.ClosesAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if funding > 0 {
			var guard ledgerGuard
			if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
				AccountID: e.sys.Liquidity,
				Amount:    -funding,
				Kind:      domain.LedgerKindLiquidity,
				Reason:    "initial pool for market " + m.ID,
			}, false); err != nil {
				return err
			}
			guard.add(-funding)
			if _, err := tx.AdjustBalance(ctx, domain.LedgerEntry{
				AccountID: e.sys.Custody,
				Amount:    funding,
				Kind:      domain.LedgerKindLiquidity,
				Reason:    "initial pool for market " + m.ID,
			}, true); err != nil {
				return err
			}
			guard.add(funding)
			if err := guard.check(); err != nil {
				return err
			}
		}

		if err := tx.CreateMarket(ctx, m); err != nil {
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}

	e.logger.InfoContext(ctx, "engine: market created",
		slog.String("market_id", market.ID),
		slog.Int64("reserve_yes_cents", int64(market.ReserveYes)),
		slog.Int64("reserve_no_cents", int64(market.ReserveNo)),
	)
	return market, nil
}

// CloseExpired transitions up to limit OPEN markets whose trading window has
// ended to CLOSED. It is safe to run concurrently: each market is re-checked
// under its row lock before the transition. Returns the number of markets
// closed.
func (e *Engine) CloseExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := e.markets.ListExpired(ctx, limit)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, candidate := range expired {
		transitioned := false
		err := e.db.InTx(ctx, func(tx domain.EngineTx) error {
			m, err := tx.GetMarketForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			// Another sweeper may have closed it between the list and the lock.
			if m.Status != domain.MarketStatusOpen || m.ClosesAt.IsZero() || m.ClosesAt.After(time.Now().UTC()) {
				return nil
			}
			m.Status = domain.MarketStatusClosed
			m.UpdatedAt = time.Now().UTC()
			if err := tx.UpdateMarket(ctx, m); err != nil {
				return err
			}
			transitioned = true
			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "engine: close expired market failed",
				slog.String("market_id", candidate.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if transitioned {
			closed++
		}
	}

	if closed > 0 {
		e.logger.InfoContext(ctx, "engine: expired markets closed",
			slog.Int("count", closed),
		)
	}
	return closed, nil
}
