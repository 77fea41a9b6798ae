package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// TxRunner implements domain.TxRunner on a pgx connection pool. Every engine
// mutation runs inside one database transaction; an error from fn rolls the
// whole transaction back.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner creates a TxRunner backed by the given connection pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// InTx runs fn inside a single transaction and commits only if fn succeeds.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx domain.EngineTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&engineTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// engineTx adapts a pgx.Tx to the domain.EngineTx mutation surface.
type engineTx struct {
	tx pgx.Tx
}

// GetMarketForUpdate loads a market under a row lock, serializing concurrent
// engine operations on the same market.
func (t *engineTx) GetMarketForUpdate(ctx context.Context, id string) (domain.Market, error) {
	return getMarket(ctx, t.tx, id, true)
}

func (t *engineTx) CreateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, reserve_yes, reserve_no, fee_rate,
			total_volume, status, resolved_outcome, closes_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			NOW(), NOW()
		)`

	var resolved *string
	if m.ResolvedOutcome != nil {
		s := string(*m.ResolvedOutcome)
		resolved = &s
	}
	_, err := t.tx.Exec(ctx, query,
		m.ID, m.Question, m.ReserveYes, m.ReserveNo, m.FeeRate,
		m.TotalVolume, string(m.Status), resolved, m.ClosesAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

func (t *engineTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			reserve_yes      = $2,
			reserve_no       = $3,
			total_volume     = $4,
			status           = $5,
			resolved_outcome = $6,
			updated_at       = NOW()
		WHERE id = $1`

	var resolved *string
	if m.ResolvedOutcome != nil {
		s := string(*m.ResolvedOutcome)
		resolved = &s
	}
	tag, err := t.tx.Exec(ctx, query,
		m.ID, m.ReserveYes, m.ReserveNo, m.TotalVolume, string(m.Status), resolved,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

func (t *engineTx) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *engineTx) AdjustBalance(ctx context.Context, entry domain.LedgerEntry, allowNegative bool) (money.Cents, error) {
	return adjustBalance(ctx, t.tx, entry, allowNegative)
}

func (t *engineTx) GetOpenPosition(ctx context.Context, userID, marketID string, outcome domain.Outcome) (domain.Position, error) {
	return getOpenPosition(ctx, t.tx, userID, marketID, outcome, true)
}

func (t *engineTx) UpsertPosition(ctx context.Context, p domain.Position) error {
	return upsertPosition(ctx, t.tx, p)
}

func (t *engineTx) ListOpenPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	return listOpenPositions(ctx, t.tx, marketID)
}

func (t *engineTx) CreateOrder(ctx context.Context, o domain.Order) error {
	return insertOrder(ctx, t.tx, o)
}

func (t *engineTx) GetOrderForUpdate(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *engineTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	return updateOrder(ctx, t.tx, o)
}

func (t *engineTx) ListRestingOrders(ctx context.Context, marketID string) ([]domain.Order, error) {
	return listRestingOrders(ctx, t.tx, marketID)
}
