package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yesnolabs/venue/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, user_id, market_id, outcome, order_type, side,
	amount, filled_shares, limit_price, fee_deducted, status, created_at, updated_at`

func scanOrderRow(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var outcome, orderType, side, status string

	err := row.Scan(
		&o.ID, &o.UserID, &o.MarketID, &outcome, &orderType, &side,
		&o.Amount, &o.FilledShares, &o.LimitPrice, &o.FeeDeducted,
		&status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Outcome = domain.Outcome(outcome)
	o.Type = domain.OrderType(orderType)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	o, err := scanOrderRow(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

func listRestingOrders(ctx context.Context, q querier, marketID string) ([]domain.Order, error) {
	rows, err := q.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE market_id = $1 AND status IN ('PENDING', 'PARTIALLY_FILLED')
		 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resting orders: %w", err)
	}

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan resting orders: %w", err)
	}
	return orders, nil
}

func insertOrder(ctx context.Context, q querier, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, user_id, market_id, outcome, order_type, side,
			amount, filled_shares, limit_price, fee_deducted, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			NOW(), NOW()
		)`

	_, err := q.Exec(ctx, query,
		o.ID, o.UserID, o.MarketID, string(o.Outcome), string(o.Type), string(o.Side),
		o.Amount, o.FilledShares, o.LimitPrice, o.FeeDeducted, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

func updateOrder(ctx context.Context, q querier, o domain.Order) error {
	const query = `
		UPDATE orders SET
			filled_shares = $2,
			fee_deducted  = $3,
			status        = $4,
			updated_at    = NOW()
		WHERE id = $1`

	tag, err := q.Exec(ctx, query, o.ID, o.FilledShares, o.FeeDeducted, string(o.Status))
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// GetByID retrieves a single order by its ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, s.pool, id, false)
}

// ListResting returns all live limit orders for a market, oldest first.
func (s *OrderStore) ListResting(ctx context.Context, marketID string) ([]domain.Order, error) {
	return listRestingOrders(ctx, s.pool, marketID)
}

// ListByUser returns a user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by user: %w", err)
	}

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan user orders: %w", err)
	}
	return orders, nil
}

// ListFilledSince returns filled orders with IDs lexicographically greater
// than sinceID, in ID order. The audit exporter uses it as a resumable
// cursor.
func (s *OrderStore) ListFilledSince(ctx context.Context, sinceID string, limit int) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE status = 'FILLED' AND id > $1
		 ORDER BY id ASC
		 LIMIT $2`, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list filled orders: %w", err)
	}

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan filled orders: %w", err)
	}
	return orders, nil
}
