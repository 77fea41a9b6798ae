package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yesnolabs/venue/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, user_id, market_id, outcome, shares,
	avg_price, payout, status, created_at, updated_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var outcome, status string

	err := row.Scan(
		&p.ID, &p.UserID, &p.MarketID, &outcome, &p.Shares,
		&p.AvgPrice, &p.Payout, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Outcome = domain.Outcome(outcome)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func getOpenPosition(ctx context.Context, q querier, userID, marketID string, outcome domain.Outcome, forUpdate bool) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE user_id = $1 AND market_id = $2 AND outcome = $3 AND status = 'OPEN'`
	if forUpdate {
		query += " FOR UPDATE"
	}

	p, err := scanPositionRow(q.QueryRow(ctx, query, userID, marketID, string(outcome)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrPositionNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get open position: %w", err)
	}
	return p, nil
}

func listOpenPositions(ctx context.Context, q querier, marketID string) ([]domain.Position, error) {
	rows, err := q.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE market_id = $1 AND status = 'OPEN'
		 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

func upsertPosition(ctx context.Context, q querier, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, user_id, market_id, outcome, shares, avg_price,
			payout, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			shares     = EXCLUDED.shares,
			avg_price  = EXCLUDED.avg_price,
			payout     = EXCLUDED.payout,
			status     = EXCLUDED.status,
			updated_at = NOW()`

	_, err := q.Exec(ctx, query,
		p.ID, p.UserID, p.MarketID, string(p.Outcome), p.Shares, p.AvgPrice,
		p.Payout, string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// GetOpen returns the user's open position on one outcome of one market.
func (s *PositionStore) GetOpen(ctx context.Context, userID, marketID string, outcome domain.Outcome) (domain.Position, error) {
	return getOpenPosition(ctx, s.pool, userID, marketID, outcome, false)
}

// ListByUser returns a user's positions, most recently updated first.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE user_id = $1 ORDER BY updated_at DESC`
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
		return nil, fmt.Errorf("postgres: list positions by user: %w", err)
	}

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan user positions: %w", err)
	}
	return positions, nil
}

// ListOpenByMarket returns all open positions in a market.
func (s *PositionStore) ListOpenByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	return listOpenPositions(ctx, s.pool, marketID)
}

// ListByMarket returns all positions in a market regardless of status.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE market_id = $1 ORDER BY created_at ASC`
	args := []any{marketID}
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
		return nil, fmt.Errorf("postgres: list positions by market: %w", err)
	}

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan market positions: %w", err)
	}
	return positions, nil
}
