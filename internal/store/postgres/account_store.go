package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yesnolabs/venue/internal/domain"
	"github.com/yesnolabs/venue/internal/money"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, name, is_system, balance, created_at, updated_at`

func scanAccountRow(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.System, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func getAccount(ctx context.Context, q querier, id string) (domain.Account, error) {
	a, err := scanAccountRow(q.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// GetByID retrieves a single account by its ID.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return getAccount(ctx, s.pool, id)
}

// Ensure creates the account if it does not exist and returns the stored
// row either way. Used to provision system accounts at startup and user
// accounts on first contact.
func (s *AccountStore) Ensure(ctx context.Context, account domain.Account) (domain.Account, error) {
	const query = `
		INSERT INTO accounts (id, name, is_system, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING ` + accountSelectCols

	a, err := scanAccountRow(s.pool.QueryRow(ctx, query,
		account.ID, account.Name, account.System, account.Balance))
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: ensure account %s: %w", account.ID, err)
	}
	return a, nil
}

// adjustBalance applies the ledger entry's delta to its account and records
// the entry. The balance update and journal write share the caller's
// transaction.
func adjustBalance(ctx context.Context, q querier, entry domain.LedgerEntry, allowNegative bool) (money.Cents, error) {
	var newBalance money.Cents
	err := q.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING balance`,
		entry.AccountID, entry.Amount,
	).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: adjust balance %s: %w", entry.AccountID, err)
	}

	if newBalance < 0 && !allowNegative {
		return 0, domain.ErrInsufficientBalance
	}

	var orderID *string
	if entry.OrderID != "" {
		orderID = &entry.OrderID
	}
	_, err = q.Exec(ctx,
		`INSERT INTO ledger_entries (account_id, amount, kind, reason, order_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		entry.AccountID, entry.Amount, string(entry.Kind), entry.Reason, orderID,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: write ledger entry: %w", err)
	}

	return newBalance, nil
}
