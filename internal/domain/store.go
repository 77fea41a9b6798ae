package domain

import (
	"context"

	"github.com/yesnolabs/venue/internal/money"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore serves read-only market queries outside engine transactions.
type MarketStore interface {
	GetByID(ctx context.Context, id string) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListExpired(ctx context.Context, limit int) ([]Market, error)
}

// OrderStore serves read-only order queries.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (Order, error)
	ListResting(ctx context.Context, marketID string) ([]Order, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Order, error)
	ListFilledSince(ctx context.Context, sinceID string, limit int) ([]Order, error)
}

// PositionStore serves read-only position queries.
type PositionStore interface {
	GetOpen(ctx context.Context, userID, marketID string, outcome Outcome) (Position, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	ListOpenByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
}

// AccountStore serves read-only account queries and out-of-band
// provisioning of user and system accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (Account, error)
	Ensure(ctx context.Context, account Account) (Account, error)
}

// LedgerStore serves read-only ledger queries.
type LedgerStore interface {
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]LedgerEntry, error)
}

// EngineTx is the mutation surface available inside one atomic engine
// transaction. GetMarketForUpdate locks the market row, serializing
// concurrent operations on the same market; different markets proceed in
// parallel. Implementations guarantee all-or-nothing commit.
type EngineTx interface {
	GetMarketForUpdate(ctx context.Context, id string) (Market, error)
	CreateMarket(ctx context.Context, m Market) error
	UpdateMarket(ctx context.Context, m Market) error

	GetAccount(ctx context.Context, id string) (Account, error)
	// AdjustBalance applies delta to the account balance and writes the
	// matching ledger entry. It fails with ErrInsufficientBalance when the
	// result would be negative and allowNegative is false.
	AdjustBalance(ctx context.Context, entry LedgerEntry, allowNegative bool) (money.Cents, error)

	GetOpenPosition(ctx context.Context, userID, marketID string, outcome Outcome) (Position, error)
	UpsertPosition(ctx context.Context, p Position) error
	ListOpenPositions(ctx context.Context, marketID string) ([]Position, error)

	CreateOrder(ctx context.Context, o Order) error
	GetOrderForUpdate(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ListRestingOrders(ctx context.Context, marketID string) ([]Order, error)
}

// TxRunner executes fn inside a single atomic transaction. Any error from fn
// rolls back every mutation made through the EngineTx.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx EngineTx) error) error
}
