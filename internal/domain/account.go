package domain

import (
	"time"

	"github.com/yesnolabs/venue/internal/money"
)

// Account holds a scalar balance for a user or system account. Balances are
// mutated exclusively inside the same atomic transaction as the order,
// position, or pool mutation they fund.
type Account struct {
	ID        string
	Name      string
	System    bool
	Balance   money.Cents
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SystemAccounts carries the well-known double-entry counterpart accounts,
// threaded explicitly into the engine instead of being looked up by magic
// identifiers at call time. Tests inject their own set.
type SystemAccounts struct {
	// Custody holds pool money: trade inflows and injected liquidity.
	Custody string
	// Fee accumulates fee income from trades.
	Fee string
	// Liquidity is the capital source debited on injections and credited
	// on withdrawals.
	Liquidity string
}

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerKindTrade      LedgerKind = "TRADE"
	LedgerKindFee        LedgerKind = "FEE"
	LedgerKindLiquidity  LedgerKind = "LIQUIDITY"
	LedgerKindSettlement LedgerKind = "SETTLEMENT"
	LedgerKindRefund     LedgerKind = "REFUND"
)

// LedgerEntry is one leg of a double-entry journal row. Every balance
// mutation writes one; the legs of a single operation sum to zero.
type LedgerEntry struct {
	ID        int64
	AccountID string
	Amount    money.Cents
	Kind      LedgerKind
	Reason    string
	OrderID   string
	CreatedAt time.Time
}
