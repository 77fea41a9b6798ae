package domain

import (
	"time"

	"github.com/yesnolabs/venue/internal/money"
)

// OrderType distinguishes immediate executions from resting limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of an order. PENDING and
// PARTIALLY_FILLED are valid only for LIMIT orders resting in the book.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// Order is an immutable audit record of a single fill or resting limit
// order. Orders are never deleted, only status-transitioned.
type Order struct {
	ID       string
	UserID   string
	MarketID string
	Outcome  Outcome
	Type     OrderType
	Side     OrderSide

	// Amount is the gross notional requested, in cents.
	Amount money.Cents

	// FilledShares is the share quantity actually executed. Shares, not
	// notional: a fully filled $100 market buy at price 0.50 records 196
	// shares here (net of fee), not 100.
	FilledShares float64

	// LimitPrice is set only for LIMIT orders, in (0,1).
	LimitPrice *float64

	// FeeDeducted is the fee taken from the gross amount, in cents.
	FeeDeducted money.Cents

	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resting reports whether the order is live in the book.
func (o *Order) Resting() bool {
	return o.Type == OrderTypeLimit &&
		(o.Status == OrderStatusPending || o.Status == OrderStatusPartiallyFilled)
}

// RemainingShares returns the unfilled share quantity of a resting limit
// order (amount/limitPrice minus what has already filled). Zero for
// non-limit orders.
func (o *Order) RemainingShares() float64 {
	if o.Type != OrderTypeLimit || o.LimitPrice == nil || *o.LimitPrice <= 0 {
		return 0
	}
	return o.Amount.Dollars()/(*o.LimitPrice) - o.FilledShares
}
