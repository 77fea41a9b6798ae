package domain

import "github.com/yesnolabs/venue/internal/money"

// Reserves is a point-in-time copy of a market's pool state, returned to
// callers after mutating operations.
type Reserves struct {
	Yes money.Cents
	No  money.Cents
}

// TradeResult is the outcome of a committed buy or sell.
type TradeResult struct {
	OrderID     string
	Shares      float64 // shares bought or sold
	ExecPrice   float64
	FeeDeducted money.Cents
	NetReturn   money.Cents // sells only: amount credited to the user
	NewBalance  money.Cents
	NewReserves Reserves
}

// LiquidityResult reports the exact split of an injection or withdrawal.
type LiquidityResult struct {
	AmountYes   money.Cents
	AmountNo    money.Cents
	NewReserves Reserves
}

// SettlementSummary reports the effect of resolving a market. Re-resolving
// an already-resolved market returns the stored summary with Replayed set.
type SettlementSummary struct {
	MarketID         string
	Outcome          Outcome
	PositionsSettled int
	WinningPositions int
	TotalPayout      money.Cents
	OrdersCanceled   int
	Replayed         bool
}
