// Package money provides fixed-point arithmetic for monetary values.
//
// Every dollar amount entering the engine is converted to an integer count
// of cents before any arithmetic, and converted back to a float only at the
// presentation boundary. This eliminates floating-point drift in balances
// and pool reserves.
package money

import "math"

// Cents is a monetary amount in integer minor units (US cents).
type Cents int64

// FromDollars converts a dollar amount to cents, rounding half away from zero.
func FromDollars(d float64) Cents {
	return Cents(math.Round(d * 100))
}

// Dollars converts back to a float dollar amount. Boundary use only.
func (c Cents) Dollars() float64 {
	return float64(c) / 100
}

// MulRate multiplies by a fractional rate (e.g. a fee rate), rounding the
// result to the nearest cent.
func (c Cents) MulRate(rate float64) Cents {
	return Cents(math.Round(float64(c) * rate))
}

// Min returns the smaller of a and b.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// SplitByRatio splits total into two parts where the first is proportional
// to ratio (in [0,1]). The first part is rounded down and the second is the
// exact complement, so first+second == total always holds. Splitting a
// total by independently rounding both halves can leak or mint a cent;
// this remainder-absorption rule is mandatory wherever reserves or
// balances are divided.
func SplitByRatio(total Cents, ratio float64) (first, second Cents) {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	first = Cents(math.Floor(float64(total) * ratio))
	second = total - first
	return first, second
}
