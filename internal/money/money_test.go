package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDollars(t *testing.T) {
	tests := []struct {
		name    string
		dollars float64
		want    Cents
	}{
		{"whole dollars", 100, 10000},
		{"exact cents", 99.99, 9999},
		{"rounds half up", 0.005, 1},
		{"rounds down below half", 0.004, 0},
		{"negative rounds away from zero", -0.005, -1},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromDollars(tt.dollars))
		})
	}
}

func TestDollarsRoundTrip(t *testing.T) {
	c := FromDollars(123.45)
	assert.Equal(t, Cents(12345), c)
	assert.Equal(t, 123.45, c.Dollars())
}

func TestMulRate(t *testing.T) {
	// 2% fee on $100.
	assert.Equal(t, Cents(200), Cents(10000).MulRate(0.02))
	// Rounds to the nearest cent.
	assert.Equal(t, Cents(33), Cents(999).MulRate(0.0333))
	assert.Equal(t, Cents(0), Cents(10000).MulRate(0))
}

func TestMin(t *testing.T) {
	assert.Equal(t, Cents(1), Min(1, 2))
	assert.Equal(t, Cents(1), Min(2, 1))
	assert.Equal(t, Cents(-5), Min(-5, 0))
}

func TestSplitByRatio(t *testing.T) {
	tests := []struct {
		name   string
		total  Cents
		ratio  float64
		first  Cents
		second Cents
	}{
		{"even split", 10000, 0.5, 5000, 5000},
		{"odd total absorbs remainder on second", 10001, 0.5, 5000, 5001},
		{"zero ratio", 10000, 0, 0, 10000},
		{"full ratio", 10000, 1, 10000, 0},
		{"ratio clamped below zero", 10000, -0.3, 0, 10000},
		{"ratio clamped above one", 10000, 1.7, 10000, 0},
		{"uneven ratio floors the first part", 100, 1.0 / 3.0, 33, 67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, second := SplitByRatio(tt.total, tt.ratio)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.second, second)
			require.Equal(t, tt.total, first+second, "split must conserve the total")
		})
	}
}
