package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testRules() *InstrumentRules {
	return &InstrumentRules{
		MinQty:         decimal.RequireFromString("0.01"),
		MaxQty:         decimal.RequireFromString("9000"),
		StepSize:       decimal.RequireFromString("0.01"),
		QtyPrecision:   2,
		MinPrice:       decimal.RequireFromString("0.001"),
		MaxPrice:       decimal.RequireFromString("100000"),
		TickSize:       decimal.RequireFromString("0.001"),
		PricePrecision: 3,
	}
}

func TestRoundQuantity(t *testing.T) {
	rules := testRules()

	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"snaps to step", "1.234567", "1.23"},
		{"rounds up to nearest step", "1.239", "1.24"},
		{"clamps below min", "0.001", "0.01"},
		{"clamps above max", "10000", "9000"},
		{"exact multiple unchanged", "2.5", "2.5"},
		{"zero clamps to min", "0", "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules.RoundQuantity(decimal.RequireFromString(tt.in))
			require.True(t, decimal.RequireFromString(tt.expected).Equal(got),
				"expected %s, got %s", tt.expected, got.String())
		})
	}
}

func TestRoundPrice(t *testing.T) {
	rules := testRules()

	got := rules.RoundPrice(decimal.RequireFromString("123.45678"))
	require.True(t, decimal.RequireFromString("123.457").Equal(got), "got %s", got.String())

	got = rules.RoundPrice(decimal.RequireFromString("200000"))
	require.True(t, decimal.RequireFromString("100000").Equal(got), "got %s", got.String())
}

func TestRoundingWithUnalignedBounds(t *testing.T) {
	rules := &InstrumentRules{
		MinQty:       decimal.NewFromInt(1),
		MaxQty:       decimal.NewFromInt(10),
		StepSize:     decimal.NewFromInt(4),
		QtyPrecision: 0,
	}

	// nearest-step rounding of the clamped max would land on 12
	got := rules.RoundQuantity(decimal.NewFromInt(11))
	require.True(t, decimal.NewFromInt(8).Equal(got), "got %s", got)

	// nearest-step rounding of the clamped min would land on 0
	got = rules.RoundQuantity(decimal.NewFromInt(1))
	require.True(t, decimal.NewFromInt(4).Equal(got), "got %s", got)

	for _, in := range []int64{0, 1, 3, 5, 9, 10, 11, 100} {
		q := rules.RoundQuantity(decimal.NewFromInt(in))
		require.True(t, q.GreaterThanOrEqual(rules.MinQty), "quantity %s below min for input %d", q, in)
		require.True(t, q.LessThanOrEqual(rules.MaxQty), "quantity %s above max for input %d", q, in)
		require.True(t, q.Mod(rules.StepSize).IsZero(), "quantity %s not a step multiple for input %d", q, in)
	}
}

func TestRoundingInvariants(t *testing.T) {
	rules := testRules()

	inputs := []string{"0", "0.005", "0.015", "1.2345", "17.777", "8999.999", "9001", "42"}
	for _, in := range inputs {
		q := rules.RoundQuantity(decimal.RequireFromString(in))

		require.True(t, q.GreaterThanOrEqual(rules.MinQty), "quantity %s below min for input %s", q, in)
		require.True(t, q.LessThanOrEqual(rules.MaxQty), "quantity %s above max for input %s", q, in)
		require.True(t, q.Mod(rules.StepSize).IsZero(), "quantity %s not a step multiple for input %s", q, in)

		// idempotence: rounding a rounded value changes nothing
		require.True(t, q.Equal(rules.RoundQuantity(q)), "rounding not idempotent for input %s", in)
	}

	for _, in := range inputs {
		p := rules.RoundPrice(decimal.RequireFromString(in))

		require.True(t, p.GreaterThanOrEqual(rules.MinPrice))
		require.True(t, p.LessThanOrEqual(rules.MaxPrice))
		require.True(t, p.Mod(rules.TickSize).IsZero())
		require.True(t, p.Equal(rules.RoundPrice(p)))
	}
}
