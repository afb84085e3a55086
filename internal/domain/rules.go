package domain

import "github.com/shopspring/decimal"

// InstrumentRules holds the exchange quantization filters for one instrument.
// Loaded once at startup and read-only afterwards.
type InstrumentRules struct {
	MinQty         decimal.Decimal
	MaxQty         decimal.Decimal
	StepSize       decimal.Decimal
	QtyPrecision   int32
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	TickSize       decimal.Decimal
	PricePrecision int32
}

// RoundQuantity clamps the quantity to [MinQty, MaxQty] and snaps it to the
// nearest multiple of StepSize at the filter's precision. Idempotent.
func (r *InstrumentRules) RoundQuantity(q decimal.Decimal) decimal.Decimal {
	return snap(q, r.MinQty, r.MaxQty, r.StepSize, r.QtyPrecision)
}

// RoundPrice clamps the price to [MinPrice, MaxPrice] and snaps it to the
// nearest multiple of TickSize at the filter's precision. Idempotent.
func (r *InstrumentRules) RoundPrice(p decimal.Decimal) decimal.Decimal {
	return snap(p, r.MinPrice, r.MaxPrice, r.TickSize, r.PricePrecision)
}

func snap(v, min, max, step decimal.Decimal, precision int32) decimal.Decimal {
	if min.IsPositive() && v.LessThan(min) {
		v = min
	}
	if max.IsPositive() && v.GreaterThan(max) {
		v = max
	}
	if step.IsPositive() {
		snapped := v.Div(step).Round(0).Mul(step).Round(precision)
		// nearest-step rounding can escape [min, max] when a bound is not
		// itself a step multiple; round toward the range instead
		if max.IsPositive() && snapped.GreaterThan(max) {
			snapped = v.Div(step).Floor().Mul(step).Round(precision)
		}
		if min.IsPositive() && snapped.LessThan(min) {
			snapped = v.Div(step).Ceil().Mul(step).Round(precision)
		}
		v = snapped
	}
	return v
}
