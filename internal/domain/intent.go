package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderKind distinguishes resting maker orders from spread-crossing takers.
type OrderKind int

const (
	// OrderKindMaker rests on the book without matching (post-only).
	OrderKindMaker OrderKind = iota
	// OrderKindTaker crosses the spread and matches immediately.
	OrderKindTaker
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMaker:
		return "maker"
	case OrderKindTaker:
		return "taker"
	default:
		return "unknown"
	}
}

// OrderIntent is a strategy's decision for one cycle: what to buy and how.
type OrderIntent struct {
	Kind     OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// String returns a human-readable string representation.
func (i *OrderIntent) String() string {
	return fmt.Sprintf("%s buy %s @ %s", i.Kind, i.Quantity.String(), i.Price.String())
}
