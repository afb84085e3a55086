package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is an executed buy recorded against the session. Immutable once created.
type Fill struct {
	Time     time.Time       `json:"ts"`
	Quantity decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
}

// NewFill creates a fill with its cost derived from quantity and price.
func NewFill(t time.Time, quantity, price decimal.Decimal) Fill {
	return Fill{
		Time:     t,
		Quantity: quantity,
		Price:    price,
		Cost:     quantity.Mul(price),
	}
}
