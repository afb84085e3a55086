package domain

import "github.com/shopspring/decimal"

// Level is a single price level of the order book.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is an immutable snapshot of the book: bids descending, asks ascending.
// Readers must never mutate a snapshot; producers publish a fresh one instead.
type OrderBook struct {
	Bids []Level
	Asks []Level
}

// BestBid returns the highest bid, if any.
func (b *OrderBook) BestBid() (Level, bool) {
	if b == nil || len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (b *OrderBook) BestAsk() (Level, bool) {
	if b == nil || len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}
