package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/config"
	"github.com/vadiminshakov/stacker/internal/domain"
)

var percentDivisor = decimal.NewFromInt(100)

// ShadowBid is the passive maker: it mirrors the best bid with a post-only
// order, resting in the book without ever crossing the spread.
type ShadowBid struct {
	cfg    config.ShadowBidConfig
	target decimal.Decimal
}

// NewShadowBid creates the shadow-bid strategy for the given run target.
func NewShadowBid(cfg config.ShadowBidConfig, target decimal.Decimal) *ShadowBid {
	return &ShadowBid{cfg: cfg, target: target}
}

func (s *ShadowBid) Name() string {
	return config.StrategyShadowBid
}

func (s *ShadowBid) Cooldown() time.Duration {
	return jitteredCooldown(s.cfg.Cooldown, s.cfg.Jitter)
}

// Decide sizes the order as min(remaining, target×sizePercent) and prices it
// at the current best bid.
func (s *ShadowBid) Decide(book *domain.OrderBook, remaining decimal.Decimal) (*domain.OrderIntent, error) {
	bestBid, ok := book.BestBid()
	if !ok {
		return nil, nil
	}

	size := s.target.Mul(s.cfg.SizePercent).Div(percentDivisor)
	if remaining.LessThan(size) {
		size = remaining
	}
	if !size.IsPositive() {
		return nil, nil
	}

	return &domain.OrderIntent{
		Kind:     domain.OrderKindMaker,
		Price:    bestBid.Price,
		Quantity: size,
	}, nil
}
