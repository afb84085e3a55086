package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/config"
	"github.com/vadiminshakov/stacker/internal/domain"
)

// CooldownTaker lifts the best ask on a cooldown, skipping cycles when the
// price is above the ceiling or the resting ask looks abnormally large. A
// very large best ask usually signals short-term selling pressure worth
// waiting out rather than buying into.
type CooldownTaker struct {
	cfg     config.CooldownTakerConfig
	target  decimal.Decimal
	ceiling decimal.Decimal
}

// NewCooldownTaker creates the taker strategy for the given target and price ceiling.
func NewCooldownTaker(cfg config.CooldownTakerConfig, target, ceiling decimal.Decimal) *CooldownTaker {
	return &CooldownTaker{cfg: cfg, target: target, ceiling: ceiling}
}

func (s *CooldownTaker) Name() string {
	return config.StrategyCooldownTaker
}

func (s *CooldownTaker) Cooldown() time.Duration {
	return jitteredCooldown(s.cfg.Cooldown, s.cfg.Jitter)
}

// Decide buys min(target×sizePercent, remaining) at the best ask, or skips.
func (s *CooldownTaker) Decide(book *domain.OrderBook, remaining decimal.Decimal) (*domain.OrderIntent, error) {
	bestAsk, ok := book.BestAsk()
	if !ok {
		return nil, nil
	}

	if s.ceiling.IsPositive() && bestAsk.Price.GreaterThan(s.ceiling) {
		return nil, nil
	}

	maxAskQty := remaining.Mul(s.cfg.MaxAskFraction)
	if bestAsk.Quantity.GreaterThan(maxAskQty) {
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
		Kind:     domain.OrderKindTaker,
		Price:    bestAsk.Price,
		Quantity: size,
	}, nil
}
