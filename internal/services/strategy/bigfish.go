package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/config"
	"github.com/vadiminshakov/stacker/internal/domain"
)

// BigFish scans consecutive ask levels for a single unusually large resting
// order and takes it, sweeping the cheaper levels in front of it. The order
// is priced at the qualifying level: a crossing limit at that price fills
// every scanned level too, so no separate per-level pricing is needed.
type BigFish struct {
	cfg     config.BigFishConfig
	ceiling decimal.Decimal
}

// NewBigFish creates the liquidity-taking strategy with the given price ceiling.
func NewBigFish(cfg config.BigFishConfig, ceiling decimal.Decimal) *BigFish {
	return &BigFish{cfg: cfg, ceiling: ceiling}
}

func (s *BigFish) Name() string {
	return config.StrategyBigFish
}

func (s *BigFish) Cooldown() time.Duration {
	return jitteredCooldown(s.cfg.Cooldown, s.cfg.Jitter)
}

// Decide accumulates ask quantity until a level holds at least
// minVolumeFraction×remaining, the running total reaches remaining, or the
// scan depth runs out. Only a qualifying level produces an order; its size is
// the accumulated quantity capped at remaining. The quantity-weighted average
// price of the scanned levels is checked against the ceiling so a deep sweep
// cannot quietly overpay.
func (s *BigFish) Decide(book *domain.OrderBook, remaining decimal.Decimal) (*domain.OrderIntent, error) {
	minVolume := remaining.Mul(s.cfg.MinVolumeFraction)
	if !minVolume.IsPositive() {
		return nil, nil
	}

	accumulated := decimal.Zero
	weightedSum := decimal.Zero

	for i, level := range book.Asks {
		if i >= s.cfg.ScanDepth {
			break
		}

		accumulated = accumulated.Add(level.Quantity)
		weightedSum = weightedSum.Add(level.Price.Mul(level.Quantity))

		if level.Quantity.GreaterThanOrEqual(minVolume) {
			avgPrice := weightedSum.Div(accumulated)
			if s.ceiling.IsPositive() && avgPrice.GreaterThan(s.ceiling) {
				return nil, nil
			}

			size := accumulated
			if remaining.LessThan(size) {
				size = remaining
			}

			return &domain.OrderIntent{
				Kind:     domain.OrderKindTaker,
				Price:    level.Price,
				Quantity: size,
			}, nil
		}

		if accumulated.GreaterThanOrEqual(remaining) {
			break
		}
	}

	return nil, nil
}
