// Package rules resolves and caches the exchange quantization rules for the
// tracked instrument and exposes legal rounding of quantities and prices.
package rules

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/internal/domain"
	"github.com/vadiminshakov/stacker/internal/exchange"
	"go.uber.org/zap"
)

type filtersProvider interface {
	InstrumentFilters(ctx context.Context) (exchange.Filters, error)
}

// Resolver loads instrument rules once and serves the cached copy afterwards.
type Resolver struct {
	provider filtersProvider
	logger   *zap.Logger

	mu     sync.Mutex
	cached *domain.InstrumentRules
}

// NewResolver creates a resolver backed by the given filters provider.
func NewResolver(provider filtersProvider, logger *zap.Logger) *Resolver {
	return &Resolver{provider: provider, logger: logger}
}

// Rules returns the instrument rules, fetching them on first use. A missing
// symbol or filter surfaces as exchange.ErrMetadataUnavailable.
func (r *Resolver) Rules(ctx context.Context) (*domain.InstrumentRules, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	filters, err := r.provider.InstrumentFilters(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := parseFilters(filters)
	if err != nil {
		return nil, err
	}

	r.logger.Info("instrument rules loaded",
		zap.String("min_qty", rules.MinQty.String()),
		zap.String("max_qty", rules.MaxQty.String()),
		zap.String("step_size", rules.StepSize.String()),
		zap.Int32("qty_precision", rules.QtyPrecision),
		zap.String("min_price", rules.MinPrice.String()),
		zap.String("max_price", rules.MaxPrice.String()),
		zap.String("tick_size", rules.TickSize.String()),
		zap.Int32("price_precision", rules.PricePrecision))

	r.cached = rules

	return rules, nil
}

func parseFilters(f exchange.Filters) (*domain.InstrumentRules, error) {
	var rules domain.InstrumentRules
	var err error

	fields := []struct {
		dst  *decimal.Decimal
		src  string
		name string
	}{
		{&rules.MinQty, f.MinQty, "minQty"},
		{&rules.MaxQty, f.MaxQty, "maxQty"},
		{&rules.StepSize, f.StepSize, "stepSize"},
		{&rules.MinPrice, f.MinPrice, "minPrice"},
		{&rules.MaxPrice, f.MaxPrice, "maxPrice"},
		{&rules.TickSize, f.TickSize, "tickSize"},
	}
	for _, field := range fields {
		if field.src == "" {
			return nil, errors.Wrapf(exchange.ErrMetadataUnavailable, "filter field %s is empty", field.name)
		}
		*field.dst, err = decimal.NewFromString(field.src)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse filter field %s", field.name)
		}
	}

	if !rules.StepSize.IsPositive() || !rules.TickSize.IsPositive() {
		return nil, errors.Wrap(exchange.ErrMetadataUnavailable, "step or tick size is not positive")
	}

	rules.QtyPrecision = precisionOf(f.StepSize)
	rules.PricePrecision = precisionOf(f.TickSize)

	return &rules, nil
}

// precisionOf counts significant fractional digits: "0.00100000" has 3.
func precisionOf(s string) int32 {
	s = strings.TrimRight(s, "0")
	if i := strings.Index(s, "."); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}
