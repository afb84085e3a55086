package rules

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/stacker/internal/exchange"
	"go.uber.org/zap"
)

type fakeFiltersProvider struct {
	filters exchange.Filters
	err     error
	calls   int
}

func (f *fakeFiltersProvider) InstrumentFilters(_ context.Context) (exchange.Filters, error) {
	f.calls++
	return f.filters, f.err
}

func validFilters() exchange.Filters {
	return exchange.Filters{
		MinQty:   "0.01000000",
		MaxQty:   "9000.00000000",
		StepSize: "0.01000000",
		MinPrice: "0.00100000",
		MaxPrice: "100000.00000000",
		TickSize: "0.00100000",
	}
}

func TestResolverParsesAndCaches(t *testing.T) {
	provider := &fakeFiltersProvider{filters: validFilters()}
	resolver := NewResolver(provider, zap.NewNop())

	rules, err := resolver.Rules(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), rules.QtyPrecision)
	require.Equal(t, int32(3), rules.PricePrecision)
	require.Equal(t, "0.01", rules.StepSize.String())
	require.Equal(t, "0.001", rules.TickSize.String())

	again, err := resolver.Rules(context.Background())
	require.NoError(t, err)
	require.Same(t, rules, again, "second call should serve the cached rules")
	require.Equal(t, 1, provider.calls, "filters should be fetched once per process")
}

func TestResolverMetadataUnavailable(t *testing.T) {
	provider := &fakeFiltersProvider{err: errors.Wrap(exchange.ErrMetadataUnavailable, "symbol FOO_BAR not found")}
	resolver := NewResolver(provider, zap.NewNop())

	_, err := resolver.Rules(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, exchange.ErrMetadataUnavailable))
}

func TestResolverRejectsEmptyFilterField(t *testing.T) {
	filters := validFilters()
	filters.TickSize = ""
	provider := &fakeFiltersProvider{filters: filters}
	resolver := NewResolver(provider, zap.NewNop())

	_, err := resolver.Rules(context.Background())
	require.True(t, errors.Is(err, exchange.ErrMetadataUnavailable))
}

func TestPrecisionOf(t *testing.T) {
	tests := []struct {
		in       string
		expected int32
	}{
		{"0.00100000", 3},
		{"0.01000000", 2},
		{"1.00000000", 0},
		{"100", 0},
		{"0.1", 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, precisionOf(tt.in), "input %s", tt.in)
	}
}
