// Package exchange wraps the Binance spot client behind the narrow surface the
// accumulation bot needs: order book reads, balances, order placement and the
// event subscriptions. Transport, signing and wire parsing stay in the client.
package exchange

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/internal/domain"
	"go.uber.org/zap"
)

// Filters is the raw quantization filter set for the tracked instrument,
// string-valued exactly as the exchange reports it.
type Filters struct {
	MinQty   string
	MaxQty   string
	StepSize string
	MinPrice string
	MaxPrice string
	TickSize string
}

// OpenOrder is a resting order on the tracked instrument.
type OpenOrder struct {
	ID       int64
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Gateway is the Binance-backed implementation of the bot's exchange surface.
type Gateway struct {
	client *binance.Client
	pair   domain.Pair
	logger *zap.Logger
}

// NewGateway creates a gateway bound to one instrument.
func NewGateway(client *binance.Client, pair domain.Pair, logger *zap.Logger) *Gateway {
	return &Gateway{
		client: client,
		pair:   pair,
		logger: logger.With(zap.String("pair", pair.String())),
	}
}

// Pair returns the tracked instrument.
func (g *Gateway) Pair() domain.Pair {
	return g.pair
}

// OrderBook fetches a depth snapshot, bids descending and asks ascending.
func (g *Gateway) OrderBook(ctx context.Context, depth int) (*domain.OrderBook, error) {
	resp, err := g.client.NewDepthService().Symbol(g.pair.Symbol()).Limit(depth).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch order book for %s", g.pair.Symbol())
	}

	book := &domain.OrderBook{
		Bids: make([]domain.Level, 0, len(resp.Bids)),
		Asks: make([]domain.Level, 0, len(resp.Asks)),
	}
	for _, b := range resp.Bids {
		level, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, level)
	}
	for _, a := range resp.Asks {
		level, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, level)
	}

	return book, nil
}

// Balance returns the free and locked amounts of one asset.
func (g *Gateway) Balance(ctx context.Context, asset string) (free, locked decimal.Decimal, err error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset != asset {
			continue
		}
		free, err = decimal.NewFromString(balance.Free)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to parse free balance")
		}
		locked, err = decimal.NewFromString(balance.Locked)
		if err != nil {
			return decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to parse locked balance")
		}
		return free, locked, nil
	}

	return decimal.Zero, decimal.Zero, nil
}

// PlaceMakerOrder submits a post-only BUY limit order. The exchange rejects it
// instead of matching if the price would cross the spread.
func (g *Gateway) PlaceMakerOrder(ctx context.Context, quantity, price decimal.Decimal) (int64, error) {
	resp, err := g.client.NewCreateOrderService().Symbol(g.pair.Symbol()).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeLimitMaker).
		Quantity(quantity.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	return resp.OrderID, nil
}

// PlaceTakerOrder submits an immediate-or-cancel BUY limit order that crosses
// the spread and fills against resting asks up to the given price.
func (g *Gateway) PlaceTakerOrder(ctx context.Context, quantity, price decimal.Decimal) (int64, error) {
	resp, err := g.client.NewCreateOrderService().Symbol(g.pair.Symbol()).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeIOC).
		Quantity(quantity.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	return resp.OrderID, nil
}

// CancelOrder cancels a resting order by exchange id.
func (g *Gateway) CancelOrder(ctx context.Context, orderID int64) error {
	_, err := g.client.NewCancelOrderService().
		Symbol(g.pair.Symbol()).
		OrderID(orderID).
		Do(ctx)
	return err
}

// OpenOrders lists resting orders on the tracked instrument.
func (g *Gateway) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	orders, err := g.client.NewListOpenOrdersService().Symbol(g.pair.Symbol()).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list open orders for %s", g.pair.Symbol())
	}

	result := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse open order price")
		}
		qty, err := decimal.NewFromString(o.OrigQuantity)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse open order quantity")
		}
		result = append(result, OpenOrder{ID: o.OrderID, Price: price, Quantity: qty})
	}

	return result, nil
}

// InstrumentFilters fetches the LOT_SIZE and PRICE_FILTER rules for the
// tracked instrument. Returns ErrMetadataUnavailable when the symbol or a
// required filter is missing.
func (g *Gateway) InstrumentFilters(ctx context.Context) (Filters, error) {
	info, err := g.client.NewExchangeInfoService().Symbols(g.pair.Symbol()).Do(ctx)
	if err != nil {
		return Filters{}, errors.Wrapf(err, "failed to fetch exchange info for %s", g.pair.Symbol())
	}

	for _, s := range info.Symbols {
		if s.Symbol != g.pair.Symbol() {
			continue
		}

		lot := s.LotSizeFilter()
		price := s.PriceFilter()
		if lot == nil || price == nil {
			return Filters{}, errors.Wrapf(ErrMetadataUnavailable, "missing filters for %s", g.pair.Symbol())
		}

		return Filters{
			MinQty:   lot.MinQuantity,
			MaxQty:   lot.MaxQuantity,
			StepSize: lot.StepSize,
			MinPrice: price.MinPrice,
			MaxPrice: price.MaxPrice,
			TickSize: price.TickSize,
		}, nil
	}

	return Filters{}, errors.Wrapf(ErrMetadataUnavailable, "symbol %s not found", g.pair.Symbol())
}

func parseLevel(price, quantity string) (domain.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Level{}, errors.Wrap(err, "failed to parse level price")
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return domain.Level{}, errors.Wrap(err, "failed to parse level quantity")
	}
	return domain.Level{Price: p, Quantity: q}, nil
}
