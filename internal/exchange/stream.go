package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/internal/domain"
	"go.uber.org/zap"
)

const listenKeyKeepaliveInterval = 30 * time.Minute

// AccountEvent is a normalized order update from the user-data stream.
type AccountEvent struct {
	Symbol       string
	Side         string
	Status       string
	OrderID      int64
	LastQty      decimal.Decimal
	LastPrice    decimal.Decimal
	RejectReason string
	Time         time.Time
}

// IsBuyFill reports whether this event carries newly executed BUY quantity.
func (e *AccountEvent) IsBuyFill() bool {
	return e.Side == string(binance.SideTypeBuy) &&
		(e.Status == string(binance.OrderStatusTypeFilled) || e.Status == string(binance.OrderStatusTypePartiallyFilled)) &&
		e.LastQty.IsPositive()
}

// IsInsufficientBalanceRejection reports whether the exchange rejected the
// order because the account cannot fund it.
func (e *AccountEvent) IsInsufficientBalanceRejection() bool {
	return e.Status == string(binance.OrderStatusTypeRejected) &&
		strings.Contains(strings.ToUpper(e.RejectReason), "INSUFFICIENT")
}

// Trade is a public market trade.
type Trade struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

// StopFunc tears down one subscription.
type StopFunc func()

// SubscribeBook streams partial depth snapshots. Each event replaces the
// previous snapshot wholesale, so the handler always sees a consistent book.
func (g *Gateway) SubscribeBook(depth int, handler func(*domain.OrderBook)) (StopFunc, error) {
	wsHandler := func(event *binance.WsPartialDepthEvent) {
		book := &domain.OrderBook{
			Bids: make([]domain.Level, 0, len(event.Bids)),
			Asks: make([]domain.Level, 0, len(event.Asks)),
		}
		for _, b := range event.Bids {
			level, err := parseLevel(b.Price, b.Quantity)
			if err != nil {
				g.logger.Error("failed to parse depth bid", zap.Error(err))
				return
			}
			book.Bids = append(book.Bids, level)
		}
		for _, a := range event.Asks {
			level, err := parseLevel(a.Price, a.Quantity)
			if err != nil {
				g.logger.Error("failed to parse depth ask", zap.Error(err))
				return
			}
			book.Asks = append(book.Asks, level)
		}
		handler(book)
	}

	errHandler := func(err error) {
		g.logger.Error("book stream error", zap.Error(err))
	}

	_, stopC, err := binance.WsPartialDepthServe(g.pair.Symbol(), strconv.Itoa(depth), wsHandler, errHandler)
	if err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to book updates")
	}

	return func() { close(stopC) }, nil
}

// SubscribeTrades streams public trades for the tracked instrument.
func (g *Gateway) SubscribeTrades(handler func(Trade)) (StopFunc, error) {
	wsHandler := func(event *binance.WsAggTradeEvent) {
		price, err := decimal.NewFromString(event.Price)
		if err != nil {
			g.logger.Error("failed to parse trade price", zap.Error(err))
			return
		}
		qty, err := decimal.NewFromString(event.Quantity)
		if err != nil {
			g.logger.Error("failed to parse trade quantity", zap.Error(err))
			return
		}
		handler(Trade{Price: price, Quantity: qty, Time: time.UnixMilli(event.TradeTime)})
	}

	errHandler := func(err error) {
		g.logger.Error("trade stream error", zap.Error(err))
	}

	_, stopC, err := binance.WsAggTradeServe(g.pair.Symbol(), wsHandler, errHandler)
	if err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to trades")
	}

	return func() { close(stopC) }, nil
}

// SubscribeAccount streams execution reports from the user-data stream,
// keeping the listen key alive until the subscription is stopped.
func (g *Gateway) SubscribeAccount(ctx context.Context, handler func(AccountEvent)) (StopFunc, error) {
	listenKey, err := g.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start user data stream")
	}

	wsHandler := func(event *binance.WsUserDataEvent) {
		if event.Event != binance.UserDataEventTypeExecutionReport {
			return
		}
		normalized, err := normalizeOrderUpdate(&event.OrderUpdate)
		if err != nil {
			g.logger.Error("failed to normalize execution report", zap.Error(err))
			return
		}
		handler(normalized)
	}

	errHandler := func(err error) {
		g.logger.Error("account stream error", zap.Error(err))
	}

	_, stopC, err := binance.WsUserDataServe(listenKey, wsHandler, errHandler)
	if err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to account events")
	}

	keepaliveDone := make(chan struct{})
	go g.keepListenKeyAlive(listenKey, keepaliveDone)

	return func() {
		close(keepaliveDone)
		close(stopC)
	}, nil
}

func (g *Gateway) keepListenKeyAlive(listenKey string, done <-chan struct{}) {
	ticker := time.NewTicker(listenKeyKeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := g.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
			cancel()
			if err != nil {
				g.logger.Warn("failed to keep listen key alive", zap.Error(err))
			}
		}
	}
}

func normalizeOrderUpdate(u *binance.WsOrderUpdate) (AccountEvent, error) {
	lastQty, err := decimal.NewFromString(u.LatestVolume)
	if err != nil {
		return AccountEvent{}, errors.Wrap(err, "failed to parse last executed quantity")
	}
	lastPrice, err := decimal.NewFromString(u.LatestPrice)
	if err != nil {
		return AccountEvent{}, errors.Wrap(err, "failed to parse last executed price")
	}

	return AccountEvent{
		Symbol:       u.Symbol,
		Side:         u.Side,
		Status:       u.Status,
		OrderID:      u.Id,
		LastQty:      lastQty,
		LastPrice:    lastPrice,
		RejectReason: u.RejectReason,
		Time:         time.UnixMilli(u.TransactionTime),
	}, nil
}
