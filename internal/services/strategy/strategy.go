// Package strategy contains the trading heuristics and the worker runner that
// drives them. A strategy only decides; the worker owns the cooldown loop,
// order placement and the at-most-one-resting-order bookkeeping.
package strategy

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/internal/domain"
	"github.com/vadiminshakov/stacker/internal/exchange"
	"go.uber.org/zap"
)

const pollInterval = time.Second

// Coordinator is the worker-facing slice of the orchestrator. Workers never
// mutate the ledger or the target; they read shared state through it.
type Coordinator interface {
	RemainingQuantity() decimal.Decimal
	Book() *domain.OrderBook
	Rules() *domain.InstrumentRules
	ReportInsufficientFunds(err error)
}

// orderPlacer is the slice of the exchange gateway workers use.
type orderPlacer interface {
	PlaceMakerOrder(ctx context.Context, quantity, price decimal.Decimal) (int64, error)
	PlaceTakerOrder(ctx context.Context, quantity, price decimal.Decimal) (int64, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

// Strategy decides whether and what to order on one cycle.
type Strategy interface {
	Name() string
	// Cooldown returns the jittered minimum wait between this strategy's orders.
	Cooldown() time.Duration
	Decide(book *domain.OrderBook, remaining decimal.Decimal) (*domain.OrderIntent, error)
}

// jitteredCooldown is base ± uniform jitter, never negative.
func jitteredCooldown(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	offset := time.Duration((rand.Float64()*2 - 1) * float64(jitter))
	cooldown := base + offset
	if cooldown < 0 {
		cooldown = 0
	}
	return cooldown
}

// Worker runs one strategy in its own goroutine with a cooldown-gated loop.
type Worker struct {
	strategy Strategy
	coord    Coordinator
	exchange orderPlacer
	logger   *zap.Logger

	lastOrderAt  time.Time
	nextCooldown time.Duration

	// restingMu guards restingOrderID: Stop may cancel the resting order
	// while a timed-out loop is still placing
	restingMu      sync.Mutex
	restingOrderID int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker wires a strategy to the coordinator and the exchange.
func NewWorker(s Strategy, coord Coordinator, exch orderPlacer, logger *zap.Logger) *Worker {
	return &Worker{
		strategy: s,
		coord:    coord,
		exchange: exch,
		logger:   logger.With(zap.String("strategy", s.Name())),
	}
}

// Name returns the wrapped strategy's name.
func (w *Worker) Name() string {
	return w.strategy.Name()
}

// Start launches the worker loop after the given stagger delay.
func (w *Worker) Start(ctx context.Context, delay time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.nextCooldown = w.strategy.Cooldown()

	go func() {
		defer close(w.done)

		if delay > 0 {
			select {
			case <-runCtx.Done():
				return
			case <-time.After(delay):
			}
		}

		w.logger.Info("worker started")
		// restart after a panic as long as the worker is still wanted
		for runCtx.Err() == nil {
			w.run(runCtx)
		}
	}()
}

// Stop requests the loop to exit and waits up to timeout for it. The resting
// order, if any, is cancelled regardless of whether the loop exited in time.
// Returns false when the join timed out.
func (w *Worker) Stop(timeout time.Duration) bool {
	if w.cancel == nil {
		return true
	}
	w.cancel()

	joined := true
	select {
	case <-w.done:
	case <-time.After(timeout):
		w.logger.Warn("worker did not stop in time", zap.Duration("timeout", timeout))
		joined = false
	}

	w.cancelRestingOrder()
	w.logger.Info("worker stopped")

	return joined
}

func (w *Worker) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panicked, restarting", zap.Any("panic", r))
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(w.lastOrderAt) < w.nextCooldown {
				continue
			}
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	remaining := w.coord.RemainingQuantity()
	if !remaining.IsPositive() {
		return
	}

	book := w.coord.Book()
	if book == nil {
		return
	}

	intent, err := w.strategy.Decide(book, remaining)
	if err != nil {
		w.logger.Error("decision failed", zap.Error(err))
		return
	}
	if intent == nil {
		return
	}

	rules := w.coord.Rules()
	quantity := rules.RoundQuantity(intent.Quantity)
	price := rules.RoundPrice(intent.Price)
	if !quantity.IsPositive() || !price.IsPositive() {
		return
	}

	if err := w.place(ctx, intent.Kind, quantity, price); err != nil {
		if exchange.IsInsufficientBalance(err) {
			w.logger.Error("order rejected for insufficient balance", zap.Error(err))
			w.coord.ReportInsufficientFunds(err)
			return
		}
		// transient transport errors and ordinary rejections: the cooldown
		// is the backoff, the next cycle tries again
		w.logger.Warn("order placement failed",
			zap.String("kind", intent.Kind.String()),
			zap.String("price", price.String()),
			zap.String("quantity", quantity.String()),
			zap.Error(err))
		return
	}

	w.logger.Info("order placed",
		zap.String("kind", intent.Kind.String()),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()))

	w.lastOrderAt = time.Now()
	w.nextCooldown = w.strategy.Cooldown()
}

func (w *Worker) place(ctx context.Context, kind domain.OrderKind, quantity, price decimal.Decimal) error {
	if kind == domain.OrderKindTaker {
		_, err := w.exchange.PlaceTakerOrder(ctx, quantity, price)
		return err
	}

	// at most one resting order per worker
	w.cancelRestingOrderCtx(ctx)
	orderID, err := w.exchange.PlaceMakerOrder(ctx, quantity, price)
	if err != nil {
		return err
	}

	w.restingMu.Lock()
	w.restingOrderID = orderID
	w.restingMu.Unlock()

	return nil
}

func (w *Worker) cancelRestingOrder() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.cancelRestingOrderCtx(ctx)
}

func (w *Worker) cancelRestingOrderCtx(ctx context.Context) {
	w.restingMu.Lock()
	orderID := w.restingOrderID
	w.restingOrderID = 0
	w.restingMu.Unlock()

	if orderID == 0 {
		return
	}
	if err := w.exchange.CancelOrder(ctx, orderID); err != nil && !exchange.IsUnknownOrder(err) {
		w.logger.Warn("failed to cancel resting order",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}
