// Package accumulator contains the orchestrator that owns the acquisition
// target, the session ledger, the strategy worker table and the stop/shutdown
// protocol. Exchange events flow in here; workers read shared state through
// the coordinator surface and never touch the ledger directly.
package accumulator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/config"
	"github.com/vadiminshakov/stacker/internal/domain"
	"github.com/vadiminshakov/stacker/internal/events"
	"github.com/vadiminshakov/stacker/internal/exchange"
	"github.com/vadiminshakov/stacker/internal/services/ledger"
	"github.com/vadiminshakov/stacker/internal/services/strategy"
	"github.com/vadiminshakov/stacker/pkg/retrier"
	"go.uber.org/zap"
)

// State of the orchestrator lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stop reasons reported in the final summary.
const (
	reasonTargetReached     = "target reached"
	reasonInsufficientFunds = "insufficient funds"
	reasonStopSignal        = "stop signal"
)

// Exchange is the orchestrator-facing surface of the exchange gateway.
type Exchange interface {
	Pair() domain.Pair
	Balance(ctx context.Context, asset string) (free, locked decimal.Decimal, err error)
	OrderBook(ctx context.Context, depth int) (*domain.OrderBook, error)
	OpenOrders(ctx context.Context) ([]exchange.OpenOrder, error)
	CancelOrder(ctx context.Context, orderID int64) error
	PlaceMakerOrder(ctx context.Context, quantity, price decimal.Decimal) (int64, error)
	PlaceTakerOrder(ctx context.Context, quantity, price decimal.Decimal) (int64, error)
	SubscribeBook(depth int, handler func(*domain.OrderBook)) (exchange.StopFunc, error)
	SubscribeTrades(handler func(exchange.Trade)) (exchange.StopFunc, error)
	SubscribeAccount(ctx context.Context, handler func(exchange.AccountEvent)) (exchange.StopFunc, error)
}

type rulesResolver interface {
	Rules(ctx context.Context) (*domain.InstrumentRules, error)
}

// Accumulator drives one accumulation run.
type Accumulator struct {
	cfg      config.Config
	exchange Exchange
	resolver rulesResolver
	ledger   *ledger.Ledger
	logger   *zap.Logger
	progress *events.ProgressBroadcaster
	retrier  *retrier.Retrier

	// set once during startup, read-only afterwards
	instrumentRules *domain.InstrumentRules

	state atomic.Int32
	book  atomic.Pointer[domain.OrderBook]

	mu      sync.Mutex
	workers map[string]*strategy.Worker

	// single, when set, pins the run to one strategy and disables the
	// toggle watcher (standalone mode still owns the ledger).
	single string

	stopTrigger  sync.Once
	stopReason   string
	shutdownCh   chan struct{}
	progressKick chan struct{}
	targetOnce   sync.Once
	stopOnce     sync.Once
}

// Option configures the Accumulator.
type Option func(*Accumulator)

// WithProgressBroadcaster publishes progress snapshots for the web UI.
func WithProgressBroadcaster(b *events.ProgressBroadcaster) Option {
	return func(a *Accumulator) {
		a.progress = b
	}
}

// WithSingleStrategy runs exactly one strategy and skips the toggle watcher.
func WithSingleStrategy(name string) Option {
	return func(a *Accumulator) {
		a.single = name
	}
}

// New creates an accumulator. The ledger and resolver are injected so tests
// and the standalone runner can share the construction path.
func New(cfg config.Config, exch Exchange, resolver rulesResolver, led *ledger.Ledger, logger *zap.Logger, opts ...Option) *Accumulator {
	a := &Accumulator{
		cfg:        cfg,
		exchange:   exch,
		resolver:   resolver,
		ledger:     led,
		logger:     logger.With(zap.String("pair", cfg.Pair.String())),
		retrier:      retrier.New(),
		workers:      make(map[string]*strategy.Worker),
		shutdownCh:   make(chan struct{}),
		progressKick: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current lifecycle state.
func (a *Accumulator) State() State {
	return State(a.state.Load())
}

// RemainingQuantity is how much of the target the session still has to buy.
// Derived from the ledger, never from the exchange's lifetime balance.
func (a *Accumulator) RemainingQuantity() decimal.Decimal {
	remaining := a.cfg.TargetQuantity.Sub(a.ledger.Acquired())
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Book returns the latest order book snapshot, nil before the first update.
func (a *Accumulator) Book() *domain.OrderBook {
	return a.book.Load()
}

// Rules returns the cached instrument rules.
func (a *Accumulator) Rules() *domain.InstrumentRules {
	return a.instrumentRules
}

// ReportInsufficientFunds is the worker-side fatal path: a rejection for lack
// of funds cannot recover on its own, so the whole run winds down.
func (a *Accumulator) ReportInsufficientFunds(err error) {
	a.logger.Error("insufficient funds reported", zap.Error(err))
	a.requestStop(reasonInsufficientFunds)
}

// Run executes the accumulation until the target is reached, funds run out or
// ctx is cancelled. It always tears down cleanly before returning.
func (a *Accumulator) Run(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.Errorf("accumulator already started, state %s", a.State())
	}

	rules, err := retrier.DoWithData(a.retrier, ctx, a.resolver.Rules)
	if err != nil {
		a.state.Store(int32(StateStopped))
		return errors.Wrap(err, "failed to resolve instrument rules")
	}
	a.instrumentRules = rules

	startFree, startLocked, err := a.exchange.Balance(ctx, a.cfg.Pair.From)
	if err != nil {
		a.logger.Warn("failed to read starting balance", zap.Error(err))
	} else {
		a.logger.Info("starting accumulation",
			zap.String("target", a.cfg.TargetQuantity.String()),
			zap.String("price_ceiling", a.cfg.PriceCeiling.String()),
			zap.String("already_acquired", a.ledger.Acquired().String()),
			zap.String("start_balance", startFree.Add(startLocked).String()))
	}

	// seed the snapshot so workers have a book before the first ws event
	if book, err := a.exchange.OrderBook(ctx, a.cfg.OrderBookDepth); err != nil {
		a.logger.Warn("failed to fetch initial order book", zap.Error(err))
	} else {
		a.book.Store(book)
	}

	stopBook, err := a.exchange.SubscribeBook(a.cfg.OrderBookDepth, a.book.Store)
	if err != nil {
		a.state.Store(int32(StateStopped))
		return errors.Wrap(err, "failed to subscribe to book updates")
	}

	stopTrades, err := a.exchange.SubscribeTrades(func(t exchange.Trade) {
		a.logger.Debug("trade",
			zap.String("price", t.Price.String()),
			zap.String("quantity", t.Quantity.String()))
	})
	if err != nil {
		stopBook()
		a.state.Store(int32(StateStopped))
		return errors.Wrap(err, "failed to subscribe to trades")
	}

	stopAccount, err := a.exchange.SubscribeAccount(ctx, a.handleAccountEvent)
	if err != nil {
		stopTrades()
		stopBook()
		a.state.Store(int32(StateStopped))
		return errors.Wrap(err, "failed to subscribe to account events")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	a.startInitialWorkers(workerCtx)

	var wg sync.WaitGroup
	loopCtx, cancelLoops := context.WithCancel(context.Background())

	if a.single == "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.watchToggles(loopCtx, workerCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reportProgress(loopCtx)
	}()

	select {
	case <-ctx.Done():
		a.requestStop(reasonStopSignal)
	case <-a.shutdownCh:
	}

	a.shutdown(cancelWorkers, func() {
		cancelLoops()
		wg.Wait()
		stopAccount()
		stopTrades()
		stopBook()
	})

	if a.stopReason == reasonInsufficientFunds {
		return errors.New(reasonInsufficientFunds)
	}
	return nil
}

// handleAccountEvent runs on the account subscription's dispatch path; it
// must stay short and never wait on REST calls or order placement.
func (a *Accumulator) handleAccountEvent(e exchange.AccountEvent) {
	if e.Symbol != a.cfg.Pair.Symbol() {
		return
	}

	if e.IsInsufficientBalanceRejection() {
		a.logger.Error("order rejected: insufficient balance",
			zap.Int64("order_id", e.OrderID),
			zap.String("reject_reason", e.RejectReason))
		a.requestStop(reasonInsufficientFunds)
		return
	}

	if !e.IsBuyFill() {
		return
	}

	fill := domain.NewFill(e.Time, e.LastQty, e.LastPrice)
	if err := a.ledger.Append(fill); err != nil {
		a.logger.Error("failed to record fill", zap.Error(err))
	}

	summary := a.ledger.Summary()
	a.logger.Info("fill recorded",
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("acquired", summary.Acquired.String()),
		zap.String("avg_price", summary.AveragePrice.String()))

	if summary.Acquired.GreaterThanOrEqual(a.cfg.TargetQuantity) {
		a.targetOnce.Do(func() {
			a.logger.Info("target reached",
				zap.String("target", a.cfg.TargetQuantity.String()),
				zap.String("acquired", summary.Acquired.String()))
			a.requestStop(reasonTargetReached)
		})
	}

	// progress enrichment needs REST calls; the reporter loop does those so
	// the stream dispatch never waits on the exchange
	select {
	case a.progressKick <- struct{}{}:
	default:
	}
}

func (a *Accumulator) requestStop(reason string) {
	a.stopTrigger.Do(func() {
		a.stopReason = reason
		close(a.shutdownCh)
	})
}

// shutdown is idempotent: a second call while already stopping is a no-op.
func (a *Accumulator) shutdown(cancelWorkers context.CancelFunc, closeStreams func()) {
	a.stopOnce.Do(func() {
		a.state.Store(int32(StateShuttingDown))
		a.logger.Info("shutting down", zap.String("reason", a.stopReason))

		cancelWorkers()
		a.stopAllWorkers()
		a.cancelOpenOrders()
		closeStreams()

		summary, consistent := a.ledger.Recompute()
		if !consistent {
			a.logger.Warn("ledger required recomputation at shutdown")
		}

		a.logger.Info("session summary",
			zap.String("reason", a.stopReason),
			zap.Int("fills", summary.FillCount),
			zap.String("acquired", summary.Acquired.String()),
			zap.String("total_cost", summary.TotalCost.String()),
			zap.String("avg_price", summary.AveragePrice.String()),
			zap.String("remaining", a.RemainingQuantity().String()))

		a.state.Store(int32(StateStopped))
	})
}

func (a *Accumulator) stopAllWorkers() {
	a.mu.Lock()
	workers := make([]*strategy.Worker, 0, len(a.workers))
	for _, w := range a.workers {
		workers = append(workers, w)
	}
	a.workers = make(map[string]*strategy.Worker)
	a.mu.Unlock()

	for _, w := range workers {
		w.Stop(a.cfg.StopTimeout)
	}
}

// cancelOpenOrders is best-effort: per-order failures are logged, not escalated.
func (a *Accumulator) cancelOpenOrders() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orders, err := retrier.DoWithData(a.retrier, ctx, func(ctx context.Context) ([]exchange.OpenOrder, error) {
		return a.exchange.OpenOrders(ctx)
	})
	if err != nil {
		a.logger.Error("failed to list open orders during shutdown", zap.Error(err))
		return
	}

	for _, order := range orders {
		err := a.retrier.Do(ctx, func(ctx context.Context) error {
			err := a.exchange.CancelOrder(ctx, order.ID)
			if exchange.IsUnknownOrder(err) {
				return nil
			}
			return err
		})
		if err != nil {
			a.logger.Warn("failed to cancel open order",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
			continue
		}
		a.logger.Info("cancelled open order", zap.Int64("order_id", order.ID))
	}
}

func (a *Accumulator) startInitialWorkers(ctx context.Context) {
	enabled := a.initialToggles()

	// stagger first orders so workers don't stampede the book together
	i := 0
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range []string{config.StrategyShadowBid, config.StrategyCooldownTaker, config.StrategyBigFish} {
		if !enabled[name] {
			continue
		}
		w := a.newWorker(name)
		if w == nil {
			continue
		}
		w.Start(ctx, time.Duration(i)*a.cfg.StartStagger)
		a.workers[name] = w
		i++
	}
}

func (a *Accumulator) initialToggles() map[string]bool {
	if a.single != "" {
		return map[string]bool{a.single: true}
	}

	toggles, err := config.LoadToggles(a.cfg.TogglesPath)
	if err != nil {
		a.logger.Warn("failed to load strategy toggles, enabling all strategies",
			zap.String("path", a.cfg.TogglesPath),
			zap.Error(err))
		return map[string]bool{
			config.StrategyShadowBid:     true,
			config.StrategyCooldownTaker: true,
			config.StrategyBigFish:       true,
		}
	}
	return toggles
}

func (a *Accumulator) newWorker(name string) *strategy.Worker {
	var s strategy.Strategy
	switch name {
	case config.StrategyShadowBid:
		s = strategy.NewShadowBid(a.cfg.ShadowBid, a.cfg.TargetQuantity)
	case config.StrategyCooldownTaker:
		s = strategy.NewCooldownTaker(a.cfg.CooldownTaker, a.cfg.TargetQuantity, a.cfg.PriceCeiling)
	case config.StrategyBigFish:
		s = strategy.NewBigFish(a.cfg.BigFish, a.cfg.PriceCeiling)
	default:
		a.logger.Warn("unknown strategy requested", zap.String("strategy", name))
		return nil
	}
	return strategy.NewWorker(s, a, a.exchange, a.logger)
}

func (a *Accumulator) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.progressKick:
			a.publishProgress(a.ledger.Summary())
		case <-ticker.C:
			a.publishProgress(a.ledger.Summary())
		}
	}
}

func (a *Accumulator) publishProgress(summary ledger.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// free+locked, so resting maker orders don't hide coins from the operator
	balance := decimal.Zero
	if free, locked, err := a.exchange.Balance(ctx, a.cfg.Pair.From); err == nil {
		balance = free.Add(locked)
	}

	openOrders := 0
	if orders, err := a.exchange.OpenOrders(ctx); err == nil {
		openOrders = len(orders)
	}

	remaining := a.RemainingQuantity()
	a.logger.Info("progress",
		zap.String("acquired", summary.Acquired.String()),
		zap.String("remaining", remaining.String()),
		zap.String("avg_price", summary.AveragePrice.String()),
		zap.String("balance", balance.String()),
		zap.Int("open_orders", openOrders))

	if a.progress == nil {
		return
	}
	a.progress.Publish(events.ProgressSnapshot{
		Timestamp:    time.Now(),
		Pair:         a.cfg.Pair.String(),
		Acquired:     summary.Acquired.String(),
		Remaining:    remaining.String(),
		Target:       a.cfg.TargetQuantity.String(),
		AveragePrice: summary.AveragePrice.String(),
		TotalCost:    summary.TotalCost.String(),
		Balance:      balance.String(),
		OpenOrders:   openOrders,
	})
}
