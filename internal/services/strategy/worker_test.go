package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/stacker/internal/domain"
	"go.uber.org/zap"
)

type fakeCoordinator struct {
	remaining decimal.Decimal
	book      *domain.OrderBook
	rules     *domain.InstrumentRules
	reported  []error
}

func (f *fakeCoordinator) RemainingQuantity() decimal.Decimal { return f.remaining }
func (f *fakeCoordinator) Book() *domain.OrderBook            { return f.book }
func (f *fakeCoordinator) Rules() *domain.InstrumentRules     { return f.rules }
func (f *fakeCoordinator) ReportInsufficientFunds(err error)  { f.reported = append(f.reported, err) }

type placedOrder struct {
	kind     domain.OrderKind
	quantity decimal.Decimal
	price    decimal.Decimal
}

type fakePlacer struct {
	mu        sync.Mutex
	placed    []placedOrder
	cancelled []int64
	nextID    int64
	placeErr  error
	cancelErr error
}

func (f *fakePlacer) PlaceMakerOrder(_ context.Context, quantity, price decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return 0, f.placeErr
	}
	f.nextID++
	f.placed = append(f.placed, placedOrder{domain.OrderKindMaker, quantity, price})
	return f.nextID, nil
}

func (f *fakePlacer) PlaceTakerOrder(_ context.Context, quantity, price decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return 0, f.placeErr
	}
	f.nextID++
	f.placed = append(f.placed, placedOrder{domain.OrderKindTaker, quantity, price})
	return f.nextID, nil
}

func (f *fakePlacer) CancelOrder(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type stubStrategy struct {
	name   string
	intent *domain.OrderIntent
	err    error
}

func (s *stubStrategy) Name() string            { return s.name }
func (s *stubStrategy) Cooldown() time.Duration { return time.Millisecond }
func (s *stubStrategy) Decide(_ *domain.OrderBook, _ decimal.Decimal) (*domain.OrderIntent, error) {
	return s.intent, s.err
}

func testRules() *domain.InstrumentRules {
	return &domain.InstrumentRules{
		MinQty:         d("0.01"),
		MaxQty:         d("9000"),
		StepSize:       d("0.01"),
		QtyPrecision:   2,
		MinPrice:       d("0.001"),
		MaxPrice:       d("100000"),
		TickSize:       d("0.001"),
		PricePrecision: 3,
	}
}

func testCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		remaining: d("1"),
		book:      bookOf([]domain.Level{level("99.5", "2")}, []domain.Level{level("100", "1")}),
		rules:     testRules(),
	}
}

func TestWorkerCyclePlacesRoundedOrder(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindTaker, Price: d("100.00049"), Quantity: d("0.1234")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())

	require.Len(t, placer.placed, 1)
	require.Equal(t, domain.OrderKindTaker, placer.placed[0].kind)
	require.True(t, placer.placed[0].quantity.Equal(d("0.12")), "quantity = %s", placer.placed[0].quantity)
	require.True(t, placer.placed[0].price.Equal(d("100")), "price = %s", placer.placed[0].price)
}

func TestWorkerCycleSkipsWhenTargetReached(t *testing.T) {
	coord := testCoordinator()
	coord.remaining = decimal.Zero
	placer := &fakePlacer{}
	stub := &stubStrategy{name: "stub", intent: &domain.OrderIntent{Kind: domain.OrderKindTaker, Price: d("100"), Quantity: d("0.1")}}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())

	require.Empty(t, placer.placed)
}

func TestWorkerCycleSkipsWithoutBook(t *testing.T) {
	coord := testCoordinator()
	coord.book = nil
	placer := &fakePlacer{}
	stub := &stubStrategy{name: "stub", intent: &domain.OrderIntent{Kind: domain.OrderKindTaker, Price: d("100"), Quantity: d("0.1")}}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())

	require.Empty(t, placer.placed)
}

func TestWorkerMakerCancelsPreviousRestingOrder(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindMaker, Price: d("99.5"), Quantity: d("0.1")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())
	require.Len(t, placer.placed, 1)
	require.Empty(t, placer.cancelled, "no earlier order to cancel")
	require.Equal(t, int64(1), w.restingOrderID)

	w.nextCooldown = 0
	w.cycle(context.Background())
	require.Len(t, placer.placed, 2)
	require.Equal(t, []int64{1}, placer.cancelled, "first resting order cancelled before the replacement")
	require.Equal(t, int64(2), w.restingOrderID)
}

func TestWorkerInsufficientBalanceReported(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{
		placeErr: &common.APIError{Code: -2010, Message: "Account has insufficient balance for requested action."},
	}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindTaker, Price: d("100"), Quantity: d("0.1")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())

	require.Len(t, coord.reported, 1)
}

func TestWorkerTransientErrorNotReported(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{placeErr: errors.New("connection reset")}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindTaker, Price: d("100"), Quantity: d("0.1")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())

	require.Empty(t, coord.reported)
	require.Empty(t, placer.placed)
}

func TestWorkerStopCancelsRestingOrder(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindMaker, Price: d("99.5"), Quantity: d("0.1")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())
	require.Equal(t, int64(1), w.restingOrderID)

	w.Start(context.Background(), 0)
	require.True(t, w.Stop(time.Second))
	require.Contains(t, placer.cancelled, int64(1))
	require.Equal(t, int64(0), w.restingOrderID)
}

func TestWorkerStopBeforeStart(t *testing.T) {
	w := NewWorker(&stubStrategy{name: "stub"}, testCoordinator(), &fakePlacer{}, zap.NewNop())
	require.True(t, w.Stop(time.Second))
}

func TestWorkerRestingOrderSafeUnderConcurrentCancel(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindMaker, Price: d("99.5"), Quantity: d("0.1")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	// mirror the timed-out Stop path: the loop keeps placing while another
	// goroutine cancels the resting order
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			w.cycle(context.Background())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			w.cancelRestingOrder()
		}
	}()
	wg.Wait()

	w.cancelRestingOrder()
	require.Equal(t, int64(0), w.restingOrderID)
}

func TestWorkerCancelToleratesUnknownOrder(t *testing.T) {
	coord := testCoordinator()
	placer := &fakePlacer{}
	stub := &stubStrategy{
		name:   "stub",
		intent: &domain.OrderIntent{Kind: domain.OrderKindMaker, Price: d("99.5"), Quantity: d("0.1")},
	}
	w := NewWorker(stub, coord, placer, zap.NewNop())

	w.cycle(context.Background())
	placer.cancelErr = &common.APIError{Code: -2011, Message: "Unknown order sent."}

	w.cancelRestingOrder()
	require.Equal(t, int64(0), w.restingOrderID, "resting order forgotten even when the exchange no longer knows it")
}
