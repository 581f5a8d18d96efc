package sniper_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

func testCandidate(end time.Time) domain.MarketCandidate {
	return domain.MarketCandidate{
		ConditionID:   "0xc",
		Question:      "Bitcoin Up or Down - October 19, 3:00PM-3:15PM ET",
		SideAToken:    "up",
		SideBToken:    "down",
		SideALabel:    "UP",
		SideBLabel:    "DOWN",
		EndTime:       end,
		Shape:         domain.ShapeFifteenMinute,
		MonitorWindow: 5 * time.Minute,
	}
}

type fakeExecutor struct {
	calls  atomic.Int32
	mu     sync.Mutex
	reqs   []domain.PlaceOrderRequest
	ctxErr []error
	placed domain.PlacedOrder
	err    error
}

func (f *fakeExecutor) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.ctxErr = append(f.ctxErr, ctx.Err())
	f.mu.Unlock()
	return f.placed, f.err
}

func (f *fakeExecutor) requests() []domain.PlaceOrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PlaceOrderRequest(nil), f.reqs...)
}

type fakeLock struct {
	err      error
	keys     []string
	released atomic.Int32
}

func (f *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return func() { f.released.Add(1) }, nil
}

// fakeStream entrega lo que el test escriba en updates/errs.
type fakeStream struct {
	updates chan domain.BookUpdate
	errs    chan error
	subs    chan []string
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		updates: make(chan domain.BookUpdate, 16),
		errs:    make(chan error, 1),
		subs:    make(chan []string, 4),
	}
}

func (f *fakeStream) Stream(_ context.Context, ids []string) (<-chan domain.BookUpdate, <-chan error) {
	select {
	case f.subs <- ids:
	default:
	}
	return f.updates, f.errs
}

type fakeBooks struct {
	books map[string]domain.OrderBook
}

func (f *fakeBooks) FetchOrderBooks(context.Context, []string) (map[string]domain.OrderBook, error) {
	return f.books, nil
}

func ask(token string, price float64) domain.BookUpdate {
	return domain.BookUpdate{TokenID: token, HasAsk: true, Ask: domain.PriceOf(price), ReceivedAt: time.Now()}
}
