package sniper_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/application/sniper"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

func sessionConfig(trigger time.Duration) sniper.SessionConfig {
	cfg := sniper.DefaultSessionConfig()
	cfg.TriggerWindow = trigger
	return cfg
}

func runSession(t *testing.T, ctx context.Context, s *sniper.Session) <-chan domain.SessionOutcome {
	t.Helper()
	done := make(chan domain.SessionOutcome, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitOutcome(t *testing.T, done <-chan domain.SessionOutcome, timeout time.Duration) domain.SessionOutcome {
	t.Helper()
	select {
	case o := <-done:
		return o
	case <-time.After(timeout):
		t.Fatal("session did not finish")
	}
	return domain.SessionOutcome{}
}

// Candidato que expira en 3s, ventana de monitoreo 5m, trigger 4s: la sesión
// arranca ARMED y un update que califica 2s antes del cierre produce una única orden.
func TestSession_EndToEndFiresOnce(t *testing.T) {
	c := testCandidate(time.Now().Add(3 * time.Second))
	exec := &fakeExecutor{placed: domain.PlacedOrder{CLOBOrderID: "0xabc", Status: "matched"}}
	stream := newFakeStream()
	gate := sniper.NewGate(liveGateConfig(), c, "s-e2e", exec, nil)
	s := sniper.NewSession("s-e2e", c, sessionConfig(4*time.Second), gate, nil, stream, nil)

	done := runSession(t, context.Background(), s)

	assert.Equal(t, []string{"up", "down"}, <-stream.subs)
	time.Sleep(time.Second)
	stream.updates <- ask("down", 0.04)
	stream.updates <- ask("up", 0.95)
	stream.updates <- ask("up", 0.96)

	out := waitOutcome(t, done, 3*time.Second)

	assert.Equal(t, domain.StateFired, out.State)
	require.Equal(t, int32(1), exec.calls.Load())
	req := exec.requests()[0]
	assert.Equal(t, "up", req.TokenID)
	assert.InDelta(t, 0.95, req.Price, 1e-12)

	require.NotNil(t, out.Decision)
	assert.Equal(t, domain.SideA, out.Decision.Side)
	require.NotNil(t, out.Result)
	assert.NoError(t, out.Result.Err)
	assert.Equal(t, "0xabc", out.Result.Placed.CLOBOrderID)
	assert.True(t, out.EndedAt.Before(c.EndTime))
}

func TestSession_FiresOnTickFromBookSeenWhileMonitoring(t *testing.T) {
	c := testCandidate(time.Now().Add(700 * time.Millisecond))
	exec := &fakeExecutor{}
	stream := newFakeStream()
	stream.updates <- ask("down", 0.97)
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)
	s := sniper.NewSession("s1", c, sessionConfig(200*time.Millisecond), gate, nil, stream, nil)

	out := waitOutcome(t, runSession(t, context.Background(), s), 3*time.Second)

	assert.Equal(t, domain.StateFired, out.State)
	require.Equal(t, int32(1), exec.calls.Load())
	assert.Equal(t, "down", exec.requests()[0].TokenID)
	assert.Equal(t, "DOWN", out.Decision.Label)
}

func TestSession_ColdStartSeedsBook(t *testing.T) {
	c := testCandidate(time.Now().Add(500 * time.Millisecond))
	exec := &fakeExecutor{}
	books := &fakeBooks{books: map[string]domain.OrderBook{
		"up":   {Asks: []domain.BookEntry{{Price: 0.93, Size: 100}}},
		"down": {Asks: []domain.BookEntry{{Price: 0.08, Size: 100}}},
	}}
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)
	s := sniper.NewSession("s1", c, sessionConfig(time.Second), gate, books, newFakeStream(), nil)

	out := waitOutcome(t, runSession(t, context.Background(), s), 3*time.Second)

	assert.Equal(t, domain.StateFired, out.State)
	require.Equal(t, int32(1), exec.calls.Load())
	assert.InDelta(t, 0.93, exec.requests()[0].Price, 1e-12)
}

func TestSession_ExpiresWhenNothingQualifies(t *testing.T) {
	c := testCandidate(time.Now().Add(400 * time.Millisecond))
	exec := &fakeExecutor{}
	stream := newFakeStream()
	stream.updates <- ask("up", 0.995) // por encima del techo de 0.99
	stream.updates <- ask("down", 0.45)
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)
	s := sniper.NewSession("s1", c, sessionConfig(300*time.Millisecond), gate, nil, stream, nil)

	out := waitOutcome(t, runSession(t, context.Background(), s), 3*time.Second)

	assert.Equal(t, domain.StateExpired, out.State)
	assert.Zero(t, exec.calls.Load())
	assert.Nil(t, out.Decision)
	assert.Equal(t, domain.PriceOf(0.995), out.LastBook.SideA.Ask)
}

func TestSession_StreamFailureEndsFailed(t *testing.T) {
	c := testCandidate(time.Now().Add(10 * time.Second))
	exec := &fakeExecutor{}
	stream := newFakeStream()
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)
	s := sniper.NewSession("s1", c, sessionConfig(time.Second), gate, nil, stream, nil)

	done := runSession(t, context.Background(), s)
	<-stream.subs
	stream.errs <- domain.ErrStreamDisconnect

	out := waitOutcome(t, done, 3*time.Second)

	assert.Equal(t, domain.StateFailed, out.State)
	assert.Contains(t, out.FailReason, "stream disconnected")
	assert.Zero(t, exec.calls.Load())
}

func TestSession_CancelEndsFailedInterrupted(t *testing.T) {
	c := testCandidate(time.Now().Add(10 * time.Second))
	stream := newFakeStream()
	gate := sniper.NewGate(liveGateConfig(), c, "s1", &fakeExecutor{}, nil)
	s := sniper.NewSession("s1", c, sessionConfig(time.Second), gate, nil, stream, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runSession(t, ctx, s)
	<-stream.subs
	cancel()

	out := waitOutcome(t, done, 3*time.Second)

	assert.Equal(t, domain.StateFailed, out.State)
	assert.Equal(t, "interrupted", out.FailReason)
}

func TestSession_OrderRejectionStillEndsFired(t *testing.T) {
	c := testCandidate(time.Now().Add(2 * time.Second))
	exec := &fakeExecutor{err: domain.ErrOrderRejected}
	stream := newFakeStream()
	stream.updates <- ask("up", 0.9)
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)
	s := sniper.NewSession("s1", c, sessionConfig(3*time.Second), gate, nil, stream, nil)

	out := waitOutcome(t, runSession(t, context.Background(), s), 3*time.Second)

	assert.Equal(t, domain.StateFired, out.State)
	require.NotNil(t, out.Result)
	assert.ErrorIs(t, out.Result.Err, domain.ErrOrderRejected)
	assert.Contains(t, out.FailReason, "rejected")
	assert.Equal(t, int32(1), exec.calls.Load())
}

// syncBuffer recoge la salida de slog desde la goroutine de la sesión.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestSession_ReportsImpliedWinnerWithoutLiquidity(t *testing.T) {
	logs := captureLogs(t)
	c := testCandidate(time.Now().Add(400 * time.Millisecond))
	exec := &fakeExecutor{}
	stream := newFakeStream()
	stream.updates <- ask("down", 0.04) // UP sin asks: ganador implícito a 0.96
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)
	s := sniper.NewSession("s1", c, sessionConfig(300*time.Millisecond), gate, nil, stream, nil)

	out := waitOutcome(t, runSession(t, context.Background(), s), 3*time.Second)

	assert.Equal(t, domain.StateExpired, out.State)
	assert.Zero(t, exec.calls.Load())
	assert.Contains(t, logs.String(), "implied_side=UP")
	assert.Contains(t, logs.String(), "implied_price=0.9600")
}
