package sniper_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/application/sniper"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

func liveGateConfig() sniper.GateConfig {
	return sniper.GateConfig{
		Notional:  decimal.NewFromInt(10),
		LockTTL:   time.Minute,
		OrderType: domain.OrderTypeFOK,
	}
}

func upDecision(price float64) domain.TradeDecision {
	return domain.TradeDecision{Token: "up", Side: domain.SideA, Label: "UP", Price: price}
}

func TestGate_FiresAtMostOnceUnderContention(t *testing.T) {
	exec := &fakeExecutor{placed: domain.PlacedOrder{CLOBOrderID: "0x1", Status: "matched"}}
	gate := sniper.NewGate(liveGateConfig(), testCandidate(time.Now().Add(time.Second)), "s1", exec, nil)

	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, won := gate.Fire(context.Background(), upDecision(0.95)); won {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.True(t, gate.Fired())
}

func TestGate_BuildsFOKBuyFromDecision(t *testing.T) {
	exec := &fakeExecutor{placed: domain.PlacedOrder{CLOBOrderID: "0x1", Status: "matched"}}
	c := testCandidate(time.Now().Add(time.Second))
	c.NegRisk = true
	gate := sniper.NewGate(liveGateConfig(), c, "s1", exec, nil)

	res, won := gate.Fire(context.Background(), upDecision(0.95))
	require.True(t, won)
	require.NoError(t, res.Err)

	reqs := exec.requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "up", req.TokenID)
	assert.Equal(t, "0xc", req.ConditionID)
	assert.Equal(t, "BUY", req.Side)
	assert.Equal(t, domain.OrderTypeFOK, req.OrderType)
	assert.True(t, req.NegRisk)
	assert.InDelta(t, 0.95, req.Price, 1e-12)
	assert.InDelta(t, 10.52, req.Size, 1e-9, "10 / 0.95 = 10.526 → 10.52")

	assert.Equal(t, "s1", res.SessionID)
	assert.InDelta(t, 9.994, res.Notional, 1e-9)
	assert.Equal(t, "0x1", res.Placed.CLOBOrderID)
	assert.False(t, res.DryRun)
}

func TestGate_DryRunNeverCallsExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := liveGateConfig()
	cfg.DryRun = true
	gate := sniper.NewGate(cfg, testCandidate(time.Now().Add(time.Second)), "s1", exec, nil)

	res, won := gate.Fire(context.Background(), upDecision(0.97))

	assert.True(t, won)
	assert.True(t, res.DryRun)
	assert.NoError(t, res.Err)
	assert.InDelta(t, 10.30, res.Size, 1e-9)
	assert.Zero(t, exec.calls.Load())
}

func TestGate_OrderErrorIsSurfacedWithoutRetry(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("polymarket: %w: no fill", domain.ErrOrderRejected)}
	gate := sniper.NewGate(liveGateConfig(), testCandidate(time.Now().Add(time.Second)), "s1", exec, nil)

	res, won := gate.Fire(context.Background(), upDecision(0.95))
	require.True(t, won)
	assert.ErrorIs(t, res.Err, domain.ErrOrderRejected)

	_, again := gate.Fire(context.Background(), upDecision(0.95))
	assert.False(t, again)
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestGate_SubmissionIgnoresCancellation(t *testing.T) {
	exec := &fakeExecutor{}
	gate := sniper.NewGate(liveGateConfig(), testCandidate(time.Now().Add(time.Second)), "s1", exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, won := gate.Fire(ctx, upDecision(0.95))
	require.True(t, won)
	require.Equal(t, int32(1), exec.calls.Load())
	assert.NoError(t, exec.ctxErr[0])
}

func TestGate_LockHeldSkipsSubmission(t *testing.T) {
	exec := &fakeExecutor{}
	lock := &fakeLock{err: domain.ErrLockHeld}
	gate := sniper.NewGate(liveGateConfig(), testCandidate(time.Now().Add(time.Second)), "s1", exec, lock)

	res, won := gate.Fire(context.Background(), upDecision(0.95))

	assert.True(t, won)
	assert.ErrorIs(t, res.Err, domain.ErrLockHeld)
	assert.Zero(t, exec.calls.Load())
	assert.Equal(t, []string{"polysniper:fire:0xc"}, lock.keys)
}

func TestGate_LockKeptAfterSubmission(t *testing.T) {
	exec := &fakeExecutor{}
	lock := &fakeLock{}
	gate := sniper.NewGate(liveGateConfig(), testCandidate(time.Now().Add(time.Second)), "s1", exec, lock)

	_, won := gate.Fire(context.Background(), upDecision(0.95))

	assert.True(t, won)
	assert.Equal(t, int32(1), exec.calls.Load())
	assert.Zero(t, lock.released.Load(), "el lock expira por TTL, no se libera")
}

func TestGate_LockReleasedWhenNothingSent(t *testing.T) {
	lock := &fakeLock{}
	gate := sniper.NewGate(liveGateConfig(), testCandidate(time.Now().Add(time.Second)), "s1", nil, lock)

	res, won := gate.Fire(context.Background(), upDecision(0.95))

	assert.True(t, won)
	assert.ErrorIs(t, res.Err, domain.ErrOrderTransport)
	assert.Equal(t, int32(1), lock.released.Load())
}

func TestGate_ZeroSizeIsRejected(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := liveGateConfig()
	cfg.Notional = decimal.RequireFromString("0.001")
	gate := sniper.NewGate(cfg, testCandidate(time.Now().Add(time.Second)), "s1", exec, nil)

	res, won := gate.Fire(context.Background(), upDecision(0.95))

	assert.True(t, won)
	assert.ErrorIs(t, res.Err, domain.ErrOrderRejected)
	assert.Zero(t, exec.calls.Load())
}

func TestSizeFor(t *testing.T) {
	tests := []struct {
		notional string
		price    float64
		want     string
	}{
		{"10", 0.99, "10.10"},
		{"10", 0.95, "10.52"},
		{"10", 0.30, "33.33"},
		{"1", 0, "0.00"},
	}
	for _, tt := range tests {
		got := sniper.SizeFor(decimal.RequireFromString(tt.notional), tt.price)
		assert.Equal(t, tt.want, got.StringFixed(2), "%s @ %.2f", tt.notional, tt.price)
	}
}
