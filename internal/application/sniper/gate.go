package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

const lockKeyPrefix = "polysniper:fire:"

// GateConfig parametriza el execution gate.
type GateConfig struct {
	Notional  decimal.Decimal // USDC a gastar por disparo
	DryRun    bool
	LockTTL   time.Duration
	OrderType domain.OrderType
}

// DefaultGateConfig: 10 USDC, dry-run, FOK.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Notional:  decimal.NewFromInt(10),
		DryRun:    true,
		LockTTL:   10 * time.Minute,
		OrderType: domain.OrderTypeFOK,
	}
}

// Gate garantiza que una sesión envía como mucho una orden, sin importar
// cuántas veces ni desde cuántas goroutines se llame a Fire.
type Gate struct {
	fired     atomic.Bool
	executor  ports.OrderExecutor
	lock      ports.FireLock // nil = sin lock distribuido
	cfg       GateConfig
	candidate domain.MarketCandidate
	sessionID string
	now       func() time.Time
}

// NewGate crea el gate de una sesión. executor puede ser nil en dry-run.
func NewGate(cfg GateConfig, c domain.MarketCandidate, sessionID string, executor ports.OrderExecutor, lock ports.FireLock) *Gate {
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeFOK
	}
	return &Gate{
		executor:  executor,
		lock:      lock,
		cfg:       cfg,
		candidate: c,
		sessionID: sessionID,
		now:       time.Now,
	}
}

// Fired devuelve true si ya se consumió el disparo.
func (g *Gate) Fired() bool {
	return g.fired.Load()
}

// SizeFor calcula las shares a comprar: notional / price redondeado hacia
// abajo a 2 decimales. Devuelve cero si price no es positivo.
func SizeFor(notional decimal.Decimal, price float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	if !p.IsPositive() {
		return decimal.Zero
	}
	return notional.Div(p).RoundDown(2)
}

// Fire intenta enviar la orden de la decisión. El bool es true solo para la
// llamada que ganó el disparo; el resto vuelve sin tocar el executor.
// Una vez iniciado, el envío ignora la cancelación de ctx.
func (g *Gate) Fire(ctx context.Context, d domain.TradeDecision) (domain.OrderResult, bool) {
	if !g.fired.CompareAndSwap(false, true) {
		return domain.OrderResult{}, false
	}

	size := SizeFor(g.cfg.Notional, d.Price)
	sizeF, _ := size.Float64()
	notional, _ := size.Mul(decimal.NewFromFloat(d.Price)).Float64()

	res := domain.OrderResult{
		SessionID: g.sessionID,
		Decision:  d,
		Size:      sizeF,
		Notional:  notional,
		DryRun:    g.cfg.DryRun,
		FiredAt:   g.now().UTC(),
	}

	if !size.IsPositive() {
		res.Err = fmt.Errorf("sniper.Fire: %w: size rounds to zero (notional %s @ %.4f)",
			domain.ErrOrderRejected, g.cfg.Notional, d.Price)
		return res, true
	}

	submitCtx := context.WithoutCancel(ctx)

	// Tras un envío el lock se conserva hasta su TTL: otro proceso no debe
	// volver a disparar sobre el mismo mercado.
	release := func() {}
	if g.lock != nil {
		rel, err := g.lock.Acquire(submitCtx, lockKeyPrefix+g.candidate.ConditionID, g.cfg.LockTTL)
		if err != nil {
			res.Err = fmt.Errorf("sniper.Fire: lock %s: %w", g.candidate.ConditionID, err)
			slog.Warn("sniper: fire lock not acquired, order not sent",
				"market", g.candidate.ConditionID,
				"err", err,
			)
			return res, true
		}
		release = rel
	}

	if g.cfg.DryRun {
		slog.Info("sniper: [dry-run] would buy",
			"session", g.sessionID,
			"side", d.Label,
			"token", d.Token,
			"price", fmt.Sprintf("%.4f", d.Price),
			"size", size.String(),
			"notional", fmt.Sprintf("%.2f", notional),
		)
		return res, true
	}

	if g.executor == nil {
		release()
		res.Err = fmt.Errorf("sniper.Fire: %w: no order executor configured", domain.ErrOrderTransport)
		return res, true
	}

	req := domain.PlaceOrderRequest{
		TokenID:     d.Token,
		ConditionID: g.candidate.ConditionID,
		Price:       d.Price,
		Size:        sizeF,
		Side:        "BUY",
		OrderType:   g.cfg.OrderType,
		NegRisk:     g.candidate.NegRisk,
	}

	start := time.Now()
	placed, err := g.executor.PlaceOrder(submitCtx, req)
	res.Placed = placed
	if err != nil {
		res.Err = fmt.Errorf("sniper.Fire: %w", err)
		slog.Error("sniper: order failed",
			"session", g.sessionID,
			"token", d.Token,
			"price", fmt.Sprintf("%.4f", d.Price),
			"size", size.String(),
			"err", err,
		)
		return res, true
	}

	slog.Info("sniper: order placed",
		"session", g.sessionID,
		"side", d.Label,
		"order_id", placed.CLOBOrderID,
		"status", placed.Status,
		"price", fmt.Sprintf("%.4f", d.Price),
		"size", size.String(),
		"latency", time.Since(start).Round(time.Millisecond),
	)
	return res, true
}
