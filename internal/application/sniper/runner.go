// Package sniper contiene el ciclo de vida de una sesión de sniping: el
// scheduler de estados, el execution gate y el runner que encadena sesiones.
package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

const (
	prefetchTimeout = 30 * time.Second
	recordTimeout   = 10 * time.Second
)

// Targeter resuelve el próximo mercado a vigilar.
type Targeter interface {
	FindTarget(ctx context.Context) (domain.MarketCandidate, bool, error)
	Candidates(ctx context.Context) ([]domain.MarketCandidate, error)
}

// Deps agrupa los adapters del runner. Journal, Reporter, Alerter, Lock,
// Books y Executor son opcionales.
type Deps struct {
	Targets  Targeter
	Books    ports.BookProvider
	Stream   ports.BookStream
	Executor ports.OrderExecutor
	Lock     ports.FireLock
	Journal  ports.Journal
	Reporter ports.Reporter
	Alerter  ports.Alerter
	Clock    Clock
}

// RunnerConfig parametriza el loop principal.
type RunnerConfig struct {
	RunOnce          bool
	NoTargetBackoff  time.Duration
	PostSessionPause time.Duration
	ErrorPause       time.Duration
	MaxSleep         time.Duration
	Session          SessionConfig
	Gate             GateConfig
}

// DefaultRunnerConfig devuelve los tiempos por defecto del loop.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		NoTargetBackoff:  60 * time.Second,
		PostSessionPause: 5 * time.Second,
		ErrorPause:       10 * time.Second,
		MaxSleep:         60 * time.Second,
		Session:          DefaultSessionConfig(),
		Gate:             DefaultGateConfig(),
	}
}

// Runner encadena resolución → espera → sesión → pausa hasta que ctx se cancela.
type Runner struct {
	cfg   RunnerConfig
	deps  Deps
	clock Clock

	next *domain.MarketCandidate // candidato precargado durante la sesión anterior
}

// NewRunner crea el runner.
func NewRunner(cfg RunnerConfig, deps Deps) *Runner {
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = 60 * time.Second
	}
	return &Runner{cfg: cfg, deps: deps, clock: clock}
}

// Run bloquea hasta que ctx se cancela o, con RunOnce, hasta terminar una
// sesión. Los errores de resolución nunca lo detienen salvo en RunOnce.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("sniper starting",
		"dry_run", r.cfg.Gate.DryRun,
		"once", r.cfg.RunOnce,
		"notional", r.cfg.Gate.Notional.String(),
		"trigger", r.cfg.Session.TriggerWindow,
		"ceiling", r.cfg.Session.Inference.BuyPriceCeiling,
	)

	for {
		if ctx.Err() != nil {
			slog.Info("sniper stopped")
			return nil
		}

		target, ok, err := r.resolve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("sniper stopped")
				return nil
			}
			slog.Error("sniper: resolve failed", "err", err, "retry_in", r.cfg.ErrorPause)
			if r.cfg.RunOnce {
				return fmt.Errorf("sniper.Run: %w", err)
			}
			r.sleep(ctx, r.cfg.ErrorPause)
			continue
		}
		if !ok {
			slog.Info("sniper: no target found", "retry_in", r.cfg.NoTargetBackoff)
			if r.cfg.RunOnce {
				return nil
			}
			r.sleep(ctx, r.cfg.NoTargetBackoff)
			continue
		}

		// Fuera de la ventana: dormir y volver a resolver, puede aparecer uno más cercano.
		if wait := target.TimeToExpiry(r.clock.Now()) - target.MonitorWindow; wait > 0 {
			d := min(wait, r.cfg.MaxSleep)
			slog.Info("sniper: waiting for monitoring window",
				"market", domain.TruncateQuestion(target.Question, target.ConditionID, 60),
				"window_in", wait.Round(time.Second),
				"sleep", d.Round(time.Second),
			)
			r.sleep(ctx, d)
			continue
		}

		outcome := r.runSession(ctx, target)
		r.record(ctx, outcome)

		if r.cfg.RunOnce {
			return nil
		}
		r.sleep(ctx, r.cfg.PostSessionPause)
	}
}

// resolve usa el candidato precargado si sigue vigente; si no, resuelve de nuevo.
func (r *Runner) resolve(ctx context.Context) (domain.MarketCandidate, bool, error) {
	if r.next != nil {
		c := *r.next
		r.next = nil
		if err := c.Validate(r.clock.Now()); err == nil {
			slog.Debug("sniper: using prefetched target", "market", c.ConditionID)
			return c, true, nil
		}
	}
	return r.deps.Targets.FindTarget(ctx)
}

// runSession corre la sesión y, en paralelo, busca el siguiente mercado.
func (r *Runner) runSession(ctx context.Context, target domain.MarketCandidate) domain.SessionOutcome {
	id := uuid.NewString()
	gate := NewGate(r.cfg.Gate, target, id, r.deps.Executor, r.deps.Lock)
	sess := NewSession(id, target, r.cfg.Session, gate, r.deps.Books, r.deps.Stream, r.clock)

	var (
		outcome domain.SessionOutcome
		g       errgroup.Group
	)
	g.Go(func() error {
		outcome = sess.Run(ctx)
		return nil
	})
	if !r.cfg.RunOnce {
		g.Go(func() error {
			r.prefetch(ctx, target)
			return nil
		})
	}
	_ = g.Wait()
	return outcome
}

// prefetch deja en r.next el primer candidato que expira después de current.
func (r *Runner) prefetch(ctx context.Context, current domain.MarketCandidate) {
	pctx, cancel := context.WithTimeout(ctx, prefetchTimeout)
	defer cancel()

	cands, err := r.deps.Targets.Candidates(pctx)
	if err != nil {
		slog.Debug("sniper: prefetch failed", "err", err)
		return
	}
	for _, c := range cands {
		if c.ConditionID == current.ConditionID || !c.EndTime.After(current.EndTime) {
			continue
		}
		r.next = &c
		slog.Debug("sniper: next target ready",
			"market", c.ConditionID,
			"end", c.EndTime.Format(time.RFC3339),
		)
		return
	}
}

// record persiste y reporta la sesión. Los errores solo se loguean.
func (r *Runner) record(ctx context.Context, o domain.SessionOutcome) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	attrs := []any{
		"session", o.SessionID,
		"market", o.Candidate.ConditionID,
		"state", o.State.String(),
		"duration", o.EndedAt.Sub(o.StartedAt).Round(time.Millisecond),
	}
	if o.FailReason != "" {
		attrs = append(attrs, "reason", o.FailReason)
	}
	slog.Info("sniper: session ended", attrs...)

	if r.deps.Journal != nil {
		if err := r.deps.Journal.SaveSession(rctx, o); err != nil {
			slog.Warn("sniper: journal error", "err", err)
		}
	}
	if r.deps.Reporter != nil {
		if err := r.deps.Reporter.Session(rctx, o); err != nil {
			slog.Warn("sniper: reporter error", "err", err)
		}
	}
	if r.deps.Alerter != nil && o.State == domain.StateFired && o.Result != nil {
		if err := r.deps.Alerter.Alert(rctx, "Sniper fired", describeFire(o)); err != nil {
			slog.Warn("sniper: alert error", "err", err)
		}
	}
}

func describeFire(o domain.SessionOutcome) string {
	res := o.Result
	q := domain.TruncateQuestion(o.Candidate.Question, o.Candidate.ConditionID, 80)
	mode := "LIVE"
	if res.DryRun {
		mode = "DRY-RUN"
	}
	msg := fmt.Sprintf("[%s] %s\nBUY %s %.2f @ %.4f ($%.2f)",
		mode, q, res.Decision.Label, res.Size, res.Decision.Price, res.Notional)
	if res.Err != nil {
		msg += "\nerror: " + res.Err.Error()
	} else if res.Placed.CLOBOrderID != "" {
		msg += fmt.Sprintf("\norder %s (%s)", res.Placed.CLOBOrderID, res.Placed.Status)
	}
	return msg
}

// sleep espera d o hasta que ctx se cancele. Devuelve false si se canceló.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(d):
		return true
	}
}
