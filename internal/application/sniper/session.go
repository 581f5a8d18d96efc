package sniper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polysniper/internal/application/inference"
	"github.com/alejandrodnm/polysniper/internal/application/tracker"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

const (
	coldStartTimeout  = 5 * time.Second
	reasonInterrupted = "interrupted"
)

// SessionConfig parametriza una sesión de sniping.
type SessionConfig struct {
	TriggerWindow  time.Duration
	Cadence        Cadence
	StatusInterval time.Duration
	Inference      inference.Params
}

// DefaultSessionConfig: disparo en el último segundo, status cada 30s.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TriggerWindow:  time.Second,
		Cadence:        DefaultCadence(),
		StatusInterval: 30 * time.Second,
		Inference:      inference.DefaultParams(),
	}
}

// Session vigila un único candidato hasta que dispara, expira o falla.
type Session struct {
	id        string
	candidate domain.MarketCandidate
	cfg       SessionConfig

	sched   *Scheduler
	tracker *tracker.Tracker
	gate    *Gate
	books   ports.BookProvider
	stream  ports.BookStream
	clock   Clock

	lastStatus time.Time
}

// NewSession crea una sesión en WAITING. books puede ser nil (sin cold start).
func NewSession(
	id string,
	c domain.MarketCandidate,
	cfg SessionConfig,
	gate *Gate,
	books ports.BookProvider,
	stream ports.BookStream,
	clock Clock,
) *Session {
	if clock == nil {
		clock = RealClock()
	}
	if cfg.Cadence == (Cadence{}) {
		cfg.Cadence = DefaultCadence()
	}
	return &Session{
		id:        id,
		candidate: c,
		cfg:       cfg,
		sched:     NewScheduler(c.MonitorWindow, cfg.TriggerWindow),
		tracker:   tracker.New(c),
		gate:      gate,
		books:     books,
		stream:    stream,
		clock:     clock,
	}
}

// State devuelve el estado actual del scheduler. Solo es fiable desde el
// loop de la sesión o después de que Run termine.
func (s *Session) State() domain.SessionState {
	return s.sched.State()
}

func (s *Session) remaining() time.Duration {
	return s.candidate.TimeToExpiry(s.clock.Now())
}

// Run bloquea hasta que la sesión llega a un estado terminal y devuelve su
// resumen. La cancelación de ctx termina la sesión como FAILED, salvo que
// ya haya disparado.
func (s *Session) Run(ctx context.Context) (out domain.SessionOutcome) {
	out = domain.SessionOutcome{
		SessionID: s.id,
		Candidate: s.candidate,
		StartedAt: s.clock.Now().UTC(),
	}
	defer func() {
		out.State = s.sched.State()
		out.LastBook = s.tracker.Snapshot()
		out.EndedAt = s.clock.Now().UTC()
	}()

	log := slog.With("session", s.id, "market", s.candidate.ConditionID)

	if !s.waitForWindow(ctx) {
		if ctx.Err() != nil && s.sched.MarkFailed() {
			out.FailReason = reasonInterrupted
		}
		return out
	}
	log.Info("sniper: monitoring",
		"question", domain.TruncateQuestion(s.candidate.Question, s.candidate.ConditionID, 60),
		"left", s.remaining().Round(time.Second),
	)

	if s.books != nil {
		cctx, cancel := context.WithTimeout(ctx, coldStartTimeout)
		if err := s.tracker.ColdStart(cctx, s.books); err != nil {
			log.Warn("sniper: cold start failed, waiting for stream", "err", err)
		}
		cancel()
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	updates, errs := s.stream.Stream(streamCtx, s.candidate.TokenIDs())

	if s.tick(ctx, &out) {
		return out
	}

	var timer <-chan time.Time
	for {
		if timer == nil {
			timer = s.clock.After(s.cfg.Cadence.Interval(s.remaining(), s.cfg.TriggerWindow))
		}
		select {
		case <-ctx.Done():
			if s.sched.MarkFailed() {
				out.FailReason = reasonInterrupted
			}
			return out

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.tracker.Apply(u)
			if s.sched.State() != domain.StateArmed {
				continue
			}
			if s.sched.Advance(s.remaining()) == domain.StateExpired {
				log.Info("sniper: expired without firing")
				return out
			}
			if s.evaluate(ctx, &out) {
				return out
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if s.sched.MarkFailed() {
				out.FailReason = err.Error()
				log.Error("sniper: stream failed", "err", err)
			}
			return out

		case <-timer:
			timer = nil
			if s.tick(ctx, &out) {
				return out
			}
		}
	}
}

// waitForWindow duerme en WAITING hasta entrar en la ventana de monitoreo.
// Devuelve false si la sesión terminó antes (expiró o se canceló ctx).
func (s *Session) waitForWindow(ctx context.Context) bool {
	for {
		rem := s.remaining()
		st := s.sched.Advance(rem)
		if st.Terminal() {
			return false
		}
		if st != domain.StateWaiting {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.clock.After(rem - s.candidate.MonitorWindow):
		}
	}
}

// tick avanza el scheduler y evalúa si está ARMED. Devuelve true si la
// sesión terminó.
func (s *Session) tick(ctx context.Context, out *domain.SessionOutcome) bool {
	prev := s.sched.State()
	rem := s.remaining()
	st := s.sched.Advance(rem)

	if st != prev {
		slog.Info("sniper: "+strings.ToLower(st.String()),
			"session", s.id,
			"left", rem.Round(time.Millisecond),
			"book", s.tracker,
		)
	}
	s.status(st, rem)

	switch st {
	case domain.StateExpired:
		return true
	case domain.StateArmed:
		return s.evaluate(ctx, out)
	}
	return false
}

// status imprime la línea de estado como mucho una vez por StatusInterval.
func (s *Session) status(st domain.SessionState, rem time.Duration) {
	now := s.clock.Now()
	if s.cfg.StatusInterval > 0 && now.Sub(s.lastStatus) < s.cfg.StatusInterval {
		return
	}
	s.lastStatus = now
	snap := s.tracker.Snapshot()
	slog.Info("sniper: status",
		"session", s.id,
		"state", st.String(),
		"left", rem.Round(time.Second),
		"ask_a", tracker.FormatQuote(snap.SideA.Ask),
		"ask_b", tracker.FormatQuote(snap.SideB.Ask),
	)
}

// evaluate corre la inferencia sobre el snapshot actual y dispara si hay
// decisión. Devuelve true si la sesión terminó (FIRED).
func (s *Session) evaluate(ctx context.Context, out *domain.SessionOutcome) bool {
	if s.sched.State() != domain.StateArmed || s.gate.Fired() {
		return false
	}
	snap := s.tracker.Snapshot()
	d, outcome := inference.Explain(s.candidate, snap, s.cfg.Inference)
	if outcome != inference.OutcomeDecided {
		attrs := []any{"session", s.id, "outcome", outcome.String(), "book", s.tracker}
		if side, implied, ok := inference.ImpliedWinner(snap, s.cfg.Inference); ok {
			attrs = append(attrs,
				"implied_side", s.candidate.LabelFor(side),
				"implied_price", fmt.Sprintf("%.4f", implied),
			)
		}
		slog.Debug("sniper: no decision", attrs...)
		return false
	}

	res, won := s.gate.Fire(ctx, d)
	if !won {
		return false
	}
	s.sched.MarkFired()
	out.Decision = &d
	out.Result = &res
	if res.Err != nil {
		out.FailReason = describeOrderErr(res.Err)
	}
	return true
}

func describeOrderErr(err error) string {
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		return "lock held by another process"
	case errors.Is(err, domain.ErrOrderRejected):
		return fmt.Sprintf("rejected: %v", err)
	case errors.Is(err, domain.ErrOrderTransport):
		return fmt.Sprintf("transport: %v", err)
	default:
		return err.Error()
	}
}
