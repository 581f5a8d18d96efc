package sniper

import (
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Cadence define el intervalo entre ticks según el tiempo restante:
// Coarse por encima de CoarseAbove, Medium por encima de MediumAbove, Fine el resto.
type Cadence struct {
	Coarse      time.Duration
	CoarseAbove time.Duration
	Medium      time.Duration
	MediumAbove time.Duration
	Fine        time.Duration
}

// DefaultCadence: 1s lejos del cierre, 100ms en los últimos 10s, 10ms en los últimos 2s.
func DefaultCadence() Cadence {
	return Cadence{
		Coarse:      time.Second,
		CoarseAbove: 10 * time.Second,
		Medium:      100 * time.Millisecond,
		MediumAbove: 2 * time.Second,
		Fine:        10 * time.Millisecond,
	}
}

// Interval devuelve cuánto dormir antes del próximo tick. Dentro de la
// ventana de disparo siempre es Fine; fuera de ella nunca duerme más allá del
// siguiente umbral ni del inicio de la ventana.
func (c Cadence) Interval(remaining, triggerWindow time.Duration) time.Duration {
	if remaining <= triggerWindow {
		return c.Fine
	}
	var d time.Duration
	switch {
	case remaining > c.CoarseAbove:
		d = min(c.Coarse, remaining-c.CoarseAbove)
	case remaining > c.MediumAbove:
		d = min(c.Medium, remaining-c.MediumAbove)
	default:
		return c.Fine
	}
	return min(d, remaining-triggerWindow)
}

// Scheduler es la máquina de estados de una sesión:
//
//	WAITING → MONITORING → ARMED → FIRED | EXPIRED | FAILED
//
// No es seguro para uso concurrente; lo usa solo el loop de la sesión.
type Scheduler struct {
	monitorWindow time.Duration
	triggerWindow time.Duration
	state         domain.SessionState
}

// NewScheduler crea un scheduler en WAITING.
func NewScheduler(monitorWindow, triggerWindow time.Duration) *Scheduler {
	return &Scheduler{
		monitorWindow: monitorWindow,
		triggerWindow: triggerWindow,
		state:         domain.StateWaiting,
	}
}

// State devuelve el estado actual.
func (s *Scheduler) State() domain.SessionState {
	return s.state
}

// Advance recalcula el estado con el tiempo restante hasta la expiración.
// Los estados terminales no cambian y nunca se llega a FIRED por aquí.
func (s *Scheduler) Advance(remaining time.Duration) domain.SessionState {
	if s.state.Terminal() {
		return s.state
	}

	switch {
	case remaining <= 0:
		s.state = domain.StateExpired
	case remaining <= s.triggerWindow:
		s.state = domain.StateArmed
	case remaining <= s.monitorWindow:
		if s.state == domain.StateWaiting {
			s.state = domain.StateMonitoring
		}
	}
	return s.state
}

// MarkFired pasa de ARMED a FIRED. Devuelve false desde cualquier otro estado.
func (s *Scheduler) MarkFired() bool {
	if s.state != domain.StateArmed {
		return false
	}
	s.state = domain.StateFired
	return true
}

// MarkFailed termina la sesión por error de transporte.
func (s *Scheduler) MarkFailed() bool {
	if s.state.Terminal() {
		return false
	}
	s.state = domain.StateFailed
	return true
}
