package domain

import "time"

// SessionState es el estado del scheduler de una sesión de sniping.
type SessionState int

const (
	StateWaiting SessionState = iota
	StateMonitoring
	StateArmed
	StateFired
	StateExpired
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateMonitoring:
		return "MONITORING"
	case StateArmed:
		return "ARMED"
	case StateFired:
		return "FIRED"
	case StateExpired:
		return "EXPIRED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal devuelve true para FIRED, EXPIRED y FAILED.
func (s SessionState) Terminal() bool {
	return s == StateFired || s == StateExpired || s == StateFailed
}

// SessionOutcome resume una sesión terminada. Se usa para el journal y el
// reporte de consola; el core no lo vuelve a leer.
type SessionOutcome struct {
	SessionID  string
	Candidate  MarketCandidate
	State      SessionState
	Decision   *TradeDecision
	Result     *OrderResult
	LastBook   BookState
	StartedAt  time.Time
	EndedAt    time.Time
	FailReason string
}
