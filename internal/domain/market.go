package domain

import (
	"fmt"
	"time"
)

// Shape clasifica el tipo de mercado que el resolver sabe manejar.
type Shape int

const (
	ShapeOther Shape = iota
	ShapeFifteenMinute
	ShapeDaily
)

// String devuelve el nombre corto del shape para logs y tablas.
func (s Shape) String() string {
	switch s {
	case ShapeFifteenMinute:
		return "15m"
	case ShapeDaily:
		return "daily"
	default:
		return "other"
	}
}

// Listing es un registro crudo de la fuente de listados (Gamma) ya normalizado
// a tipos Go. Los arrays de tokens y outcomes se mantienen como vienen porque
// su parseo es parte del filtrado del resolver.
type Listing struct {
	ConditionID  string
	Question     string
	Slug         string
	EndDate      string // ISO-8601 tal como lo devuelve la API
	Closed       bool
	Active       bool
	NegRisk      bool
	ClobTokenIDs []string
	Outcomes     []string
	// TokensMalformed indica que el campo de tokens u outcomes no se pudo decodificar.
	TokensMalformed bool
}

// MarketCandidate es el mercado seleccionado para una sesión de sniping.
// Es un value type: una vez seleccionado no se modifica.
type MarketCandidate struct {
	ConditionID   string
	Question      string
	SideAToken    string // gana si el evento ocurre (UP / YES)
	SideBToken    string // complemento (DOWN / NO)
	SideALabel    string
	SideBLabel    string
	EndTime       time.Time // UTC
	Shape         Shape
	MonitorWindow time.Duration
	NegRisk       bool
}

// TimeToExpiry devuelve el tiempo restante hasta EndTime desde now.
func (c MarketCandidate) TimeToExpiry(now time.Time) time.Duration {
	return c.EndTime.Sub(now)
}

// Validate comprueba los invariantes de un candidato en el instante now.
func (c MarketCandidate) Validate(now time.Time) error {
	if c.SideAToken == "" || c.SideBToken == "" {
		return fmt.Errorf("candidate %s: %w: empty token", c.ConditionID, ErrUnparseableTokens)
	}
	if c.SideAToken == c.SideBToken {
		return fmt.Errorf("candidate %s: %w: tokens are not distinct", c.ConditionID, ErrUnparseableTokens)
	}
	if !c.EndTime.After(now) {
		return fmt.Errorf("candidate %s: already expired at %s", c.ConditionID, c.EndTime.Format(time.RFC3339))
	}
	return nil
}

// TokenIDs devuelve los dos token ids en orden A, B.
func (c MarketCandidate) TokenIDs() []string {
	return []string{c.SideAToken, c.SideBToken}
}

// LabelFor devuelve el label del lado al que pertenece el token.
func (c MarketCandidate) LabelFor(side Side) string {
	if side == SideA {
		return c.SideALabel
	}
	return c.SideBLabel
}

// TokenFor devuelve el token id del lado dado.
func (c MarketCandidate) TokenFor(side Side) string {
	if side == SideA {
		return c.SideAToken
	}
	return c.SideBToken
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa los primeros caracteres del conditionID como fallback.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
