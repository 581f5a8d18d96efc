// Package inference decide qué lado de un mercado binario comprar a partir de
// los mejores asks de ambos lados.
package inference

import "github.com/alejandrodnm/polysniper/internal/domain"

const (
	DefaultBuyPriceCeiling   = 0.99
	DefaultMinConfidence     = 0.50
	DefaultIlliquidThreshold = 0.10
)

// Params parametriza Decide.
type Params struct {
	// BuyPriceCeiling es el precio máximo a pagar (inclusive).
	BuyPriceCeiling float64
	// MinConfidence es el ask mínimo (exclusivo) para considerar un lado ganador.
	MinConfidence float64
	// IlliquidThreshold: si un lado no tiene asks y el complemento cotiza por
	// debajo de este valor, el lado sin asks es el ganador implícito.
	IlliquidThreshold float64
	TieBreak          domain.TieBreak
}

// DefaultParams devuelve los parámetros por defecto de la estrategia.
func DefaultParams() Params {
	return Params{
		BuyPriceCeiling:   DefaultBuyPriceCeiling,
		MinConfidence:     DefaultMinConfidence,
		IlliquidThreshold: DefaultIlliquidThreshold,
		TieBreak:          domain.TieBreakHighestPrice,
	}
}

// Outcome describe por qué Decide llegó a su resultado. Sirve para logs.
type Outcome int

const (
	OutcomeNoQualifier Outcome = iota
	OutcomeDecided
	// OutcomeIlliquidWinner: hay ganador implícito (1 - ask del complemento)
	// pero no hay asks contra los que ejecutar.
	OutcomeIlliquidWinner
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecided:
		return "decided"
	case OutcomeIlliquidWinner:
		return "illiquid_winner"
	default:
		return "no_qualifier"
	}
}

// Decide es pura: no muta state ni tiene efectos.
func Decide(c domain.MarketCandidate, state domain.BookState, p Params) (domain.TradeDecision, bool) {
	d, outcome := Explain(c, state, p)
	return d, outcome == OutcomeDecided
}

// Explain es Decide con el motivo del resultado.
func Explain(c domain.MarketCandidate, state domain.BookState, p Params) (domain.TradeDecision, Outcome) {
	if _, _, ok := ImpliedWinner(state, p); ok {
		return domain.TradeDecision{}, OutcomeIlliquidWinner
	}

	askA, askB := state.SideA.Ask, state.SideB.Ask

	qualA := qualifies(askA, p)
	qualB := qualifies(askB, p)

	switch {
	case qualA && qualB:
		side := domain.SideA
		if p.TieBreak == domain.TieBreakHighestPrice && askB.Price > askA.Price {
			side = domain.SideB
		}
		return decision(c, side, state), OutcomeDecided
	case qualA:
		return decision(c, domain.SideA, state), OutcomeDecided
	case qualB:
		return decision(c, domain.SideB, state), OutcomeDecided
	}
	return domain.TradeDecision{}, OutcomeNoQualifier
}

// ImpliedWinner devuelve el lado ganador implícito cuando un lado no tiene asks
// y el otro cotiza por debajo del umbral, con su precio implícito 1 - ask.
func ImpliedWinner(state domain.BookState, p Params) (domain.Side, float64, bool) {
	askA, askB := state.SideA.Ask, state.SideB.Ask
	if !askA.OK && askB.OK && askB.Price < p.IlliquidThreshold {
		return domain.SideA, 1 - askB.Price, true
	}
	if !askB.OK && askA.OK && askA.Price < p.IlliquidThreshold {
		return domain.SideB, 1 - askA.Price, true
	}
	return 0, 0, false
}

func qualifies(q domain.Quote, p Params) bool {
	return q.OK && q.Price > p.MinConfidence && q.Price <= p.BuyPriceCeiling
}

func decision(c domain.MarketCandidate, side domain.Side, state domain.BookState) domain.TradeDecision {
	price := state.SideA.Ask.Price
	if side == domain.SideB {
		price = state.SideB.Ask.Price
	}
	return domain.TradeDecision{
		Token: c.TokenFor(side),
		Side:  side,
		Label: c.LabelFor(side),
		Price: price,
	}
}
