package domain

// Side identifica uno de los dos lados de un mercado binario.
type Side int

const (
	SideA Side = iota // UP / YES
	SideB             // DOWN / NO
)

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// TradeDecision es el resultado del motor de inferencia: qué token comprar y a qué precio.
type TradeDecision struct {
	Token string
	Side  Side
	Label string
	Price float64
}

// TieBreak define qué lado gana cuando ambos califican a la vez.
type TieBreak int

const (
	// TieBreakHighestPrice elige el ask más alto (mayor confianza implícita);
	// a igual precio gana el lado A.
	TieBreakHighestPrice TieBreak = iota
	// TieBreakPreferSideA elige siempre el lado A.
	TieBreakPreferSideA
)

// ParseTieBreak convierte el valor de config en TieBreak. Desconocido → highest_price.
func ParseTieBreak(s string) TieBreak {
	if s == "prefer_side_a" {
		return TieBreakPreferSideA
	}
	return TieBreakHighestPrice
}

func (t TieBreak) String() string {
	if t == TieBreakPreferSideA {
		return "prefer_side_a"
	}
	return "highest_price"
}
