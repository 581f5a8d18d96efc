package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Alerter envía avisos best-effort (webhook, escritorio). Los errores se
// loguean; nunca llegan al loop principal.
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

// Reporter presenta al usuario candidatos y resultados de sesión.
type Reporter interface {
	// Candidates muestra los candidatos de una resolución ordenados por expiración.
	Candidates(ctx context.Context, candidates []domain.MarketCandidate) error
	// Session muestra el resultado de una sesión terminada.
	Session(ctx context.Context, outcome domain.SessionOutcome) error
}
