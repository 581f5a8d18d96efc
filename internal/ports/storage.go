package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Journal registra el resultado de cada sesión. Es append-only: el core
// nunca lo lee para decidir.
type Journal interface {
	SaveSession(ctx context.Context, outcome domain.SessionOutcome) error
	Close() error
}

// FireLock es un lock distribuido para que dos procesos no disparen sobre el
// mismo mercado. Acquire devuelve domain.ErrLockHeld si otro lo tiene.
type FireLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
