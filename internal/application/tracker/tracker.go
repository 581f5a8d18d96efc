// Package tracker mantiene los mejores precios de los dos tokens de un
// candidato, alimentado por el snapshot REST inicial y por el stream.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// Tracker es el OrderBookState de una sesión. Un único writer (el loop de la
// sesión) y lectores concurrentes.
type Tracker struct {
	sideA string
	sideB string

	mu    sync.RWMutex
	state domain.BookState
}

// New crea un Tracker para el par de tokens del candidato.
func New(c domain.MarketCandidate) *Tracker {
	return &Tracker{
		sideA: c.SideAToken,
		sideB: c.SideBToken,
	}
}

// ColdStart pide el book actual de ambos tokens por REST y lo aplica.
// Evita la ventana inicial sin precios antes del primer mensaje del stream.
func (t *Tracker) ColdStart(ctx context.Context, books ports.BookProvider) error {
	snap, err := books.FetchOrderBooks(ctx, []string{t.sideA, t.sideB})
	if err != nil {
		return fmt.Errorf("tracker.ColdStart: %w", err)
	}
	t.Seed(snap, time.Now())
	return nil
}

// Seed aplica un snapshot completo (tokenID → OrderBook).
func (t *Tracker) Seed(books map[string]domain.OrderBook, at time.Time) {
	for _, tok := range []string{t.sideA, t.sideB} {
		ob, ok := books[tok]
		if !ok {
			continue
		}
		ob.TokenID = tok
		t.Apply(domain.UpdateFromBook(ob, at))
	}
}

// Apply aplica una actualización. Devuelve false si el token no pertenece al
// candidato. La última lectura de un token reemplaza a la anterior; los dos
// tokens son independientes entre sí.
func (t *Tracker) Apply(u domain.BookUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var side *domain.SideQuotes
	switch u.TokenID {
	case t.sideA:
		side = &t.state.SideA
	case t.sideB:
		side = &t.state.SideB
	default:
		return false
	}

	if u.HasAsk {
		side.Ask = sanitize(u.Ask)
	}
	if u.HasBid {
		side.Bid = sanitize(u.Bid)
	}
	if u.ReceivedAt.After(t.state.UpdatedAt) {
		t.state.UpdatedAt = u.ReceivedAt
	}
	return true
}

// sanitize descarta precios fuera de (0, 1].
func sanitize(q domain.Quote) domain.Quote {
	if !q.OK || q.Price <= 0 || q.Price > 1 {
		return domain.Absent
	}
	return q
}

// BestAsk devuelve el mejor ask del token, o Absent si nunca hubo liquidez.
func (t *Tracker) BestAsk(token string) domain.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch token {
	case t.sideA:
		return t.state.SideA.Ask
	case t.sideB:
		return t.state.SideB.Ask
	}
	return domain.Absent
}

// BestBid devuelve el mejor bid del token, o Absent.
func (t *Tracker) BestBid(token string) domain.Quote {
	t.mu.RLock()
	defer t.mu.RUnlock()
	switch token {
	case t.sideA:
		return t.state.SideA.Bid
	case t.sideB:
		return t.state.SideB.Bid
	}
	return domain.Absent
}

// Snapshot devuelve una copia consistente del estado de ambos lados.
func (t *Tracker) Snapshot() domain.BookState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// LogValue permite loguear el tracker directamente con slog.
func (t *Tracker) LogValue() slog.Value {
	s := t.Snapshot()
	return slog.GroupValue(
		slog.String("ask_a", FormatQuote(s.SideA.Ask)),
		slog.String("ask_b", FormatQuote(s.SideB.Ask)),
		slog.String("bid_a", FormatQuote(s.SideA.Bid)),
		slog.String("bid_b", FormatQuote(s.SideB.Bid)),
	)
}

// FormatQuote formatea un Quote para logs: "0.9500" o "-".
func FormatQuote(q domain.Quote) string {
	if !q.OK {
		return "-"
	}
	return fmt.Sprintf("%.4f", q.Price)
}
