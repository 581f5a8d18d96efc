package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// ListingSource consulta los listados públicos de mercados (Gamma).
type ListingSource interface {
	// Search devuelve los mercados que matchean la query de texto libre.
	Search(ctx context.Context, query string) ([]domain.Listing, error)

	// ActiveListings devuelve mercados abiertos sin filtro de texto.
	ActiveListings(ctx context.Context) ([]domain.Listing, error)
}
