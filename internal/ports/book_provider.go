package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// BookProvider obtiene orderbooks del CLOB usando el endpoint batch.
type BookProvider interface {
	// FetchOrderBooks devuelve los orderbooks para los token_ids dados.
	// Los tokens sin book no aparecen en el map.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)
}

// BookStream entrega actualizaciones de mejores precios en tiempo real.
type BookStream interface {
	// Stream se suscribe a los tokens y publica actualizaciones en el primer
	// canal hasta que ctx se cancele. Un error en el segundo canal significa que
	// el stream no se pudo recuperar; ambos canales se cierran al terminar.
	Stream(ctx context.Context, tokenIDs []string) (<-chan domain.BookUpdate, <-chan error)
}
