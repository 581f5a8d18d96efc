package polymarket

// clob.go — snapshot REST de orderbooks del CLOB.
//
// El sniper sólo pide los dos tokens de un mercado en el cold start de cada
// sesión, así que lo normal es un único POST /books. Listas más largas se
// parten en lotes que corren en un errgroup; el primer fallo cancela el resto.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	booksPath = "/books"
	batchSize = 20 // máx token_ids por request a /books
)

// FetchOrderBooks implementa ports.BookProvider. Los tokens sin book no
// aparecen en el map.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}
	if len(tokenIDs) <= batchSize {
		books, err := c.postBooks(ctx, tokenIDs)
		if err != nil {
			return nil, fmt.Errorf("clob.FetchOrderBooks: %w", err)
		}
		return books, nil
	}

	var (
		mu     sync.Mutex
		result = make(map[string]domain.OrderBook, len(tokenIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(tokenIDs); start += batchSize {
		batch := tokenIDs[start:min(start+batchSize, len(tokenIDs))]
		g.Go(func() error {
			books, err := c.postBooks(gctx, batch)
			if err != nil {
				return fmt.Errorf("batch at %d: %w", start, err)
			}
			mu.Lock()
			for id, b := range books {
				result[id] = b
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("clob.FetchOrderBooks: %w", err)
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

func (c *Client) postBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}
	return mapOrderBooks(resp), nil
}
