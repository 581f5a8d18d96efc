package resolver

// concurrent.go — worker pool para lanzar las queries de búsqueda en paralelo.
//
// Cada query es independiente: un fallo se loguea y el resto sigue aportando
// resultados. El rate limiter del cliente HTTP ya controla el ritmo.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// query es una búsqueda a ejecutar contra el ListingSource.
type query struct {
	text   string // vacío = listado activo sin filtro
	active bool
}

func (q query) String() string {
	if q.active {
		return "<active listings>"
	}
	return q.text
}

// fetchResult guarda el resultado de una query en su posición original para
// que el aplanado sea determinista.
type fetchResult struct {
	idx      int
	listings []domain.Listing
	err      error
}

// fetchConcurrent ejecuta las queries con un pool de workers y devuelve los
// listados aplanados en el orden de las queries, junto con los errores
// aislados de las que fallaron.
func (r *Resolver) fetchConcurrent(ctx context.Context, queries []query) ([]domain.Listing, []error) {
	workers := r.cfg.Workers
	if workers <= 0 || workers > len(queries) {
		workers = len(queries)
	}

	workCh := make(chan int, len(queries))
	resultCh := make(chan fetchResult, len(queries))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range workCh {
				listings, err := r.runQuery(ctx, queries[idx])
				resultCh <- fetchResult{idx: idx, listings: listings, err: err}
			}
		}()
	}

	for i := range queries {
		workCh <- i
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	ordered := make([][]domain.Listing, len(queries))
	var errs []error
	for res := range resultCh {
		if res.err != nil {
			err := fmt.Errorf("resolver: query %q: %w", queries[res.idx], res.err)
			if !errors.Is(res.err, domain.ErrTransientFetch) {
				err = fmt.Errorf("%w: %w", domain.ErrTransientFetch, err)
			}
			slog.Warn("resolver: query failed", "query", queries[res.idx].String(), "err", res.err)
			errs = append(errs, err)
			continue
		}
		slog.Debug("resolver: query done", "query", queries[res.idx].String(), "results", len(res.listings))
		ordered[res.idx] = res.listings
	}

	var all []domain.Listing
	for _, ls := range ordered {
		all = append(all, ls...)
	}
	return all, errs
}

func (r *Resolver) runQuery(ctx context.Context, q query) ([]domain.Listing, error) {
	if q.active {
		return r.listings.ActiveListings(ctx)
	}
	return r.listings.Search(ctx, q.text)
}
