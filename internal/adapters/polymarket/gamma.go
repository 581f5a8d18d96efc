package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	gammaSearchPath  = "/public-search"
	gammaMarketsPath = "/markets"
	clobMarketsPath  = "/markets"
	activePageLimit  = 200
)

// Search implementa ports.ListingSource. Devuelve los mercados de todos los
// eventos que matchean la query. Si Gamma no acepta conexiones se consulta
// GET /markets del CLOB y se filtra por los términos de la query.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Listing, error) {
	u := fmt.Sprintf("%s%s?q=%s", c.gammaBase, gammaSearchPath, url.QueryEscape(query))

	var resp gammaSearchResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		if !isConnectErr(err) {
			return nil, fmt.Errorf("gamma.Search %q: %w: %w", query, domain.ErrTransientFetch, err)
		}
		slog.Warn("gamma unreachable, falling back to CLOB markets", "query", query, "err", err)
		listings, clobErr := c.searchCLOB(ctx, query)
		if clobErr != nil {
			return nil, fmt.Errorf("gamma.Search %q: %w: %w", query, domain.ErrTransientFetch, errors.Join(err, clobErr))
		}
		return listings, nil
	}

	var raw []gammaMarket
	for _, ev := range resp.Events {
		raw = append(raw, ev.Markets...)
	}

	slog.Debug("gamma search done", "query", query, "events", len(resp.Events), "markets", len(raw))
	return mapListings(raw), nil
}

// ActiveListings implementa ports.ListingSource: mercados abiertos sin filtro de texto.
func (c *Client) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	u := fmt.Sprintf("%s%s?closed=false&active=true&limit=%d", c.gammaBase, gammaMarketsPath, activePageLimit)

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("gamma.ActiveListings: %w: %w", domain.ErrTransientFetch, err)
	}

	slog.Debug("gamma active listings done", "markets", len(resp))
	return mapListings(resp), nil
}

// searchCLOB lee una página de GET /markets del CLOB y se queda con los
// mercados cuya pregunta o descripción contiene alguno de los términos.
func (c *Client) searchCLOB(ctx context.Context, query string) ([]domain.Listing, error) {
	var resp clobMarketsResponse
	if err := c.get(ctx, c.clobLimiter, c.clobBase+clobMarketsPath, &resp); err != nil {
		return nil, fmt.Errorf("clob /markets: %w", err)
	}

	terms := searchTerms(query)
	var listings []domain.Listing
	for _, m := range resp.Data {
		text := strings.ToLower(m.Question + " " + m.Description)
		for _, t := range terms {
			if strings.Contains(text, t) {
				listings = append(listings, mapCLOBListing(m))
				break
			}
		}
	}

	slog.Debug("clob markets fallback done", "query", query, "markets", len(resp.Data), "matched", len(listings))
	return listings, nil
}

// searchTerms parte "Bitcoin up or down" en bitcoin, up, down.
func searchTerms(query string) []string {
	q := strings.ReplaceAll(strings.ToLower(query), " or ", " ")
	return strings.Fields(q)
}

// isConnectErr distingue un fallo al conectar (DNS, conexión rechazada) de una
// respuesta HTTP de error.
func isConnectErr(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
