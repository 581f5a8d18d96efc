package polymarket

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// mapListings convierte los DTOs de Gamma a domain.Listing.
func mapListings(raw []gammaMarket) []domain.Listing {
	listings := make([]domain.Listing, 0, len(raw))
	for _, r := range raw {
		listings = append(listings, mapListing(r))
	}
	return listings
}

// mapListing convierte un gammaMarket a domain.Listing. endDate (con hora) tiene
// prioridad sobre endDateIso, que a menudo sólo trae la fecha.
func mapListing(r gammaMarket) domain.Listing {
	end := r.EndDate
	if end == "" {
		end = r.EndDateISO
	}
	return domain.Listing{
		ConditionID:     r.ConditionID,
		Question:        r.Question,
		Slug:            r.Slug,
		EndDate:         end,
		Closed:          r.Closed,
		Active:          r.Active,
		NegRisk:         r.NegRisk,
		ClobTokenIDs:    r.ClobTokenIDs.Values,
		Outcomes:        r.Outcomes.Values,
		TokensMalformed: r.ClobTokenIDs.Malformed || r.Outcomes.Malformed,
	}
}

// mapCLOBListing lleva un mercado del CLOB a la misma forma que un listado de Gamma.
func mapCLOBListing(m clobMarket) domain.Listing {
	l := domain.Listing{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.MarketSlug,
		EndDate:     m.EndDateISO,
		Closed:      m.Closed,
		Active:      m.Active,
		NegRisk:     m.NegRisk,
	}
	for _, t := range m.Tokens {
		l.ClobTokenIDs = append(l.ClobTokenIDs, t.TokenID)
		l.Outcomes = append(l.Outcomes, t.Outcome)
	}
	return l
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// mapWSMessage convierte un mensaje del canal de mercado en cero o más
// BookUpdate. Eventos desconocidos devuelven nil.
func mapWSMessage(m wsMessage, at time.Time) []domain.BookUpdate {
	switch m.EventType {
	case "book":
		if m.AssetID == "" {
			return nil
		}
		ob := domain.OrderBook{
			TokenID: m.AssetID,
			Bids:    mapBookEntries(m.Bids, false),
			Asks:    mapBookEntries(m.Asks, true),
		}
		return []domain.BookUpdate{domain.UpdateFromBook(ob, at)}

	case "price_change":
		updates := make([]domain.BookUpdate, 0, len(m.PriceChanges))
		for _, pc := range m.PriceChanges {
			asset := pc.AssetID
			if asset == "" {
				asset = m.AssetID
			}
			if asset == "" {
				continue
			}
			u := domain.BookUpdate{TokenID: asset, ReceivedAt: at}
			u.Ask, u.HasAsk = parseBest(pc.BestAsk)
			u.Bid, u.HasBid = parseBest(pc.BestBid)
			if u.HasAsk || u.HasBid {
				updates = append(updates, u)
			}
		}
		return updates
	}
	return nil
}

// parseBest interpreta un best_bid/best_ask del stream. Campo ausente o
// ilegible → has=false (no toca la lectura actual). "0" → liquidez retirada.
func parseBest(s string) (q domain.Quote, has bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Absent, false
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.Absent, false
	}
	if p <= 0 {
		return domain.Absent, true
	}
	return domain.PriceOf(p), true
}
