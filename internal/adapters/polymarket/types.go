package polymarket

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// clobMarketsResponse es la respuesta de GET /markets del CLOB. Según la versión
// llega como {"data": [...]} o como array directo.
type clobMarketsResponse struct {
	Data       []clobMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
}

func (r *clobMarketsResponse) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &r.Data)
	}
	type plain clobMarketsResponse
	return json.Unmarshal(b, (*plain)(r))
}

// clobMarket es un mercado del CLOB, en snake_case y con los tokens anidados.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	Question    string      `json:"question"`
	Description string      `json:"description"`
	MarketSlug  string      `json:"market_slug"`
	EndDateISO  string      `json:"end_date_iso"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	NegRisk     bool        `json:"neg_risk"`
	Tokens      []clobToken `json:"tokens"`
}

type clobToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaSearchResponse es la respuesta de GET /public-search.
type gammaSearchResponse struct {
	Events []gammaEvent `json:"events"`
}

// gammaEvent agrupa mercados relacionados (p.ej. las ventanas de un día).
type gammaEvent struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket es un mercado tal como lo devuelve Gamma.
// clobTokenIds y outcomes llegan como string JSON, array o lista separada por comas.
type gammaMarket struct {
	ConditionID  string     `json:"conditionId"`
	Question     string     `json:"question"`
	Slug         string     `json:"slug"`
	EndDate      string     `json:"endDate"`
	EndDateISO   string     `json:"endDateIso"`
	Active       bool       `json:"active"`
	Closed       bool       `json:"closed"`
	NegRisk      bool       `json:"negRisk"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
	Outcomes     stringList `json:"outcomes"`
}

// stringList acepta las tres codificaciones que usa Gamma para arrays:
// `["a","b"]`, `"[\"a\",\"b\"]"` y `"a, b"`. Si no puede decodificar marca
// Malformed en vez de fallar, para que un registro malo no tire la respuesta entera.
type stringList struct {
	Values    []string
	Malformed bool
}

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	if b[0] == '[' {
		if err := json.Unmarshal(b, &s.Values); err != nil {
			s.Malformed = true
		}
		return nil
	}

	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		s.Malformed = true
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &s.Values); err != nil {
			s.Malformed = true
		}
		return nil
	}

	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			s.Values = append(s.Values, p)
		}
	}
	return nil
}

// --- WebSocket ---

// wsSubscribe es el mensaje de suscripción al canal de mercado.
type wsSubscribe struct {
	Type      string   `json:"type"`
	Channel   string   `json:"channel"`
	AssetsIDs []string `json:"assets_ids"`
}

// wsMessage cubre los eventos "book" y "price_change" del canal de mercado.
type wsMessage struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Asks         []bookEntryRaw  `json:"asks"`
	Bids         []bookEntryRaw  `json:"bids"`
	PriceChanges []wsPriceChange `json:"price_changes"`
}

// wsPriceChange es un cambio de nivel con los mejores precios resultantes.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}
