package domain

import "time"

// OrderBook representa el libro de órdenes de un token tal como lo devuelve el
// snapshot REST o un mensaje "book" del stream.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// Quote es un precio opcional. OK=false significa que no hay liquidez
// observada; un precio 0 nunca se usa para representar ausencia.
type Quote struct {
	Price float64
	OK    bool
}

// Absent es el Quote sin liquidez.
var Absent = Quote{}

// PriceOf construye un Quote presente.
func PriceOf(p float64) Quote {
	return Quote{Price: p, OK: true}
}

// BestBid devuelve el mejor bid (mayor precio) o Absent si el book está vacío.
func (ob OrderBook) BestBid() Quote {
	if len(ob.Bids) == 0 {
		return Absent
	}
	return PriceOf(ob.Bids[0].Price)
}

// BestAsk devuelve el mejor ask (menor precio) o Absent si el book está vacío.
func (ob OrderBook) BestAsk() Quote {
	if len(ob.Asks) == 0 {
		return Absent
	}
	return PriceOf(ob.Asks[0].Price)
}

// BookUpdate es una lectura de mejores precios para un token, producida por
// el stream. HasAsk/HasBid indican si el mensaje trae información de ese lado;
// si la trae pero Ask/Bid está ausente, la liquidez se retiró.
type BookUpdate struct {
	TokenID    string
	HasAsk     bool
	Ask        Quote
	HasBid     bool
	Bid        Quote
	ReceivedAt time.Time
}

// UpdateFromBook convierte un OrderBook completo en un BookUpdate que
// reemplaza ambos lados.
func UpdateFromBook(ob OrderBook, at time.Time) BookUpdate {
	return BookUpdate{
		TokenID:    ob.TokenID,
		HasAsk:     true,
		Ask:        ob.BestAsk(),
		HasBid:     true,
		Bid:        ob.BestBid(),
		ReceivedAt: at,
	}
}

// SideQuotes son los mejores precios de un lado del mercado.
type SideQuotes struct {
	Ask Quote
	Bid Quote
}

// BookState es la foto de mejores precios de los dos lados de un candidato.
type BookState struct {
	SideA     SideQuotes
	SideB     SideQuotes
	UpdatedAt time.Time
}
