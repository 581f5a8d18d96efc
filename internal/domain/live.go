package domain

import "time"

// OrderType es el time-in-force de una orden del CLOB.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // fill-or-kill: todo o nada, inmediato
	OrderTypeGTC OrderType = "GTC"
)

// PlaceOrderRequest is the input to OrderExecutor.PlaceOrder.
type PlaceOrderRequest struct {
	TokenID     string
	ConditionID string
	Price       float64 // limit price in USDC per share
	Size        float64 // shares
	Side        string  // "BUY"
	OrderType   OrderType
	NegRisk     bool
}

// PlacedOrder is the CLOB response after placing an order.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string // "matched", "live", "delayed", "unmatched"
	TakenAmount float64
	MadeAmount  float64
}

// OrderResult es lo que el execution gate reporta tras un disparo.
type OrderResult struct {
	SessionID string
	Decision  TradeDecision
	Size      float64 // shares
	Notional  float64 // USDC
	DryRun    bool
	Placed    PlacedOrder
	Err       error
	FiredAt   time.Time
}

// Succeeded devuelve true si la orden se envió (o se simuló) sin error.
func (r OrderResult) Succeeded() bool {
	return r.Err == nil
}
