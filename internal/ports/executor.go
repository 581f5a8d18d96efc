package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// OrderExecutor places real orders on Polymarket CLOB.
type OrderExecutor interface {
	// PlaceOrder signs and submits an order. Rejections wrap
	// domain.ErrOrderRejected; transport failures wrap domain.ErrOrderTransport.
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)
}
