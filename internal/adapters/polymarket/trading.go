package polymarket

// trading.go — Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderExecutor using AuthClient for L1/L2 auth.
// The sniper only places BUY orders as FOK (fill-or-kill): either the whole
// size fills against resting asks immediately or nothing happens.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient on top of an AuthClient.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{auth: auth}
}

// PlaceOrder signs and submits a single order. It is attempted exactly once.
// Errors wrap domain.ErrOrderRejected when the CLOB answered with a refusal and
// domain.ErrOrderTransport when the answer never arrived or was unreadable.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: creds: %w: %w", domain.ErrOrderTransport, err)
	}

	if req.Side != "" && req.Side != "BUY" {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: side %q: %w", req.Side, domain.ErrOrderRejected)
	}
	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeFOK
	}

	signed, err := tc.auth.buildSignedOrder(req.TokenID, req.Price, req.Size, req.NegRisk)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: sign: %w: %w", domain.ErrOrderRejected, err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.credentials().APIKey,
		OrderType: string(orderType),
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code < 500 {
			return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: %w: %w", domain.ErrOrderRejected, err)
		}
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: %w: %w", domain.ErrOrderTransport, err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("trading.PlaceOrder: clob error %q: %w", resp.ErrorMsg, domain.ErrOrderRejected)
	}

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseUSDC(resp.TakingAmount),
		MadeAmount:  parseUSDC(resp.MakingAmount),
	}, nil
}

// parseUSDC converts a micro-USDC string (e.g., "1000000") to USDC float.
// Decimal strings ("10.5") are accepted as-is.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		f, _, err := big.ParseFloat(s, 10, 64, big.ToNearestEven)
		if err != nil {
			return 0
		}
		v, _ := f.Float64()
		return v
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}
