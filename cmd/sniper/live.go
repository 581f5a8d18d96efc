package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/adapters/onchain"
	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
)

// errLiveAborted: el usuario canceló durante el periodo de gracia.
var errLiveAborted = errors.New("live mode aborted")

// setupLive deja la wallet lista para disparar: periodo de gracia, credenciales
// L2, saldo y allowance.
func setupLive(ctx context.Context, cfg *config.Config, console *notify.Console) (*polymarket.TradingClient, error) {
	if cfg.Wallet.PrivateKey == "" {
		return nil, errors.New("live mode requires POLY_PRIVATE_KEY")
	}

	notional := decimal.NewFromFloat(cfg.Sniper.NotionalUSDC)
	grace := time.Duration(cfg.Sniper.LiveGraceSeconds) * time.Second

	slog.Info("=== LIVE MODE (REAL MONEY) ===",
		"notional", notional.StringFixed(2),
		"ceiling", cfg.Sniper.BuyPriceCeiling,
		"trigger", cfg.TriggerWindow(),
	)
	console.PrintLiveBanner(notional.StringFixed(2), grace)

	abortTimer := time.NewTimer(grace)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		return nil, errLiveAborted
	}

	authClient, err := polymarket.NewAuthClient(polymarket.Endpoints{
		CLOB:  cfg.API.CLOBBase,
		Gamma: cfg.API.GammaBase,
		WS:    cfg.API.WSURL,
	}, cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create auth client: %w", err)
	}

	if err := authClient.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials (check POLY_PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", authClient.Address().Hex())

	chain, err := onchain.NewApprovalClient(cfg.API.RPCURL, authClient.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("connect to Polygon RPC %s: %w", cfg.API.RPCURL, err)
	}

	balance, err := chain.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read USDC balance: %w", err)
	}
	slog.Info("live: wallet balance", "usdc", "$"+balance.StringFixed(2))

	if balance.LessThan(notional) {
		return nil, fmt.Errorf("insufficient USDC balance: $%s < $%s",
			balance.StringFixed(2), notional.StringFixed(2))
	}

	slog.Info("live: checking collateral allowance...")
	if err := chain.EnsureCollateralAllowance(ctx, notional); err != nil {
		return nil, fmt.Errorf("ensure collateral allowance: %w", err)
	}
	slog.Info("live: allowance verified")

	return polymarket.NewTradingClient(authClient), nil
}
