package onchain

// approvals.go — comprobaciones on-chain previas al modo live.
//
// Un BUY en el CLOB necesita que los exchange contracts puedan mover el
// USDC.e de la wallet, y que haya saldo suficiente para el notional. Ambas
// cosas se comprueban una vez al arrancar; el sniper no toca la cadena
// durante una sesión.

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// Exchange contracts que gastan el colateral en un BUY
	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	approvalGasLimit = uint64(80_000)
	usdcDecimals     = 6
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Backend es el subconjunto de ethclient.Client que usa ApprovalClient.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ApprovalClient comprueba saldo y allowance de USDC.e de la wallet.
type ApprovalClient struct {
	backend    Backend
	privateKey *ecdsa.PrivateKey
	address    common.Address

	receiptPoll time.Duration
}

// NewApprovalClient conecta con el RPC de Polygon dado.
func NewApprovalClient(rpcURL string, key *ecdsa.PrivateKey) (*ApprovalClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc %s: %w", rpcURL, err)
	}
	return NewApprovalClientWithBackend(client, key), nil
}

// NewApprovalClientWithBackend usa un backend ya construido (tests, simulated backend).
func NewApprovalClientWithBackend(b Backend, key *ecdsa.PrivateKey) *ApprovalClient {
	return &ApprovalClient{
		backend:     b,
		privateKey:  key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		receiptPoll: 3 * time.Second,
	}
}

// Address devuelve la wallet.
func (ac *ApprovalClient) Address() common.Address {
	return ac.address
}

// Balance devuelve el saldo de USDC.e de la wallet en unidades enteras de USDC.
func (ac *ApprovalClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := ac.callUint(ctx, "balanceOf", ac.address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.Balance: %w", err)
	}
	return decimal.NewFromBigInt(raw, -usdcDecimals), nil
}

// EnsureCollateralAllowance garantiza que los exchanges pueden gastar al menos
// minUSDC de la wallet. Si no, envía approve(max) y espera el receipt.
func (ac *ApprovalClient) EnsureCollateralAllowance(ctx context.Context, minUSDC decimal.Decimal) error {
	need := minUSDC.Shift(usdcDecimals).BigInt()
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	for _, spender := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		allowance, err := ac.callUint(ctx, "allowance", ac.address, common.HexToAddress(spender))
		if err != nil {
			return fmt.Errorf("onchain.EnsureCollateralAllowance: check %s: %w", spender, err)
		}
		if allowance.Cmp(need) >= 0 {
			slog.Debug("onchain: USDC.e allowance sufficient", "spender", spender)
			continue
		}

		slog.Info("onchain: setting USDC.e approval", "spender", spender)
		if err := ac.approve(ctx, common.HexToAddress(spender), maxUint256); err != nil {
			return fmt.Errorf("onchain.EnsureCollateralAllowance: approve %s: %w", spender, err)
		}
		slog.Info("onchain: USDC.e approval set", "spender", spender)
	}
	return nil
}

// callUint hace un eth_call de lectura a USDC.e que devuelve un uint256.
func (ac *ApprovalClient) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	callData, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := ac.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	vals, err := erc20ABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

// approve envía approve(spender, amount) sobre USDC.e.
func (ac *ApprovalClient) approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	callData, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return err
	}

	nonce, err := ac.backend.PendingNonceAt(ctx, ac.address)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := ac.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	// +10% para inclusión rápida
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(11)), big.NewInt(10))

	token := common.HexToAddress(usdcEAddress)
	tx := types.NewTransaction(nonce, token, big.NewInt(0), approvalGasLimit, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), ac.privateKey)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := ac.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	receipt, err := ac.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve tx reverted: %s", signed.Hash().Hex())
	}
	return nil
}

// waitForReceipt hace polling del receipt hasta que se mine o venza ctx.
func (ac *ApprovalClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(ac.receiptPoll)
	defer ticker.Stop()

	for {
		if receipt, err := ac.backend.TransactionReceipt(ctx, txHash); err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
