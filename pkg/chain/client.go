package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// arbitrageABI is the entry point of the flash-loan arbitrage contract. The
// venue sequence travels as bytes32 identifiers so the contract can route
// each hop. ArbitrageExecuted reports the realized profit after the loan
// and fee are repaid.
const arbitrageABI = `[{"name":"executeArbitrage","type":"function","inputs":[
{"name":"asset","type":"address"},
{"name":"amount","type":"uint256"},
{"name":"path","type":"address[]"},
{"name":"venues","type":"bytes32[]"},
{"name":"minOutBps","type":"uint256"}]},
{"name":"ArbitrageExecuted","type":"event","inputs":[
{"name":"asset","type":"address","indexed":true},
{"name":"amountIn","type":"uint256","indexed":false},
{"name":"profit","type":"uint256","indexed":false}]}]`

// Config holds the chain client configuration.
type Config struct {
	RPCURL         string
	PrivateKey     string // hex, no 0x prefix
	ChainID        *big.Int
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt timeout must be positive, got %s", c.ReceiptTimeout)
	}
	if c.ReceiptPoll <= 0 {
		return fmt.Errorf("receipt poll interval must be positive, got %s", c.ReceiptPoll)
	}
	return nil
}

// Client implements the ChainClient interface over a JSON-RPC endpoint.
type Client struct {
	eth    *ethclient.Client
	config *Config
	key    *ecdsa.PrivateKey
	from   common.Address
	parsed abi.ABI
}

// NewClient dials the RPC endpoint and prepares the signing key.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("chain config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain config: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(arbitrageABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse arbitrage abi: %w", err)
	}

	return &Client{
		eth:    eth,
		config: cfg,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		parsed: parsed,
	}, nil
}

// From returns the executor address derived from the signing key.
func (c *Client) From() common.Address {
	return c.from
}

// Eth exposes the underlying RPC client so venue adapters can share the
// connection.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// CurrentGasPrice returns the node's suggested gas price in wei.
func (c *Client) CurrentGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	return price, nil
}

// Simulate executes the call against pending state without broadcasting.
// A revert is reported as an unsuccessful result, not an error.
func (c *Client) Simulate(ctx context.Context, call *types.FlashLoanCall) (*interfaces.SimulationResult, error) {
	data, err := c.packCall(call)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{
		From:     c.from,
		To:       &call.Contract,
		Gas:      call.GasLimit,
		GasPrice: call.GasPrice,
		Data:     data,
	}

	output, err := c.eth.PendingCallContract(ctx, msg)
	if err != nil {
		// Node-level revert errors carry the reason string.
		return &interfaces.SimulationResult{
			Success:      false,
			RevertReason: err.Error(),
		}, nil
	}

	gasUsed, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		// The call succeeded; a failed estimate only degrades reporting.
		gasUsed = call.GasLimit
	}

	return &interfaces.SimulationResult{
		Success:    true,
		ReturnData: output,
		GasUsed:    gasUsed,
	}, nil
}

// Broadcast signs and sends the call, then waits for the receipt within the
// configured timeout.
func (c *Client) Broadcast(ctx context.Context, call *types.FlashLoanCall) (*types.Receipt, error) {
	data, err := c.packCall(call)
	if err != nil {
		return nil, err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &call.Contract,
		Gas:      call.GasLimit,
		GasPrice: call.GasPrice,
		Data:     data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.config.ChainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := c.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}

	return &types.Receipt{
		TxHash:         receipt.TxHash,
		Success:        receipt.Status == ethtypes.ReceiptStatusSuccessful,
		GasUsed:        receipt.GasUsed,
		GasPrice:       call.GasPrice,
		Block:          receipt.BlockNumber.Uint64(),
		RealizedProfit: c.realizedProfit(call.Contract, receipt),
	}, nil
}

// realizedProfit extracts the profit reported by the contract's execution
// event, or nil when the receipt carries no such log.
func (c *Client) realizedProfit(contract common.Address, receipt *ethtypes.Receipt) *big.Int {
	event, ok := c.parsed.Events["ArbitrageExecuted"]
	if !ok {
		return nil
	}

	for _, entry := range receipt.Logs {
		if entry.Address != contract || len(entry.Topics) == 0 || entry.Topics[0] != event.ID {
			continue
		}
		values, err := c.parsed.Unpack("ArbitrageExecuted", entry.Data)
		if err != nil || len(values) < 2 {
			continue
		}
		if profit, ok := values[1].(*big.Int); ok {
			return profit
		}
	}
	return nil
}

// BalanceOf returns the current balance of the address in wei.
func (c *Client) BalanceOf(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return balance, nil
}

// packCall encodes the contract call data.
func (c *Client) packCall(call *types.FlashLoanCall) ([]byte, error) {
	venueIDs := make([][32]byte, len(call.Venues))
	for i, venue := range call.Venues {
		venueIDs[i] = [32]byte(crypto.Keccak256Hash([]byte(venue)))
	}

	minOutBps := big.NewInt(10000 - call.SlippageBps)
	data, err := c.parsed.Pack("executeArbitrage", call.Asset, call.Amount, call.Path, venueIDs, minOutBps)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call data: %w", err)
	}
	return data, nil
}

// waitReceipt polls for the transaction receipt until the configured
// timeout. A timeout is a broadcast failure as far as the pipeline is
// concerned.
func (c *Client) waitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.config.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.config.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("receipt wait for %s timed out: %w", txHash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

var _ interfaces.ChainClient = (*Client)(nil)
