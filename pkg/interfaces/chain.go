package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// ChainClient abstracts the RPC surface the pipeline needs. Simulate is a
// dry run: it executes the call against pending state without committing
// anything on chain, and must be invoked before any broadcast.
type ChainClient interface {
	CurrentGasPrice(ctx context.Context) (*big.Int, error)
	Simulate(ctx context.Context, call *types.FlashLoanCall) (*SimulationResult, error)
	Broadcast(ctx context.Context, call *types.FlashLoanCall) (*types.Receipt, error)
	BalanceOf(ctx context.Context, address common.Address) (*big.Int, error)
}

// SimulationResult is the outcome of a dry run. A failed simulation carries
// the revert reason and costs nothing on chain.
type SimulationResult struct {
	Success      bool
	ReturnData   []byte
	GasUsed      uint64
	RevertReason string
}

// VenueAdapter is the read-only quoting interface for a single venue. Both
// methods must be idempotent.
type VenueAdapter interface {
	Name() string
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*QuoteResult, error)
	Liquidity(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, error)
}

// QuoteResult is a single-hop quote from a venue adapter.
type QuoteResult struct {
	AmountOut   *big.Int
	PriceImpact float64
}
