package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// routerABI covers the two read-only router calls the adapter needs.
const routerABI = `[
{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[
{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
"outputs":[{"name":"amounts","type":"uint256[]"}]}]`

const erc20ABI = `[
{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[
{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

// RouterAdapter is a thin read-only wrapper around a V2-style router. Quotes
// go through getAmountsOut; liquidity is the input token's balance held by
// the configured pool for the pair.
type RouterAdapter struct {
	name      string
	router    common.Address
	pools     map[string]common.Address // "tokenIn-tokenOut" -> pool
	eth       *ethclient.Client
	routerAbi abi.ABI
	erc20Abi  abi.ABI
}

// NewRouterAdapter creates a venue adapter for the given router and pools.
func NewRouterAdapter(name string, router common.Address, pools map[string]common.Address, eth *ethclient.Client) (*RouterAdapter, error) {
	if name == "" {
		return nil, fmt.Errorf("venue name is required")
	}
	if eth == nil {
		return nil, fmt.Errorf("eth client is required")
	}

	parsedRouter, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router abi: %w", err)
	}
	parsedErc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	return &RouterAdapter{
		name:      name,
		router:    router,
		pools:     pools,
		eth:       eth,
		routerAbi: parsedRouter,
		erc20Abi:  parsedErc20,
	}, nil
}

// Name returns the venue identifier.
func (a *RouterAdapter) Name() string {
	return a.name
}

// Quote returns the router's output amount for a single hop.
func (a *RouterAdapter) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*interfaces.QuoteResult, error) {
	data, err := a.routerAbi.Pack("getAmountsOut", amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}

	output, err := a.eth.CallContract(ctx, ethereum.CallMsg{To: &a.router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call failed: %w", err)
	}

	var amounts []*big.Int
	if err := a.routerAbi.UnpackIntoInterface(&amounts, "getAmountsOut", output); err != nil {
		return nil, fmt.Errorf("failed to unpack getAmountsOut: %w", err)
	}
	if len(amounts) < 2 {
		return nil, fmt.Errorf("unexpected getAmountsOut result length %d", len(amounts))
	}

	amountOut := amounts[len(amounts)-1]
	impact := priceImpact(amountIn, amountOut)
	return &interfaces.QuoteResult{AmountOut: amountOut, PriceImpact: impact}, nil
}

// Liquidity returns the pool's holdings of the input token for the pair.
func (a *RouterAdapter) Liquidity(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, error) {
	pool, ok := a.pools[pairKey(tokenIn, tokenOut)]
	if !ok {
		return nil, fmt.Errorf("no pool configured for pair %s", pairKey(tokenIn, tokenOut))
	}

	data, err := a.erc20Abi.Pack("balanceOf", pool)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	output, err := a.eth.CallContract(ctx, ethereum.CallMsg{To: &tokenIn, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	var balance *big.Int
	if err := a.erc20Abi.UnpackIntoInterface(&balance, "balanceOf", output); err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	return balance, nil
}

// pairKey is the configuration key for a directed pair.
func pairKey(tokenIn, tokenOut common.Address) string {
	return strings.ToLower(tokenIn.Hex()) + "-" + strings.ToLower(tokenOut.Hex())
}

// priceImpact estimates impact from the in/out ratio drift. With a single
// quote there is no mid price, so this is a coarse signal only.
func priceImpact(amountIn, amountOut *big.Int) float64 {
	if amountIn.Sign() <= 0 || amountOut.Sign() <= 0 {
		return 0
	}
	ratio, _ := new(big.Float).Quo(
		new(big.Float).SetInt(amountOut),
		new(big.Float).SetInt(amountIn),
	).Float64()
	if ratio >= 1 {
		return 0
	}
	return 1 - ratio
}

var _ interfaces.VenueAdapter = (*RouterAdapter)(nil)
