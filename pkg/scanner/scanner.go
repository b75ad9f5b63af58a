package scanner

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// Cycle is one configured arbitrage cycle to probe: a cyclic token path with
// one venue per hop.
type Cycle struct {
	Path   []common.Address
	Venues []string
}

// Config holds the scanner configuration.
type Config struct {
	// ScanInterval is the pause between scan cycles. Lightweight mode
	// divides it by SpeedMultiplier.
	ScanInterval time.Duration
	// MinProfitBps prefilters candidates before they reach the pipeline.
	MinProfitBps int64
	// ProbeAmount is the input amount used to quote each cycle.
	ProbeAmount *big.Int
	Lightweight bool
	// SpeedMultiplier shortens the scan interval in lightweight mode.
	SpeedMultiplier float64
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() *Config {
	return &Config{
		ScanInterval:    3 * time.Second,
		MinProfitBps:    50,
		ProbeAmount:     big.NewInt(1000000000000000000), // 1 ETH
		SpeedMultiplier: 3.0,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", c.ScanInterval)
	}
	if c.MinProfitBps < 0 {
		return fmt.Errorf("min profit bps must be non-negative, got %d", c.MinProfitBps)
	}
	if c.ProbeAmount == nil || c.ProbeAmount.Sign() <= 0 {
		return fmt.Errorf("probe amount must be positive")
	}
	if c.Lightweight && c.SpeedMultiplier <= 0 {
		return fmt.Errorf("speed multiplier must be positive in lightweight mode, got %f", c.SpeedMultiplier)
	}
	return nil
}

// Interval returns the effective scan interval for the configured mode.
func (c *Config) Interval() time.Duration {
	if c.Lightweight && c.SpeedMultiplier > 0 {
		return time.Duration(float64(c.ScanInterval) / c.SpeedMultiplier)
	}
	return c.ScanInterval
}

// Scanner is the single producer of candidate Opportunities: it walks each
// configured cycle across the venue adapters, prefilters by profit, and
// emits survivors to the pipeline.
type Scanner struct {
	config *Config
	venues map[string]interfaces.VenueAdapter
	engine interfaces.DedupEngine
	cycles []Cycle

	// completedCycle is the sequence number of the last fully completed
	// scan pass; the pipeline uses it to cancel superseded opportunities.
	completedCycle atomic.Uint64

	mu        sync.Mutex
	refPrices map[string]float64
}

// NewScanner creates a scanner over the given cycles and venue adapters.
func NewScanner(cfg *Config, cycles []Cycle, venues map[string]interfaces.VenueAdapter, engine interfaces.DedupEngine) (*Scanner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scanner config: %w", err)
	}
	if len(cycles) == 0 {
		return nil, fmt.Errorf("at least one cycle is required")
	}
	for i, cycle := range cycles {
		if len(cycle.Path) < 3 || cycle.Path[0] != cycle.Path[len(cycle.Path)-1] {
			return nil, fmt.Errorf("cycle %d: path must be cyclic with at least 2 hops", i)
		}
		if len(cycle.Venues) != len(cycle.Path)-1 {
			return nil, fmt.Errorf("cycle %d: need one venue per hop, got %d venues for %d hops", i, len(cycle.Venues), len(cycle.Path)-1)
		}
		for _, venue := range cycle.Venues {
			if _, ok := venues[venue]; !ok {
				return nil, fmt.Errorf("cycle %d: unknown venue %q", i, venue)
			}
		}
	}

	return &Scanner{
		config:    cfg,
		venues:    venues,
		engine:    engine,
		cycles:    cycles,
		refPrices: make(map[string]float64),
	}, nil
}

// Run drives the continuous scan loop until the context is cancelled,
// passing each scan's candidates to emit.
func (s *Scanner) Run(ctx context.Context, emit func([]*types.Opportunity)) error {
	ticker := time.NewTicker(s.config.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			candidates, err := s.Scan(ctx)
			if err != nil {
				// A failed scan never aborts the loop.
				log.Printf("[scanner] scan failed: %v", err)
				continue
			}
			if len(candidates) > 0 {
				emit(candidates)
			}
		}
	}
}

// Scan performs one pass over all configured cycles and returns the
// candidates that clear the profit prefilter. The completed-cycle sequence
// advances only after the full pass, so in-flight opportunities from prior
// passes can detect that they have been superseded.
func (s *Scanner) Scan(ctx context.Context) ([]*types.Opportunity, error) {
	cycleSeq := s.completedCycle.Load() + 1
	now := time.Now()

	var candidates []*types.Opportunity
	var samples []*types.PriceSample

	for _, cycle := range s.cycles {
		amountOut, hopSamples, err := s.walkCycle(ctx, cycle, s.config.ProbeAmount)
		if err != nil {
			// One broken venue must not sink the whole pass.
			log.Printf("[scanner] cycle quote failed: %v", err)
			continue
		}
		samples = append(samples, hopSamples...)

		profit := new(big.Int).Sub(amountOut, s.config.ProbeAmount)
		if profit.Sign() <= 0 {
			continue
		}
		profitBps := new(big.Int).Mul(profit, big.NewInt(10000))
		profitBps.Div(profitBps, s.config.ProbeAmount)
		if profitBps.Int64() < s.config.MinProfitBps {
			continue
		}

		opp := &types.Opportunity{
			Path:           cycle.Path,
			Venues:         cycle.Venues,
			AmountIn:       new(big.Int).Set(s.config.ProbeAmount),
			ExpectedOut:    amountOut,
			ExpectedProfit: profit,
			ProfitBps:      profitBps.Int64(),
			DiscoveredAt:   now,
			ScanCycle:      cycleSeq,
		}
		opp.ID = fmt.Sprintf("%s#%d", opp.DedupKey(), cycleSeq)
		candidates = append(candidates, opp)
	}

	s.updateReferencePrices(samples, now)
	s.completedCycle.Store(cycleSeq)
	return candidates, nil
}

// walkCycle quotes the cycle hop by hop and returns the final output amount
// plus the per-hop price samples observed along the way.
func (s *Scanner) walkCycle(ctx context.Context, cycle Cycle, amountIn *big.Int) (*big.Int, []*types.PriceSample, error) {
	amount := new(big.Int).Set(amountIn)
	samples := make([]*types.PriceSample, 0, len(cycle.Venues))

	for i, venueName := range cycle.Venues {
		adapter := s.venues[venueName]
		tokenIn, tokenOut := cycle.Path[i], cycle.Path[i+1]

		quote, err := adapter.Quote(ctx, tokenIn, tokenOut, amount)
		if err != nil {
			return nil, nil, fmt.Errorf("quote %s hop %d: %w", venueName, i, err)
		}
		if quote.AmountOut == nil || quote.AmountOut.Sign() <= 0 {
			return nil, nil, fmt.Errorf("quote %s hop %d: empty output", venueName, i)
		}

		price, _ := new(big.Float).Quo(
			new(big.Float).SetInt(quote.AmountOut),
			new(big.Float).SetInt(amount),
		).Float64()
		samples = append(samples, &types.PriceSample{
			TokenA:    tokenIn,
			TokenB:    tokenOut,
			Venue:     venueName,
			Price:     price,
			Timestamp: time.Now(),
		})

		amount = quote.AmountOut
	}

	return amount, samples, nil
}

// updateReferencePrices funnels hop samples through the aggregation engine
// and keeps a median reference price per token pair across venues.
func (s *Scanner) updateReferencePrices(samples []*types.PriceSample, now time.Time) {
	if s.engine == nil || len(samples) == 0 {
		return
	}

	distinct := s.engine.AggregatePrices(samples, now)

	byPair := make(map[string][]*types.PriceSample)
	for _, sample := range distinct {
		pair := pairOnly(sample)
		byPair[pair] = append(byPair[pair], sample)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for pair, pairSamples := range byPair {
		if median := s.engine.MedianPrice(pairSamples); median != nil {
			s.refPrices[pair] = median.Price
		}
	}
}

// ReferencePrice returns the median cross-venue price last observed for the
// token pair, if any.
func (s *Scanner) ReferencePrice(tokenA, tokenB common.Address) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.refPrices[pairKeyAddrs(tokenA, tokenB)]
	return price, ok
}

// LatestCycle returns the sequence number of the last completed scan pass.
func (s *Scanner) LatestCycle() uint64 {
	return s.completedCycle.Load()
}

func pairOnly(s *types.PriceSample) string {
	return pairKeyAddrs(s.TokenA, s.TokenB)
}

func pairKeyAddrs(a, b common.Address) string {
	return a.Hex() + "-" + b.Hex()
}
