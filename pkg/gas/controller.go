package gas

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// Config holds the gas gating thresholds. Prices are in gwei.
type Config struct {
	MaxGasPriceGwei    float64
	TargetGasPriceGwei float64
	PeakHourMultiplier float64
	// HistoricalBlockCount drives the history capacity (2x this value).
	HistoricalBlockCount int
	// CacheTimeout rate-limits history appends to avoid redundant RPC
	// pressure.
	CacheTimeout time.Duration
	// CompetitiveMarkup is the bid markup fraction over the current price.
	CompetitiveMarkup float64
}

// DefaultConfig returns the default gas configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxGasPriceGwei:      100,
		TargetGasPriceGwei:   30,
		PeakHourMultiplier:   1.5,
		HistoricalBlockCount: 20,
		CacheTimeout:         30 * time.Second,
		CompetitiveMarkup:    0.10,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.MaxGasPriceGwei <= 0 {
		return fmt.Errorf("max gas price must be positive, got %f", c.MaxGasPriceGwei)
	}
	if c.TargetGasPriceGwei <= 0 || c.TargetGasPriceGwei > c.MaxGasPriceGwei {
		return fmt.Errorf("target gas price must be in (0, max], got %f", c.TargetGasPriceGwei)
	}
	if c.PeakHourMultiplier < 1 {
		return fmt.Errorf("peak hour multiplier must be >= 1, got %f", c.PeakHourMultiplier)
	}
	if c.HistoricalBlockCount <= 0 {
		return fmt.Errorf("historical block count must be positive, got %d", c.HistoricalBlockCount)
	}
	if c.CacheTimeout <= 0 {
		return fmt.Errorf("cache timeout must be positive, got %s", c.CacheTimeout)
	}
	if c.CompetitiveMarkup < 0 {
		return fmt.Errorf("competitive markup must be non-negative, got %f", c.CompetitiveMarkup)
	}
	return nil
}

// gasSample is one observed gas price.
type gasSample struct {
	timestamp time.Time
	priceGwei float64
}

// Controller tracks a rolling gas-price history, classifies the trend, and
// gates trades on absolute and momentum thresholds.
type Controller struct {
	mu sync.Mutex

	config     *Config
	now        func() time.Time
	history    []gasSample
	capacity   int
	lastUpdate time.Time
}

// NewController creates a gas controller with the given thresholds.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gas config: %w", err)
	}

	capacity := 2 * cfg.HistoricalBlockCount
	return &Controller{
		config:   cfg,
		now:      time.Now,
		history:  make([]gasSample, 0, capacity),
		capacity: capacity,
	}, nil
}

// Observe appends the current price to the history, rate-limited to one
// append per cache timeout. Oldest entries are evicted FIFO at capacity.
func (c *Controller) Observe(currentPriceGwei float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.lastUpdate.IsZero() && now.Sub(c.lastUpdate) < c.config.CacheTimeout {
		return
	}

	c.history = append(c.history, gasSample{timestamp: now, priceGwei: currentPriceGwei})
	if len(c.history) > c.capacity {
		c.history = c.history[len(c.history)-c.capacity:]
	}
	c.lastUpdate = now
}

// ClassifyTrend compares the mean of the most recent 5 samples against the
// mean of the preceding 5. A relative change of 10% or more in either
// direction is a high-confidence trend; otherwise the trend is stable at
// lower confidence. Fewer than 3 samples yields unknown.
func (c *Controller) ClassifyTrend() interfaces.TrendResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.history)
	if n < 3 {
		return interfaces.TrendResult{Trend: interfaces.TrendUnknown}
	}

	recentCount := 5
	if recentCount > n {
		recentCount = n
	}
	recent := c.history[n-recentCount:]
	recentAvg := meanGwei(recent)

	prevStart := n - recentCount - 5
	if prevStart < 0 {
		prevStart = 0
	}
	previous := c.history[prevStart : n-recentCount]
	if len(previous) == 0 {
		previous = recent
	}
	previousAvg := meanGwei(previous)

	changePercent := 0.0
	if previousAvg > 0 {
		changePercent = (recentAvg - previousAvg) / previousAvg * 100
	}

	result := interfaces.TrendResult{
		AverageGwei:   recentAvg,
		ChangePercent: changePercent,
	}

	switch {
	case changePercent >= 10:
		result.Trend = interfaces.TrendIncreasing
		result.ConfidencePercent = 85
	case changePercent <= -10:
		result.Trend = interfaces.TrendDecreasing
		result.ConfidencePercent = 85
	default:
		result.Trend = interfaces.TrendStable
		result.ConfidencePercent = 60
	}

	return result
}

// Gate rejects trades above the hard ceiling, above the peak-hour ceiling,
// or into strongly rising gas prices.
func (c *Controller) Gate(currentPriceGwei float64, trend interfaces.TrendResult) interfaces.GasDecision {
	if currentPriceGwei > c.config.MaxGasPriceGwei {
		return interfaces.GasDecision{
			Trade:  false,
			Reason: fmt.Sprintf("gas price %.1f gwei above hard ceiling %.1f", currentPriceGwei, c.config.MaxGasPriceGwei),
		}
	}

	peakCeiling := c.config.TargetGasPriceGwei * c.config.PeakHourMultiplier
	if currentPriceGwei > peakCeiling {
		return interfaces.GasDecision{
			Trade:  false,
			Reason: fmt.Sprintf("gas price %.1f gwei above peak-hour ceiling %.1f", currentPriceGwei, peakCeiling),
		}
	}

	if trend.Trend == interfaces.TrendIncreasing && trend.ChangePercent > 20 {
		return interfaces.GasDecision{
			Trade:  false,
			Reason: fmt.Sprintf("gas price rising fast (%.1f%%)", trend.ChangePercent),
		}
	}

	return interfaces.GasDecision{Trade: true}
}

// CompetitiveBid applies the configured markup to outbid competing searchers,
// capped at the hard ceiling.
func (c *Controller) CompetitiveBid(currentPriceGwei float64) float64 {
	bid := currentPriceGwei * (1 + c.config.CompetitiveMarkup)
	if bid > c.config.MaxGasPriceGwei {
		bid = c.config.MaxGasPriceGwei
	}
	return bid
}

// ProfitAfterGas computes the net profit after the estimated gas cost.
// Profitable requires a strictly positive net.
func (c *Controller) ProfitAfterGas(expectedProfit *big.Int, gasPriceGwei float64, gasUnits uint64) interfaces.ProfitCheck {
	gasCost := GweiToWei(gasPriceGwei)
	gasCost.Mul(gasCost, new(big.Int).SetUint64(gasUnits))

	netProfit := new(big.Int).Sub(expectedProfit, gasCost)
	return interfaces.ProfitCheck{
		Profitable: netProfit.Sign() > 0,
		NetProfit:  netProfit,
		GasCost:    gasCost,
	}
}

// History returns a copy of the recorded samples, oldest first.
func (c *Controller) History() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	prices := make([]float64, len(c.history))
	for i, s := range c.history {
		prices[i] = s.priceGwei
	}
	return prices
}

// GweiToWei converts a gwei price to wei, truncating sub-wei fractions.
func GweiToWei(gwei float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

// WeiToGwei converts a wei price to gwei.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei
}

func meanGwei(samples []gasSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.priceGwei
	}
	return sum / float64(len(samples))
}

var _ interfaces.GasController = (*Controller)(nil)
