package interfaces

import (
	"math/big"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// DedupEngine suppresses duplicate opportunity reports and aggregates raw
// price samples. Admit is the sole mutual-exclusion point between concurrent
// pipeline workers: at most one caller observes true for a given key per
// window.
type DedupEngine interface {
	Admit(key string) bool
	AggregatePrices(samples []*types.PriceSample, now time.Time) []*types.PriceSample
	MedianPrice(samples []*types.PriceSample) *types.PriceSample
	Stats() DedupStats
	Clear()
}

// DedupStats reports cache activity counters.
type DedupStats struct {
	TotalChecked    uint64 `json:"totalChecked"`
	DuplicatesFound uint64 `json:"duplicatesFound"`
	CacheClears     uint64 `json:"cacheClears"`
	AdmitCacheSize  int    `json:"admitCacheSize"`
	PriceCacheSize  int    `json:"priceCacheSize"`
}

// RiskController owns the trade-admission circuit breaker.
type RiskController interface {
	Initialize(startingBalance *big.Int)
	CanTrade() RiskDecision
	RecordTrade(success bool, profitOrLoss *big.Int, newBalance *big.Int)
	Snapshot() RiskSnapshot
}

// RiskDecision is the outcome of a trade-admission check. Reason is set only
// when Allowed is false.
type RiskDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RiskSnapshot is a read-only copy of the controller's state.
type RiskSnapshot struct {
	CurrentBalance       *big.Int  `json:"currentBalance"`
	PeakBalance          *big.Int  `json:"peakBalance"`
	DailyLoss            *big.Int  `json:"dailyLoss"`
	Drawdown             float64   `json:"drawdown"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	CircuitBreakerActive bool      `json:"circuitBreakerActive"`
	ActivatedAt          time.Time `json:"activatedAt,omitempty"`
}

// GasTrend classifies the direction of recent gas prices.
type GasTrend string

const (
	TrendIncreasing GasTrend = "increasing"
	TrendDecreasing GasTrend = "decreasing"
	TrendStable     GasTrend = "stable"
	TrendUnknown    GasTrend = "unknown"
)

// GasController tracks gas price history and gates trades on price
// conditions.
type GasController interface {
	Observe(currentPriceGwei float64)
	ClassifyTrend() TrendResult
	Gate(currentPriceGwei float64, trend TrendResult) GasDecision
	CompetitiveBid(currentPriceGwei float64) float64
	ProfitAfterGas(expectedProfit *big.Int, gasPriceGwei float64, gasUnits uint64) ProfitCheck
}

// TrendResult is the output of gas trend classification.
type TrendResult struct {
	Trend             GasTrend `json:"trend"`
	ConfidencePercent float64  `json:"confidencePercent"`
	AverageGwei       float64  `json:"averageGwei"`
	ChangePercent     float64  `json:"changePercent"`
}

// GasDecision is the outcome of the gas gate.
type GasDecision struct {
	Trade  bool   `json:"trade"`
	Reason string `json:"reason,omitempty"`
}

// ProfitCheck is the outcome of the profit-after-gas gate.
type ProfitCheck struct {
	Profitable bool     `json:"profitable"`
	NetProfit  *big.Int `json:"netProfit"`
	GasCost    *big.Int `json:"gasCost"`
}

// TimingController applies anti-frontrunning timing and bundling.
type TimingController interface {
	ComputeDelay(now time.Time) time.Duration
	MarkTradePrepared(now time.Time)
	ProtectSlippage(baseToleranceBps int64) int64
	Bundle(call *types.FlashLoanCall) BundleResult
	FlushPending() []*types.FlashLoanCall
}

// BundleResult reports whether appending a call flushed the pending bundle.
// Bundle is non-nil only when Flushed is true.
type BundleResult struct {
	Flushed bool
	Bundle  []*types.FlashLoanCall
}
