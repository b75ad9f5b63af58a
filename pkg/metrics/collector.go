package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// Collector implements the MetricsCollector interface. The aggregate
// counters it keeps are the pipeline's externally observable health signal.
type Collector struct {
	mu sync.RWMutex

	detected      uint64
	deduplicated  uint64
	validated     uint64
	simulated     uint64
	executed      uint64
	failed        uint64
	blockedByRisk uint64
	blockedByGas  uint64
	superseded    uint64

	totalProfit  *big.Int
	lastResultAt time.Time

	latencies    map[string][]time.Duration
	maxLatencies int

	prom *prometheusMetrics
}

// NewCollector creates a metrics collector registered on the default
// Prometheus registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a metrics collector registered on a
// custom Prometheus registerer. Tests use a fresh registry to avoid
// duplicate-registration panics.
func NewCollectorWithRegistry(registerer prometheus.Registerer) *Collector {
	return &Collector{
		totalProfit:  big.NewInt(0),
		latencies:    make(map[string][]time.Duration),
		maxLatencies: 10000,
		prom:         newPrometheusMetrics(registerer),
	}
}

// RecordDetected counts candidates emitted by the scanner.
func (c *Collector) RecordDetected(n int) {
	c.mu.Lock()
	c.detected += uint64(n)
	c.mu.Unlock()

	c.prom.detected.Add(float64(n))
}

// RecordStageOutcome counts a stage pass. Only stage transitions that are
// interesting as health signals (validated, simulated) are recorded here;
// terminal classification happens in RecordResult.
func (c *Collector) RecordStageOutcome(stage types.Stage, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch stage {
	case types.StageValidated:
		c.validated++
		c.prom.validated.Inc()
	case types.StageSimulated:
		c.simulated++
		c.prom.simulated.Inc()
	}
}

// RecordResult classifies a terminal ExecutionResult into the aggregate
// counters.
func (c *Collector) RecordResult(result *types.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastResultAt = result.CompletedAt

	if result.Success {
		c.executed++
		c.prom.executed.Inc()
		if result.ProfitOrLoss != nil {
			c.totalProfit.Add(c.totalProfit, result.ProfitOrLoss)
			c.prom.totalProfit.Set(bigToFloat(c.totalProfit))
		}
		return
	}

	switch result.Code {
	case types.FailureDuplicate:
		c.deduplicated++
		c.prom.deduplicated.Inc()
	case types.FailureRiskBlocked:
		c.blockedByRisk++
		c.prom.blockedByRisk.Inc()
	case types.FailureGasBlocked:
		c.blockedByGas++
		c.prom.blockedByGas.Inc()
	case types.FailureSuperseded:
		c.superseded++
		c.prom.superseded.Inc()
	default:
		c.failed++
		c.prom.failed.Inc()
		if result.ProfitOrLoss != nil && result.ProfitOrLoss.Sign() < 0 {
			c.totalProfit.Add(c.totalProfit, result.ProfitOrLoss)
			c.prom.totalProfit.Set(bigToFloat(c.totalProfit))
		}
	}
}

// RecordLatency stores a latency observation for the operation.
func (c *Collector) RecordLatency(operation string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := append(c.latencies[operation], duration)
	if len(records) > c.maxLatencies {
		records = records[len(records)-c.maxLatencies:]
	}
	c.latencies[operation] = records

	c.prom.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// AverageLatency returns the mean recorded latency for the operation.
func (c *Collector) AverageLatency(operation string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := c.latencies[operation]
	if len(records) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range records {
		total += d
	}
	return total / time.Duration(len(records))
}

// UpdateGasPrice records the latest observed gas price.
func (c *Collector) UpdateGasPrice(gwei float64) {
	c.prom.gasPrice.Set(gwei)
}

// UpdateBalance records the executor balance.
func (c *Collector) UpdateBalance(wei float64) {
	c.prom.balance.Set(wei)
}

// Snapshot returns a copy of the aggregate counters.
func (c *Collector) Snapshot() interfaces.PipelineStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return interfaces.PipelineStats{
		Detected:       c.detected,
		Deduplicated:   c.deduplicated,
		Validated:      c.validated,
		Simulated:      c.simulated,
		Executed:       c.executed,
		Failed:         c.failed,
		BlockedByRisk:  c.blockedByRisk,
		BlockedByGas:   c.blockedByGas,
		Superseded:     c.superseded,
		TotalProfitWei: c.totalProfit.String(),
		LastResultAt:   c.lastResultAt,
	}
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

var _ interfaces.MetricsCollector = (*Collector)(nil)
