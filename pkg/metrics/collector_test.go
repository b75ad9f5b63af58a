package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

func newTestCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.NewRegistry())
}

func settled(failedAt types.Stage, code types.FailureCode, reason string) *types.ExecutionResult {
	return &types.ExecutionResult{
		OpportunityID: "opp-1",
		Stage:         types.StageSettled,
		FailedAt:      failedAt,
		Code:          code,
		Reason:        reason,
		ProfitOrLoss:  big.NewInt(0),
		CompletedAt:   time.Now(),
	}
}

func TestRecordDetected(t *testing.T) {
	c := newTestCollector()

	c.RecordDetected(3)
	c.RecordDetected(2)

	assert.Equal(t, uint64(5), c.Snapshot().Detected)
}

func TestRecordStageOutcome(t *testing.T) {
	c := newTestCollector()

	c.RecordStageOutcome(types.StageValidated, "")
	c.RecordStageOutcome(types.StageSimulated, "")
	c.RecordStageOutcome(types.StageSized, "") // not a counted health signal

	stats := c.Snapshot()
	assert.Equal(t, uint64(1), stats.Validated)
	assert.Equal(t, uint64(1), stats.Simulated)
}

func TestRecordResultClassification(t *testing.T) {
	tests := []struct {
		name   string
		result *types.ExecutionResult
		check  func(t *testing.T, c *Collector)
	}{
		{
			name: "success accumulates profit",
			result: &types.ExecutionResult{
				Stage:        types.StageSettled,
				Success:      true,
				ProfitOrLoss: big.NewInt(5000),
				CompletedAt:  time.Now(),
			},
			check: func(t *testing.T, c *Collector) {
				stats := c.Snapshot()
				assert.Equal(t, uint64(1), stats.Executed)
				assert.Equal(t, "5000", stats.TotalProfitWei)
			},
		},
		{
			name:   "duplicate",
			result: settled(types.StageDedupFiltered, types.FailureDuplicate, "duplicate opportunity"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().Deduplicated)
			},
		},
		{
			name:   "risk block",
			result: settled(types.StageDedupFiltered, types.FailureRiskBlocked, "circuit breaker active"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().BlockedByRisk)
			},
		},
		{
			name: "risk block reason text is not load-bearing",
			result: settled(types.StageDedupFiltered, types.FailureRiskBlocked,
				"daily loss limit reached (reworded)"),
			check: func(t *testing.T, c *Collector) {
				stats := c.Snapshot()
				assert.Equal(t, uint64(1), stats.BlockedByRisk)
				assert.Equal(t, uint64(0), stats.Deduplicated)
			},
		},
		{
			name:   "gas gate",
			result: settled(types.StageGasGated, types.FailureGasBlocked, "gas price above hard ceiling"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().BlockedByGas)
			},
		},
		{
			name:   "unprofitable after gas",
			result: settled(types.StageProfitAfterGasChecked, types.FailureGasBlocked, "unprofitable after gas"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().BlockedByGas)
			},
		},
		{
			name:   "superseded",
			result: settled(types.StageTimingAdjusted, types.FailureSuperseded, "superseded by newer scan cycle"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().Superseded)
			},
		},
		{
			name:   "simulation failure",
			result: settled(types.StageSimulated, types.FailureExecution, "simulation failed"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().Failed)
			},
		},
		{
			name:   "stale revalidation",
			result: settled(types.StageValidated, types.FailureStale, "stale opportunity"),
			check: func(t *testing.T, c *Collector) {
				assert.Equal(t, uint64(1), c.Snapshot().Failed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCollector()
			c.RecordResult(tt.result)
			tt.check(t, c)
		})
	}
}

func TestBroadcastLossReducesTotalProfit(t *testing.T) {
	c := newTestCollector()

	c.RecordResult(&types.ExecutionResult{
		Stage:        types.StageSettled,
		Success:      true,
		ProfitOrLoss: big.NewInt(10000),
		CompletedAt:  time.Now(),
	})
	c.RecordResult(&types.ExecutionResult{
		Stage:        types.StageSettled,
		FailedAt:     types.StageBroadcast,
		Code:         types.FailureExecution,
		Success:      false,
		ProfitOrLoss: big.NewInt(-4000),
		CompletedAt:  time.Now(),
	})

	stats := c.Snapshot()
	assert.Equal(t, uint64(1), stats.Executed)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, "6000", stats.TotalProfitWei)
}

func TestLatencyTracking(t *testing.T) {
	c := newTestCollector()

	c.RecordLatency("pipeline", 10*time.Millisecond)
	c.RecordLatency("pipeline", 30*time.Millisecond)

	assert.Equal(t, 20*time.Millisecond, c.AverageLatency("pipeline"))
	assert.Equal(t, time.Duration(0), c.AverageLatency("unknown"))
}

func TestLatencyHistoryBounded(t *testing.T) {
	c := newTestCollector()
	c.maxLatencies = 10

	for i := 0; i < 100; i++ {
		c.RecordLatency("op", time.Duration(i)*time.Millisecond)
	}

	// Only the newest 10 observations survive: 90..99 ms, mean 94.5ms.
	assert.Equal(t, 94500*time.Microsecond, c.AverageLatency("op"))
}

func TestLastResultTimestamp(t *testing.T) {
	c := newTestCollector()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	result := settled(types.StageSimulated, types.FailureExecution, "x")
	result.CompletedAt = at
	c.RecordResult(result)

	assert.Equal(t, at, c.Snapshot().LastResultAt)
}
