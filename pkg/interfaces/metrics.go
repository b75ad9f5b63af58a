package interfaces

import (
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// MetricsCollector records pipeline activity. The aggregate counters are the
// externally observable health signal of the system.
type MetricsCollector interface {
	RecordDetected(n int)
	RecordStageOutcome(stage types.Stage, reason string)
	RecordResult(result *types.ExecutionResult)
	RecordLatency(operation string, duration time.Duration)
	UpdateGasPrice(gwei float64)
	UpdateBalance(wei float64)
	Snapshot() PipelineStats
}

// PipelineStats is the aggregate counter snapshot exposed over the API and
// the TUI monitor.
type PipelineStats struct {
	Detected      uint64 `json:"detected"`
	Deduplicated  uint64 `json:"deduplicated"`
	Validated     uint64 `json:"validated"`
	Simulated     uint64 `json:"simulated"`
	Executed      uint64 `json:"executed"`
	Failed        uint64 `json:"failed"`
	BlockedByRisk uint64 `json:"blockedByRisk"`
	BlockedByGas  uint64 `json:"blockedByGas"`
	Superseded    uint64 `json:"superseded"`

	TotalProfitWei string    `json:"totalProfitWei"`
	LastResultAt   time.Time `json:"lastResultAt,omitempty"`
}
