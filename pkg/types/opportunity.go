package types

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Opportunity represents a candidate cross-venue arbitrage cycle. The token
// path is cyclic (first and last element are the same token) with one venue
// per hop. An Opportunity is immutable once discovered; re-validation produces
// a superseding instance rather than mutating the original.
type Opportunity struct {
	ID             string           `json:"id"`
	Path           []common.Address `json:"path"`
	Venues         []string         `json:"venues"`
	AmountIn       *big.Int         `json:"amountIn"`
	ExpectedOut    *big.Int         `json:"expectedOut"`
	ExpectedProfit *big.Int         `json:"expectedProfit"`
	ProfitBps      int64            `json:"profitBps"`
	DiscoveredAt   time.Time        `json:"discoveredAt"`
	ScanCycle      uint64           `json:"scanCycle"`
}

// DedupKey derives the deterministic cache key used to suppress duplicate
// reports of the same cycle: the hyphen-joined path followed by the
// hyphen-joined venue sequence, separated by a pipe.
func (o *Opportunity) DedupKey() string {
	var b strings.Builder
	b.Grow(128)
	for i, hop := range o.Path {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strings.ToLower(hop.Hex()))
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(o.Venues, "-"))
	return b.String()
}

// IsCyclic reports whether the path has at least two hops and starts and ends
// at the same token.
func (o *Opportunity) IsCyclic() bool {
	if len(o.Path) < 3 {
		return false
	}
	return o.Path[0] == o.Path[len(o.Path)-1]
}

// PriceSample is a single venue price observation for a token pair. Samples
// are ephemeral: produced by venue adapters, consumed by the aggregation
// engine, and discarded after the aggregation window.
type PriceSample struct {
	TokenA    common.Address `json:"tokenA"`
	TokenB    common.Address `json:"tokenB"`
	Venue     string         `json:"venue"`
	Price     float64        `json:"price"`
	Timestamp time.Time      `json:"timestamp"`
}

// PairKey derives the composite (pair, venue) key used for price sample
// deduplication.
func (s *PriceSample) PairKey() string {
	return strings.ToLower(s.TokenA.Hex()) + "-" + strings.ToLower(s.TokenB.Hex()) + "-" + s.Venue
}

// Stage identifies a pipeline stage for an in-flight Opportunity.
type Stage string

const (
	StageDiscovered            Stage = "discovered"
	StageDedupFiltered         Stage = "dedup_filtered"
	StageValidated             Stage = "validated"
	StageSized                 Stage = "sized"
	StageProfitChecked         Stage = "profit_checked"
	StageGasGated              Stage = "gas_gated"
	StageProfitAfterGasChecked Stage = "profit_after_gas_checked"
	StageTimingAdjusted        Stage = "timing_adjusted"
	StageSimulated             Stage = "simulated"
	StageBroadcast             Stage = "broadcast"
	StageSettled               Stage = "settled"
)

// FailureCode classifies a non-success terminal result. Consumers switch on
// the code, never on the free-form Reason text.
type FailureCode string

const (
	FailureNone        FailureCode = ""
	FailureDuplicate   FailureCode = "duplicate"
	FailureRiskBlocked FailureCode = "risk_blocked"
	FailureStale       FailureCode = "stale"
	FailureRejected    FailureCode = "rejected"
	FailureGasBlocked  FailureCode = "gas_blocked"
	FailureSuperseded  FailureCode = "superseded"
	FailureExecution   FailureCode = "execution_failed"
)

// ExecutionResult is the terminal outcome of one pipeline run for one
// Opportunity. It is created exactly once, when the Opportunity settles;
// Stage is always StageSettled, and FailedAt names the stage whose guard
// rejected a non-success run.
type ExecutionResult struct {
	OpportunityID    string       `json:"opportunityId"`
	Stage            Stage        `json:"stage"`
	FailedAt         Stage        `json:"failedAt,omitempty"`
	Code             FailureCode  `json:"code,omitempty"`
	Simulated        bool         `json:"simulated"`
	SimulationPassed bool         `json:"simulationPassed"`
	Broadcast        bool         `json:"broadcast"`
	Success          bool         `json:"success"`
	ProfitOrLoss     *big.Int     `json:"profitOrLoss"`
	TxHash           *common.Hash `json:"txHash,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	CompletedAt      time.Time    `json:"completedAt"`
}
