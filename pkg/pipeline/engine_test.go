package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arb-engine/flashloan-arb-engine/pkg/dedup"
	"github.com/arb-engine/flashloan-arb-engine/pkg/gas"
	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/profit"
	"github.com/arb-engine/flashloan-arb-engine/pkg/risk"
	"github.com/arb-engine/flashloan-arb-engine/pkg/scanner"
	"github.com/arb-engine/flashloan-arb-engine/pkg/timing"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// newTestEngine wires a complete pipeline over fake venues and a fake chain:
// the only scripted components are the RPC boundary and the venue quotes.
func newTestEngine(t *testing.T, chainClient *fakeChain) (*Engine, *fakeMetrics) {
	t.Helper()

	dedupEngine, err := dedup.NewEngine(dedup.DefaultConfig())
	require.NoError(t, err)

	riskCtrl, err := risk.NewController(risk.DefaultConfig())
	require.NoError(t, err)
	riskCtrl.Initialize(eth(10))

	gasCtrl, err := gas.NewController(gas.DefaultConfig())
	require.NoError(t, err)

	timingCtrl, err := timing.NewController(&timing.Config{
		MinTimeBetweenTrades: 0,
		MaxRandomDelay:       time.Millisecond,
		BundleSize:           1,
		SlippageMultiplier:   1.5,
		SlippageCapBps:       200,
	})
	require.NoError(t, err)

	sizing, err := profit.NewCalculator(profit.DefaultConfig())
	require.NoError(t, err)

	venues := map[string]interfaces.VenueAdapter{
		"venue-a": &fakeVenue{name: "venue-a", rateBps: 10100, reserves: eth(100)},
		"venue-b": &fakeVenue{name: "venue-b", rateBps: 10100, reserves: eth(100)},
	}

	scan, err := scanner.NewScanner(&scanner.Config{
		ScanInterval:    20 * time.Millisecond,
		MinProfitBps:    50,
		ProbeAmount:     eth(1),
		SpeedMultiplier: 3.0,
	}, []scanner.Cycle{{
		Path:   []common.Address{tokenWETH, tokenUSDC, tokenWETH},
		Venues: []string{"venue-a", "venue-b"},
	}}, venues, dedupEngine)
	require.NoError(t, err)

	collector := &fakeMetrics{}

	cfg := DefaultConfig()
	cfg.BundleMaxWait = 50 * time.Millisecond
	cfg.Contract = common.HexToAddress("0x01")
	cfg.Executor = common.HexToAddress("0x02")

	orch, err := NewOrchestrator(cfg, dedupEngine, riskCtrl, gasCtrl, timingCtrl, sizing, chainClient, venues, collector, scan.LatestCycle)
	require.NoError(t, err)

	queue := NewDispatchQueue(16)
	pool := NewWorkerPool(&WorkerPoolConfig{
		PoolSize:        2,
		QueueSize:       16,
		MaxJobTimeout:   5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	})

	engine, err := NewEngine(scan, orch, queue, pool, collector)
	require.NoError(t, err)
	return engine, collector
}

func (m *fakeMetrics) successCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.results {
		if r.Success {
			n++
		}
	}
	return n
}

func TestEngineEndToEnd(t *testing.T) {
	engine, collector := newTestEngine(t, newFakeChain())

	require.NoError(t, engine.Start(context.Background()))

	// Scan → queue → worker → orchestrator → fake chain, end to end.
	require.Eventually(t, func() bool {
		return collector.successCount() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, engine.Stop(context.Background()))
}

func TestEngineRequiresAllComponents(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestEngineDoubleStartAndStop(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeChain())

	require.NoError(t, engine.Start(context.Background()))
	assert.Error(t, engine.Start(context.Background()))

	require.NoError(t, engine.Stop(context.Background()))
	assert.Error(t, engine.Stop(context.Background()))
}

func TestEngineStatsSurface(t *testing.T) {
	engine, _ := newTestEngine(t, newFakeChain())
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop(context.Background())

	assert.GreaterOrEqual(t, engine.QueueDepth(), 0)
	stats := engine.PoolStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.PoolSize)
}

func TestOpportunityJobAdapter(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	opp := newOpportunity(10100)

	job := &opportunityJob{opp: opp, orch: h.orch}
	assert.Equal(t, opp.ID, job.GetID())

	value, err := job.Execute(context.Background())
	require.NoError(t, err)
	result, ok := value.(*types.ExecutionResult)
	require.True(t, ok)
	assert.True(t, result.Success)
}
