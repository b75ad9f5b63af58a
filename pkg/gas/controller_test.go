package gas

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

func newTestController(t *testing.T, cfg *Config) (*Controller, *time.Time) {
	t.Helper()
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctrl.now = func() time.Time { return current }
	return ctrl, &current
}

// observeSeries appends each price, advancing the clock past the rate limit
// between appends.
func observeSeries(ctrl *Controller, clock *time.Time, prices ...float64) {
	for _, p := range prices {
		*clock = clock.Add(31 * time.Second)
		ctrl.Observe(p)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default", mutate: func(c *Config) {}},
		{name: "zero max price", mutate: func(c *Config) { c.MaxGasPriceGwei = 0 }, wantErr: true},
		{name: "target above max", mutate: func(c *Config) { c.TargetGasPriceGwei = 200 }, wantErr: true},
		{name: "multiplier below one", mutate: func(c *Config) { c.PeakHourMultiplier = 0.5 }, wantErr: true},
		{name: "zero block count", mutate: func(c *Config) { c.HistoricalBlockCount = 0 }, wantErr: true},
		{name: "negative markup", mutate: func(c *Config) { c.CompetitiveMarkup = -0.1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestObserveRateLimited(t *testing.T) {
	ctrl, clock := newTestController(t, DefaultConfig())

	ctrl.Observe(20)
	// Inside the cache timeout the sample is dropped.
	*clock = clock.Add(10 * time.Second)
	ctrl.Observe(25)
	require.Len(t, ctrl.History(), 1)

	*clock = clock.Add(25 * time.Second)
	ctrl.Observe(25)
	assert.Equal(t, []float64{20, 25}, ctrl.History())
}

func TestObserveEvictsOldestAtCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoricalBlockCount = 3 // capacity 6
	ctrl, clock := newTestController(t, cfg)

	observeSeries(ctrl, clock, 1, 2, 3, 4, 5, 6, 7, 8)

	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8}, ctrl.History())
}

func TestClassifyTrendUnknownWithFewSamples(t *testing.T) {
	ctrl, clock := newTestController(t, DefaultConfig())

	observeSeries(ctrl, clock, 20, 21)

	result := ctrl.ClassifyTrend()
	assert.Equal(t, interfaces.TrendUnknown, result.Trend)
}

func TestClassifyTrendIncreasing(t *testing.T) {
	ctrl, clock := newTestController(t, DefaultConfig())

	// Previous window averages 20, recent window averages 30: +50%.
	observeSeries(ctrl, clock, 20, 20, 20, 20, 20, 30, 30, 30, 30, 30)

	result := ctrl.ClassifyTrend()
	assert.Equal(t, interfaces.TrendIncreasing, result.Trend)
	assert.InDelta(t, 50, result.ChangePercent, 1e-9)
	assert.InDelta(t, 30, result.AverageGwei, 1e-9)
	assert.Equal(t, float64(85), result.ConfidencePercent)
}

func TestClassifyTrendDecreasing(t *testing.T) {
	ctrl, clock := newTestController(t, DefaultConfig())

	observeSeries(ctrl, clock, 40, 40, 40, 40, 40, 30, 30, 30, 30, 30)

	result := ctrl.ClassifyTrend()
	assert.Equal(t, interfaces.TrendDecreasing, result.Trend)
	assert.InDelta(t, -25, result.ChangePercent, 1e-9)
}

func TestClassifyTrendStableBelowThreshold(t *testing.T) {
	ctrl, clock := newTestController(t, DefaultConfig())

	// +5% stays under the 10% threshold.
	observeSeries(ctrl, clock, 20, 20, 20, 20, 20, 21, 21, 21, 21, 21)

	result := ctrl.ClassifyTrend()
	assert.Equal(t, interfaces.TrendStable, result.Trend)
	assert.Equal(t, float64(60), result.ConfidencePercent)
}

func TestGate(t *testing.T) {
	ctrl, _ := newTestController(t, DefaultConfig())
	stable := interfaces.TrendResult{Trend: interfaces.TrendStable}

	t.Run("allows below thresholds", func(t *testing.T) {
		decision := ctrl.Gate(25, stable)
		assert.True(t, decision.Trade)
	})

	t.Run("rejects above hard ceiling", func(t *testing.T) {
		decision := ctrl.Gate(101, stable)
		assert.False(t, decision.Trade)
		assert.Contains(t, decision.Reason, "hard ceiling")
	})

	t.Run("rejects above peak-hour ceiling", func(t *testing.T) {
		// target 30 * multiplier 1.5 = 45
		decision := ctrl.Gate(46, stable)
		assert.False(t, decision.Trade)
		assert.Contains(t, decision.Reason, "peak-hour ceiling")
	})

	t.Run("allows at peak-hour ceiling", func(t *testing.T) {
		decision := ctrl.Gate(45, stable)
		assert.True(t, decision.Trade)
	})

	t.Run("rejects strong upward momentum", func(t *testing.T) {
		rising := interfaces.TrendResult{Trend: interfaces.TrendIncreasing, ChangePercent: 25}
		decision := ctrl.Gate(25, rising)
		assert.False(t, decision.Trade)
		assert.Contains(t, decision.Reason, "rising fast")
	})

	t.Run("allows mild upward momentum", func(t *testing.T) {
		rising := interfaces.TrendResult{Trend: interfaces.TrendIncreasing, ChangePercent: 15}
		decision := ctrl.Gate(25, rising)
		assert.True(t, decision.Trade)
	})
}

func TestCompetitiveBid(t *testing.T) {
	ctrl, _ := newTestController(t, DefaultConfig())

	assert.InDelta(t, 33, ctrl.CompetitiveBid(30), 1e-9)
	// The markup never bids past the hard ceiling.
	assert.InDelta(t, 100, ctrl.CompetitiveBid(95), 1e-9)
}

func TestProfitAfterGas(t *testing.T) {
	ctrl, _ := newTestController(t, DefaultConfig())

	t.Run("profitable", func(t *testing.T) {
		// 30 gwei * 400k units = 0.012 ETH gas cost
		profit := big.NewInt(20000000000000000) // 0.02 ETH
		check := ctrl.ProfitAfterGas(profit, 30, 400000)
		assert.True(t, check.Profitable)
		assert.Equal(t, big.NewInt(12000000000000000), check.GasCost)
		assert.Equal(t, big.NewInt(8000000000000000), check.NetProfit)
	})

	t.Run("break-even is not profitable", func(t *testing.T) {
		check := ctrl.ProfitAfterGas(big.NewInt(12000000000000000), 30, 400000)
		assert.False(t, check.Profitable)
		assert.Equal(t, int64(0), check.NetProfit.Int64())
	})

	t.Run("loss", func(t *testing.T) {
		check := ctrl.ProfitAfterGas(big.NewInt(1000000000000000), 30, 400000)
		assert.False(t, check.Profitable)
		assert.Equal(t, -1, check.NetProfit.Sign())
	})
}

func TestGweiWeiConversions(t *testing.T) {
	assert.Equal(t, big.NewInt(30000000000), GweiToWei(30))
	assert.Equal(t, big.NewInt(1500000000), GweiToWei(1.5))
	assert.InDelta(t, 30, WeiToGwei(big.NewInt(30000000000)), 1e-9)
	assert.Zero(t, WeiToGwei(nil))
}
