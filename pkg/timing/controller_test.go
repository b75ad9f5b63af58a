package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

func newTestController(t *testing.T, cfg *Config) *Controller {
	t.Helper()
	ctrl, err := NewController(cfg)
	require.NoError(t, err)
	return ctrl
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default", mutate: func(c *Config) {}},
		{name: "negative spacing floor", mutate: func(c *Config) { c.MinTimeBetweenTrades = -time.Second }, wantErr: true},
		{name: "zero random delay", mutate: func(c *Config) { c.MaxRandomDelay = 0 }, wantErr: true},
		{name: "zero bundle size", mutate: func(c *Config) { c.BundleSize = 0 }, wantErr: true},
		{name: "multiplier below one", mutate: func(c *Config) { c.SlippageMultiplier = 0.9 }, wantErr: true},
		{name: "zero slippage cap", mutate: func(c *Config) { c.SlippageCapBps = 0 }, wantErr: true},
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

func TestComputeDelayBeforeFirstTrade(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())
	now := time.Now()

	// No trade yet: only the small fingerprint-avoidance delay applies.
	for i := 0; i < 100; i++ {
		delay := ctrl.ComputeDelay(now)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.Less(t, delay, 5*time.Second)
	}
}

func TestComputeDelayInsideSpacingFloor(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())
	now := time.Now()

	ctrl.MarkTradePrepared(now)

	// 10s elapsed out of the 30s floor: a 20s deficit plus up to 50% jitter.
	for i := 0; i < 100; i++ {
		delay := ctrl.ComputeDelay(now.Add(10 * time.Second))
		assert.GreaterOrEqual(t, delay, 20*time.Second)
		assert.LessOrEqual(t, delay, 30*time.Second)
	}
}

func TestComputeDelayAfterSpacingFloor(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())
	now := time.Now()

	ctrl.MarkTradePrepared(now)

	for i := 0; i < 100; i++ {
		delay := ctrl.ComputeDelay(now.Add(31 * time.Second))
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.Less(t, delay, 5*time.Second)
	}
}

func TestComputeDelayDoesNotAdvanceTimestamp(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())
	now := time.Now()

	ctrl.MarkTradePrepared(now)

	// Repeated delay queries must keep measuring from the prepared trade,
	// not from each other.
	ctrl.ComputeDelay(now.Add(10 * time.Second))
	delay := ctrl.ComputeDelay(now.Add(10 * time.Second))
	assert.GreaterOrEqual(t, delay, 20*time.Second)
}

func TestProtectSlippage(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())

	assert.Equal(t, int64(75), ctrl.ProtectSlippage(50))
	assert.Equal(t, int64(150), ctrl.ProtectSlippage(100))
	// Padding never exceeds the 200 bps ceiling.
	assert.Equal(t, int64(200), ctrl.ProtectSlippage(150))
	assert.Equal(t, int64(200), ctrl.ProtectSlippage(1000))
}

func TestBundleFlushesAtCapacity(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())

	a, b, c := &types.FlashLoanCall{}, &types.FlashLoanCall{}, &types.FlashLoanCall{}

	result := ctrl.Bundle(a)
	assert.False(t, result.Flushed)
	result = ctrl.Bundle(b)
	assert.False(t, result.Flushed)
	assert.Equal(t, 2, ctrl.PendingBundleSize())

	result = ctrl.Bundle(c)
	require.True(t, result.Flushed)
	assert.Equal(t, []*types.FlashLoanCall{a, b, c}, result.Bundle)
	assert.Equal(t, 0, ctrl.PendingBundleSize())
}

func TestBundleRefillsAfterFlush(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())

	for i := 0; i < 3; i++ {
		ctrl.Bundle(&types.FlashLoanCall{})
	}

	result := ctrl.Bundle(&types.FlashLoanCall{})
	assert.False(t, result.Flushed)
	assert.Equal(t, 1, ctrl.PendingBundleSize())
}

func TestFlushPending(t *testing.T) {
	ctrl := newTestController(t, DefaultConfig())

	t.Run("empty returns nil", func(t *testing.T) {
		assert.Nil(t, ctrl.FlushPending())
	})

	t.Run("drains partial bundle", func(t *testing.T) {
		a, b := &types.FlashLoanCall{}, &types.FlashLoanCall{}
		ctrl.Bundle(a)
		ctrl.Bundle(b)

		flushed := ctrl.FlushPending()
		assert.Equal(t, []*types.FlashLoanCall{a, b}, flushed)
		assert.Equal(t, 0, ctrl.PendingBundleSize())
		assert.Nil(t, ctrl.FlushPending())
	})
}
