package profit

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default", mutate: func(c *Config) {}},
		{name: "zero reserves cap", mutate: func(c *Config) { c.MaxReservesBps = 0 }, wantErr: true},
		{name: "reserves cap above 100%", mutate: func(c *Config) { c.MaxReservesBps = 10001 }, wantErr: true},
		{name: "zero draw", mutate: func(c *Config) { c.DrawBps = 0 }, wantErr: true},
		{name: "draw above 100%", mutate: func(c *Config) { c.DrawBps = 10001 }, wantErr: true},
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

func TestSizeLoan(t *testing.T) {
	calc, err := NewCalculator(DefaultConfig())
	require.NoError(t, err)

	t.Run("default draw is 7.5% of reserves", func(t *testing.T) {
		reserves := big.NewInt(1000000)
		// 15% cap -> 150000, 50% draw -> 75000
		assert.Equal(t, big.NewInt(75000), calc.SizeLoan(reserves))
	})

	t.Run("nil reserves", func(t *testing.T) {
		assert.Equal(t, big.NewInt(0), calc.SizeLoan(nil))
	})

	t.Run("zero reserves", func(t *testing.T) {
		assert.Equal(t, big.NewInt(0), calc.SizeLoan(big.NewInt(0)))
	})

	t.Run("negative reserves", func(t *testing.T) {
		assert.Equal(t, big.NewInt(0), calc.SizeLoan(big.NewInt(-5)))
	})

	t.Run("truncates toward zero", func(t *testing.T) {
		// 15% of 7 truncates to 1; 50% of 1 truncates to 0.
		assert.Equal(t, int64(0), calc.SizeLoan(big.NewInt(7)).Int64())
	})
}

func TestFlashLoanFee(t *testing.T) {
	t.Run("nine bps", func(t *testing.T) {
		fee := FlashLoanFee(big.NewInt(1000000))
		assert.Equal(t, big.NewInt(900), fee)
	})

	t.Run("small loan truncates to zero", func(t *testing.T) {
		assert.Equal(t, int64(0), FlashLoanFee(big.NewInt(1000)).Int64())
	})

	t.Run("nil loan", func(t *testing.T) {
		assert.Equal(t, big.NewInt(0), FlashLoanFee(nil))
	})
}

func TestNetProfit(t *testing.T) {
	t.Run("fee deducted from gross", func(t *testing.T) {
		net := NetProfit(big.NewInt(5000), big.NewInt(1000000))
		assert.Equal(t, big.NewInt(4100), net)
	})

	t.Run("can go negative", func(t *testing.T) {
		net := NetProfit(big.NewInt(100), big.NewInt(1000000))
		assert.Equal(t, big.NewInt(-800), net)
	})

	t.Run("nil gross", func(t *testing.T) {
		assert.Equal(t, big.NewInt(0), NetProfit(nil, big.NewInt(1000000)))
	})
}
