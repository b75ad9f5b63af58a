package profit

import (
	"fmt"
	"math/big"
)

// FlashLoanFeeBps is the flash-loan provider's fixed fee in basis points.
// It must match the on-chain contract's fee model exactly.
const FlashLoanFeeBps = 9

const bpsDenominator = 10000

// Config holds the loan sizing parameters.
type Config struct {
	// MaxReservesBps caps the maximum draw as a fraction of pool reserves,
	// in basis points.
	MaxReservesBps int64
	// DrawBps is the conservative fraction of the maximum draw actually
	// borrowed, in basis points.
	DrawBps int64
}

// DefaultConfig returns the default sizing parameters: 15% reserves cap with
// a 50% draw, an effective draw of about 7.5% of reserves.
func DefaultConfig() *Config {
	return &Config{
		MaxReservesBps: 1500,
		DrawBps:        5000,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.MaxReservesBps <= 0 || c.MaxReservesBps > bpsDenominator {
		return fmt.Errorf("max reserves bps must be in (0, %d], got %d", bpsDenominator, c.MaxReservesBps)
	}
	if c.DrawBps <= 0 || c.DrawBps > bpsDenominator {
		return fmt.Errorf("draw bps must be in (0, %d], got %d", bpsDenominator, c.DrawBps)
	}
	return nil
}

// Calculator sizes flash loans and applies the provider fee model.
type Calculator struct {
	config *Config
}

// NewCalculator creates a loan sizing calculator.
func NewCalculator(cfg *Config) (*Calculator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profit config: %w", err)
	}
	return &Calculator{config: cfg}, nil
}

// SizeLoan returns the loan amount for the given pool reserves: the draw
// fraction of the reserves-capped maximum.
func (c *Calculator) SizeLoan(availableReserves *big.Int) *big.Int {
	if availableReserves == nil || availableReserves.Sign() <= 0 {
		return big.NewInt(0)
	}

	maxDraw := new(big.Int).Mul(availableReserves, big.NewInt(c.config.MaxReservesBps))
	maxDraw.Div(maxDraw, big.NewInt(bpsDenominator))

	loan := new(big.Int).Mul(maxDraw, big.NewInt(c.config.DrawBps))
	loan.Div(loan, big.NewInt(bpsDenominator))
	return loan
}

// FlashLoanFee returns the fixed provider fee for the given loan amount.
func FlashLoanFee(loanAmount *big.Int) *big.Int {
	if loanAmount == nil || loanAmount.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(loanAmount, big.NewInt(FlashLoanFeeBps))
	return fee.Div(fee, big.NewInt(bpsDenominator))
}

// NetProfit returns the gross profit minus the flash-loan fee.
func NetProfit(grossProfit, loanAmount *big.Int) *big.Int {
	if grossProfit == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(grossProfit, FlashLoanFee(loanAmount))
}
