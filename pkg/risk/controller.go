package risk

import (
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// Config holds the risk limits. All balances and losses are in wei.
type Config struct {
	MaxDailyLoss           *big.Int
	MaxConsecutiveFailures int
	MaxDrawdown            float64 // fraction of peak balance, (0,1]
	MinBalance             *big.Int
	CooldownPeriod         time.Duration
}

// DefaultConfig returns conservative default risk limits.
func DefaultConfig() *Config {
	return &Config{
		MaxDailyLoss:           big.NewInt(50000000000000000), // 0.05 ETH
		MaxConsecutiveFailures: 3,
		MaxDrawdown:            0.10,
		MinBalance:             big.NewInt(10000000000000000), // 0.01 ETH
		CooldownPeriod:         30 * time.Minute,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.MaxDailyLoss == nil || c.MaxDailyLoss.Sign() <= 0 {
		return fmt.Errorf("max daily loss must be positive")
	}
	if c.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max consecutive failures must be positive, got %d", c.MaxConsecutiveFailures)
	}
	if c.MaxDrawdown <= 0 || c.MaxDrawdown > 1 {
		return fmt.Errorf("max drawdown must be in (0,1], got %f", c.MaxDrawdown)
	}
	if c.MinBalance == nil || c.MinBalance.Sign() < 0 {
		return fmt.Errorf("min balance must be non-negative")
	}
	if c.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown period must be positive, got %s", c.CooldownPeriod)
	}
	return nil
}

// Controller tracks balance, daily loss, consecutive failures and drawdown,
// and exposes the trade-admission circuit breaker. It is the single owner of
// its state; all access is serialized.
type Controller struct {
	mu sync.Mutex

	config *Config
	now    func() time.Time

	currentBalance       *big.Int
	peakBalance          *big.Int
	dailyLoss            *big.Int
	dailyWindowStart     time.Time
	consecutiveFailures  int
	circuitBreakerActive bool
	activatedAt          time.Time
}

// NewController creates a risk controller with the given limits.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk config: %w", err)
	}

	return &Controller{
		config:         cfg,
		now:            time.Now,
		currentBalance: big.NewInt(0),
		peakBalance:    big.NewInt(0),
		dailyLoss:      big.NewInt(0),
	}, nil
}

// Initialize sets the starting balance and resets all counters and the
// breaker. Peak balance starts equal to the current balance.
func (c *Controller) Initialize(startingBalance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentBalance = new(big.Int).Set(startingBalance)
	c.peakBalance = new(big.Int).Set(startingBalance)
	c.dailyLoss = big.NewInt(0)
	c.dailyWindowStart = c.now()
	c.consecutiveFailures = 0
	c.circuitBreakerActive = false
	c.activatedAt = time.Time{}
}

// CanTrade evaluates, in order: breaker cooldown, daily loss, consecutive
// failures, drawdown, minimum balance. The first breached condition activates
// the circuit breaker and is returned as the reason. Every limit is
// re-evaluated on every call, so a condition that has drifted past its limit
// since the last trade still trips here.
func (c *Controller) CanTrade() interfaces.RiskDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.rollDailyWindowLocked(now)

	if c.circuitBreakerActive {
		if now.Sub(c.activatedAt) < c.config.CooldownPeriod {
			return interfaces.RiskDecision{Allowed: false, Reason: "circuit breaker active"}
		}
		// Cooldown elapsed: auto-reset to Normal.
		c.circuitBreakerActive = false
		c.activatedAt = time.Time{}
		c.consecutiveFailures = 0
		log.Printf("[risk] circuit breaker reset after cooldown")
	}

	if c.dailyLoss.Cmp(c.config.MaxDailyLoss) >= 0 {
		c.tripLocked(now)
		return interfaces.RiskDecision{Allowed: false, Reason: "daily loss limit reached"}
	}

	if c.consecutiveFailures >= c.config.MaxConsecutiveFailures {
		c.tripLocked(now)
		return interfaces.RiskDecision{Allowed: false, Reason: "consecutive failure limit reached"}
	}

	if c.drawdownLocked() > c.config.MaxDrawdown {
		c.tripLocked(now)
		return interfaces.RiskDecision{Allowed: false, Reason: "drawdown limit exceeded"}
	}

	if c.currentBalance.Cmp(c.config.MinBalance) < 0 {
		c.tripLocked(now)
		return interfaces.RiskDecision{Allowed: false, Reason: "balance below minimum"}
	}

	return interfaces.RiskDecision{Allowed: true}
}

// RecordTrade updates balances and counters for one terminal pipeline
// outcome. It must be called exactly once per outcome. A failed simulation
// records a zero profitOrLoss: the dry run costs nothing on chain, so it
// counts as a failure but never as a loss.
func (c *Controller) RecordTrade(success bool, profitOrLoss *big.Int, newBalance *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollDailyWindowLocked(c.now())

	if newBalance != nil {
		c.currentBalance = new(big.Int).Set(newBalance)
		if c.currentBalance.Cmp(c.peakBalance) > 0 {
			c.peakBalance = new(big.Int).Set(c.currentBalance)
		}
	}

	if profitOrLoss != nil && profitOrLoss.Sign() < 0 {
		c.dailyLoss.Add(c.dailyLoss, new(big.Int).Neg(profitOrLoss))
	}

	if success {
		c.consecutiveFailures = 0
	} else {
		c.consecutiveFailures++
	}
}

// Snapshot returns a read-only copy of the controller state.
func (c *Controller) Snapshot() interfaces.RiskSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return interfaces.RiskSnapshot{
		CurrentBalance:       new(big.Int).Set(c.currentBalance),
		PeakBalance:          new(big.Int).Set(c.peakBalance),
		DailyLoss:            new(big.Int).Set(c.dailyLoss),
		Drawdown:             c.drawdownLocked(),
		ConsecutiveFailures:  c.consecutiveFailures,
		CircuitBreakerActive: c.circuitBreakerActive,
		ActivatedAt:          c.activatedAt,
	}
}

// tripLocked activates the circuit breaker. Re-activating an already-active
// breaker is a no-op so the original activation time is preserved.
func (c *Controller) tripLocked(now time.Time) {
	if c.circuitBreakerActive {
		return
	}
	c.circuitBreakerActive = true
	c.activatedAt = now
	log.Printf("[risk] circuit breaker activated")
}

// drawdownLocked computes (peak - current) / peak, clamped to [0,1].
func (c *Controller) drawdownLocked() float64 {
	if c.peakBalance.Sign() <= 0 {
		return 0
	}
	diff := new(big.Int).Sub(c.peakBalance, c.currentBalance)
	if diff.Sign() <= 0 {
		return 0
	}
	dd, _ := new(big.Float).Quo(
		new(big.Float).SetInt(diff),
		new(big.Float).SetInt(c.peakBalance),
	).Float64()
	if dd > 1 {
		dd = 1
	}
	return dd
}

// rollDailyWindowLocked resets the accumulated daily loss once the rolling
// 24h window has elapsed.
func (c *Controller) rollDailyWindowLocked(now time.Time) {
	if c.dailyWindowStart.IsZero() {
		c.dailyWindowStart = now
		return
	}
	if now.Sub(c.dailyWindowStart) >= 24*time.Hour {
		c.dailyLoss = big.NewInt(0)
		c.dailyWindowStart = now
	}
}

var _ interfaces.RiskController = (*Controller)(nil)
