package timing

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// Config holds the anti-frontrunning timing parameters.
type Config struct {
	// MinTimeBetweenTrades is the floor on inter-trade spacing.
	MinTimeBetweenTrades time.Duration
	// MaxRandomDelay bounds the fingerprinting-avoidance delay applied when
	// the spacing floor is already satisfied.
	MaxRandomDelay time.Duration
	// BundleSize is the pending-bundle capacity; the bundle auto-flushes
	// when it fills.
	BundleSize int
	// SlippageMultiplier pads the base slippage tolerance.
	SlippageMultiplier float64
	// SlippageCapBps is the absolute tolerance ceiling in basis points.
	SlippageCapBps int64
}

// DefaultConfig returns the default timing-protection configuration.
func DefaultConfig() *Config {
	return &Config{
		MinTimeBetweenTrades: 30 * time.Second,
		MaxRandomDelay:       5 * time.Second,
		BundleSize:           3,
		SlippageMultiplier:   1.5,
		SlippageCapBps:       200, // 2% absolute ceiling
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.MinTimeBetweenTrades < 0 {
		return fmt.Errorf("min time between trades must be non-negative, got %s", c.MinTimeBetweenTrades)
	}
	if c.MaxRandomDelay <= 0 {
		return fmt.Errorf("max random delay must be positive, got %s", c.MaxRandomDelay)
	}
	if c.BundleSize <= 0 {
		return fmt.Errorf("bundle size must be positive, got %d", c.BundleSize)
	}
	if c.SlippageMultiplier < 1 {
		return fmt.Errorf("slippage multiplier must be >= 1, got %f", c.SlippageMultiplier)
	}
	if c.SlippageCapBps <= 0 {
		return fmt.Errorf("slippage cap must be positive, got %d", c.SlippageCapBps)
	}
	return nil
}

// Controller computes inter-trade delay, slippage padding and transaction
// bundling to reduce front-running exposure. It exclusively owns the MEV
// protection state.
type Controller struct {
	mu sync.Mutex

	config *Config
	rng    *rand.Rand

	lastTradeTimestamp time.Time
	pendingBundle      []*types.FlashLoanCall
}

// NewController creates a timing-protection controller.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timing config: %w", err)
	}

	return &Controller{
		config:        cfg,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		pendingBundle: make([]*types.FlashLoanCall, 0, cfg.BundleSize),
	}, nil
}

// ComputeDelay returns the delay the caller must await before preparing a
// transaction. Inside the spacing floor, it returns the remaining deficit
// plus jitter of up to 50% of the deficit; otherwise a small random delay
// avoids a fixed-interval fingerprint. The last-trade timestamp is advanced
// by MarkTradePrepared, not here: considering a trade is not the same as
// preparing one.
func (c *Controller) ComputeDelay(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastTradeTimestamp.IsZero() {
		elapsed := now.Sub(c.lastTradeTimestamp)
		if elapsed < c.config.MinTimeBetweenTrades {
			deficit := c.config.MinTimeBetweenTrades - elapsed
			jitter := time.Duration(0)
			if deficit > 0 {
				jitter = time.Duration(c.rng.Int63n(int64(deficit)/2 + 1))
			}
			return deficit + jitter
		}
	}

	return time.Duration(c.rng.Int63n(int64(c.config.MaxRandomDelay)))
}

// MarkTradePrepared records that a transaction was actually prepared at the
// given time.
func (c *Controller) MarkTradePrepared(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTradeTimestamp = now
}

// ProtectSlippage pads the base tolerance by the configured multiplier,
// capped at the absolute ceiling.
func (c *Controller) ProtectSlippage(baseToleranceBps int64) int64 {
	padded := int64(float64(baseToleranceBps) * c.config.SlippageMultiplier)
	if padded > c.config.SlippageCapBps {
		return c.config.SlippageCapBps
	}
	return padded
}

// Bundle appends the call to the pending bundle. When the bundle reaches
// capacity it is returned and cleared.
func (c *Controller) Bundle(call *types.FlashLoanCall) interfaces.BundleResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingBundle = append(c.pendingBundle, call)
	if len(c.pendingBundle) < c.config.BundleSize {
		return interfaces.BundleResult{}
	}

	flushed := c.pendingBundle
	c.pendingBundle = make([]*types.FlashLoanCall, 0, c.config.BundleSize)
	return interfaces.BundleResult{Flushed: true, Bundle: flushed}
}

// FlushPending drains and returns the pending bundle regardless of fill
// level. Used for deadline-driven flushes and shutdown.
func (c *Controller) FlushPending() []*types.FlashLoanCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pendingBundle) == 0 {
		return nil
	}
	flushed := c.pendingBundle
	c.pendingBundle = make([]*types.FlashLoanCall, 0, c.config.BundleSize)
	return flushed
}

// PendingBundleSize returns the current pending bundle length.
func (c *Controller) PendingBundleSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingBundle)
}

var _ interfaces.TimingController = (*Controller)(nil)
