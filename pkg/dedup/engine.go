package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// Config holds configuration for the dedup/aggregation engine.
type Config struct {
	// MaxCacheSize bounds the admit cache in normal mode. Lightweight mode
	// reduces it by 75%.
	MaxCacheSize int
	// DedupWindow is the span during which a repeated price sample for the
	// same (pair, venue) key is treated as a duplicate.
	DedupWindow time.Duration
	// CacheTimeout is how long an aggregated price stays servable from
	// cache. Lightweight mode halves it.
	CacheTimeout time.Duration
	// Lightweight trades cache capacity for memory: 25% of the normal
	// capacity, and overflow retains only the newest quarter of entries.
	Lightweight bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxCacheSize: 20000,
		DedupWindow:  5 * time.Second,
		CacheTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("max cache size must be positive, got %d", c.MaxCacheSize)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive, got %s", c.DedupWindow)
	}
	if c.CacheTimeout < c.DedupWindow {
		return fmt.Errorf("cache timeout %s must not be shorter than dedup window %s", c.CacheTimeout, c.DedupWindow)
	}
	return nil
}

// Engine suppresses duplicate opportunity reports and aggregates raw price
// samples into a robust median price. Both caches are bounded; eviction is
// least-recently-inserted and deterministic.
type Engine struct {
	mu sync.Mutex

	seen      map[string]struct{}
	insertion []string // admit keys in insertion order, oldest first
	maxSize   int

	priceCache   map[string]*cachedPrice
	priceOrder   []string // price cache keys in insertion order, oldest first
	dedupWindow  time.Duration
	cacheTimeout time.Duration
	lightweight  bool

	totalChecked    uint64
	duplicatesFound uint64
	cacheClears     uint64
}

// NewEngine creates a dedup/aggregation engine from the given configuration.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup config: %w", err)
	}

	maxSize := cfg.MaxCacheSize
	cacheTimeout := cfg.CacheTimeout
	if cfg.Lightweight {
		maxSize = cfg.MaxCacheSize / 4
		cacheTimeout = cfg.CacheTimeout / 2
	}

	return &Engine{
		seen:         make(map[string]struct{}, maxSize),
		insertion:    make([]string, 0, maxSize),
		maxSize:      maxSize,
		priceCache:   make(map[string]*cachedPrice),
		dedupWindow:  cfg.DedupWindow,
		cacheTimeout: cacheTimeout,
		lightweight:  cfg.Lightweight,
	}, nil
}

// Admit returns true if key has not been seen within the live window and
// records it. At most one caller observes true for a given key: the check
// and the insert happen under one lock, so Admit is the pipeline's
// cross-worker mutual-exclusion point.
func (e *Engine) Admit(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalChecked++

	if _, ok := e.seen[key]; ok {
		e.duplicatesFound++
		return false
	}

	if len(e.seen) >= e.maxSize {
		e.evictLocked()
	}

	e.seen[key] = struct{}{}
	e.insertion = append(e.insertion, key)
	return true
}

// evictLocked applies the overflow policy: lightweight mode retains only the
// most-recently-inserted 25% of capacity; normal mode retains the newest 50%.
func (e *Engine) evictLocked() {
	keep := e.maxSize / 2
	if e.lightweight {
		keep = e.maxSize / 4
	}
	if keep >= len(e.insertion) {
		return
	}

	evicted := e.insertion[:len(e.insertion)-keep]
	for _, key := range evicted {
		delete(e.seen, key)
	}
	retained := make([]string, keep, e.maxSize)
	copy(retained, e.insertion[len(e.insertion)-keep:])
	e.insertion = retained
	e.cacheClears++
}

// evictPricesLocked applies the same overflow policy to the price cache.
func (e *Engine) evictPricesLocked() {
	keep := e.maxSize / 2
	if e.lightweight {
		keep = e.maxSize / 4
	}
	if keep >= len(e.priceOrder) {
		return
	}

	for _, key := range e.priceOrder[:len(e.priceOrder)-keep] {
		delete(e.priceCache, key)
	}
	retained := make([]string, keep, e.maxSize)
	copy(retained, e.priceOrder[len(e.priceOrder)-keep:])
	e.priceOrder = retained
	e.cacheClears++
}

// compactPriceOrderLocked drops insertion-order entries whose cache entry was
// removed by the age-based purge.
func (e *Engine) compactPriceOrderLocked() {
	if len(e.priceOrder) == len(e.priceCache) {
		return
	}
	kept := e.priceOrder[:0]
	for _, key := range e.priceOrder {
		if _, ok := e.priceCache[key]; ok {
			kept = append(kept, key)
		}
	}
	e.priceOrder = kept
}

// Clear drops both caches and resets counters.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seen = make(map[string]struct{}, e.maxSize)
	e.insertion = e.insertion[:0]
	e.priceCache = make(map[string]*cachedPrice)
	e.priceOrder = e.priceOrder[:0]
	e.totalChecked = 0
	e.duplicatesFound = 0
	e.cacheClears = 0
}

// Stats returns cache activity counters.
func (e *Engine) Stats() interfaces.DedupStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return interfaces.DedupStats{
		TotalChecked:    e.totalChecked,
		DuplicatesFound: e.duplicatesFound,
		CacheClears:     e.cacheClears,
		AdmitCacheSize:  len(e.seen),
		PriceCacheSize:  len(e.priceCache),
	}
}

// MemoryUsageBytes returns a rough estimate of cache memory consumption.
func (e *Engine) MemoryUsageBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Approximate per-entry footprint including key storage.
	return len(e.seen)*128 + len(e.priceCache)*256
}

var _ interfaces.DedupEngine = (*Engine)(nil)
