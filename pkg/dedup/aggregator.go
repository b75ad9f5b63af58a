package dedup

import (
	"sort"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// cachedPrice is one aggregated sample pinned in the price cache.
type cachedPrice struct {
	sample   *types.PriceSample
	cachedAt time.Time
}

// AggregatePrices deduplicates raw samples per (pair, venue) key. Samples
// arriving within the dedup window of a prior sample for the same key are
// dropped; samples older than the window but younger than the cache timeout
// are served from cache; beyond the timeout the new sample replaces the
// cached one. The surviving set is returned in input order.
func (e *Engine) AggregatePrices(samples []*types.PriceSample, now time.Time) []*types.PriceSample {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lightweight {
		// Drop expired entries first to keep the cache small.
		for key, cached := range e.priceCache {
			if now.Sub(cached.cachedAt) >= e.cacheTimeout {
				delete(e.priceCache, key)
			}
		}
		e.compactPriceOrderLocked()
	}

	aggregated := make([]*types.PriceSample, 0, len(samples))
	for _, sample := range samples {
		key := sample.PairKey()

		if cached, ok := e.priceCache[key]; ok {
			age := now.Sub(cached.cachedAt)
			if age < e.dedupWindow {
				continue
			}
			if age < e.cacheTimeout {
				aggregated = append(aggregated, cached.sample)
				continue
			}
			// Expired: refresh in place, keeping the original insertion slot.
			cached.sample = sample
			cached.cachedAt = now
			aggregated = append(aggregated, sample)
			continue
		}

		if len(e.priceCache) >= e.maxSize {
			e.evictPricesLocked()
		}
		e.priceCache[key] = &cachedPrice{sample: sample, cachedAt: now}
		e.priceOrder = append(e.priceOrder, key)
		aggregated = append(aggregated, sample)
	}

	return aggregated
}

// MedianPrice sorts samples by numeric price ascending and returns the upper
// midpoint element, or nil on empty input. The tie choice for even counts is
// fixed so the result is deterministic.
func (e *Engine) MedianPrice(samples []*types.PriceSample) *types.PriceSample {
	if len(samples) == 0 {
		return nil
	}
	if len(samples) == 1 {
		return samples[0]
	}

	sorted := make([]*types.PriceSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price < sorted[j].Price
	})

	return sorted[len(sorted)/2]
}
