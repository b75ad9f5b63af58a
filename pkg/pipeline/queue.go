package pipeline

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// DefaultQueueCapacity bounds the dispatch queue.
const DefaultQueueCapacity = 1000

// opportunityHeap implements heap.Interface ordered by expected profit.
type opportunityHeap []*types.Opportunity

func (h opportunityHeap) Len() int { return len(h) }

func (h opportunityHeap) Less(i, j int) bool {
	// Higher expected profit dispatches first (max heap).
	cmp := h[i].ExpectedProfit.Cmp(h[j].ExpectedProfit)
	if cmp != 0 {
		return cmp > 0
	}
	// Tie-break on discovery order so dispatch is deterministic.
	return h[i].DiscoveredAt.Before(h[j].DiscoveredAt)
}

func (h opportunityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *opportunityHeap) Push(x interface{}) {
	*h = append(*h, x.(*types.Opportunity))
}

func (h *opportunityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// DispatchQueue is a bounded, profit-ordered queue of pending opportunities
// awaiting a pipeline worker. When full, the lowest-profit entry is dropped
// in favor of a higher-profit arrival.
type DispatchQueue struct {
	heap     *opportunityHeap
	capacity int
	mu       sync.Mutex
	dropped  uint64
}

// NewDispatchQueue creates a dispatch queue with the given capacity.
func NewDispatchQueue(capacity int) *DispatchQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	h := &opportunityHeap{}
	heap.Init(h)
	return &DispatchQueue{heap: h, capacity: capacity}
}

// Push adds an opportunity to the queue. A full queue drops whichever of the
// new arrival or the current minimum has lower expected profit.
func (q *DispatchQueue) Push(opp *types.Opportunity) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() >= q.capacity {
		minIdx := q.minIndexLocked()
		if (*q.heap)[minIdx].ExpectedProfit.Cmp(opp.ExpectedProfit) >= 0 {
			q.dropped++
			return fmt.Errorf("queue full, opportunity %s below current floor", opp.ID)
		}
		heap.Remove(q.heap, minIdx)
		q.dropped++
	}

	heap.Push(q.heap, opp)
	return nil
}

// Pop removes and returns the highest-profit opportunity, or nil when empty.
func (q *DispatchQueue) Pop() *types.Opportunity {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(q.heap).(*types.Opportunity)
}

// Len returns the number of queued opportunities.
func (q *DispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Dropped returns how many opportunities were shed due to capacity.
func (q *DispatchQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// minIndexLocked finds the index of the lowest-profit entry. The minimum of
// a max-heap lives among the leaves, so a linear scan is required.
func (q *DispatchQueue) minIndexLocked() int {
	minIdx := 0
	for i := 1; i < q.heap.Len(); i++ {
		if (*q.heap)[i].ExpectedProfit.Cmp((*q.heap)[minIdx].ExpectedProfit) < 0 {
			minIdx = i
		}
	}
	return minIdx
}
