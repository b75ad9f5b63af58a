package pipeline

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

func queuedOpp(id string, profitWei int64, discovered time.Time) *types.Opportunity {
	return &types.Opportunity{
		ID:             id,
		ExpectedProfit: big.NewInt(profitWei),
		DiscoveredAt:   discovered,
	}
}

func TestQueuePopsHighestProfitFirst(t *testing.T) {
	q := NewDispatchQueue(10)
	now := time.Now()

	require.NoError(t, q.Push(queuedOpp("low", 100, now)))
	require.NoError(t, q.Push(queuedOpp("high", 300, now)))
	require.NoError(t, q.Push(queuedOpp("mid", 200, now)))

	assert.Equal(t, "high", q.Pop().ID)
	assert.Equal(t, "mid", q.Pop().ID)
	assert.Equal(t, "low", q.Pop().ID)
	assert.Nil(t, q.Pop())
}

func TestQueueTieBreaksOnDiscoveryOrder(t *testing.T) {
	q := NewDispatchQueue(10)
	now := time.Now()

	require.NoError(t, q.Push(queuedOpp("second", 100, now.Add(time.Second))))
	require.NoError(t, q.Push(queuedOpp("first", 100, now)))

	assert.Equal(t, "first", q.Pop().ID)
	assert.Equal(t, "second", q.Pop().ID)
}

func TestQueueFullDropsLowestProfit(t *testing.T) {
	q := NewDispatchQueue(3)
	now := time.Now()

	require.NoError(t, q.Push(queuedOpp("a", 100, now)))
	require.NoError(t, q.Push(queuedOpp("b", 200, now)))
	require.NoError(t, q.Push(queuedOpp("c", 300, now)))

	// A richer arrival displaces the current floor.
	require.NoError(t, q.Push(queuedOpp("d", 400, now)))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())

	assert.Equal(t, "d", q.Pop().ID)
	assert.Equal(t, "c", q.Pop().ID)
	assert.Equal(t, "b", q.Pop().ID)
}

func TestQueueFullRejectsBelowFloor(t *testing.T) {
	q := NewDispatchQueue(2)
	now := time.Now()

	require.NoError(t, q.Push(queuedOpp("a", 200, now)))
	require.NoError(t, q.Push(queuedOpp("b", 300, now)))

	err := q.Push(queuedOpp("poor", 100, now))
	assert.Error(t, err)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueueStaysBounded(t *testing.T) {
	q := NewDispatchQueue(5)
	now := time.Now()

	for i := 0; i < 100; i++ {
		_ = q.Push(queuedOpp(fmt.Sprintf("opp-%d", i), int64(i), now))
	}

	assert.Equal(t, 5, q.Len())
	// The five richest survive.
	assert.Equal(t, "opp-99", q.Pop().ID)
}

func TestQueueZeroCapacityUsesDefault(t *testing.T) {
	q := NewDispatchQueue(0)
	now := time.Now()

	for i := 0; i < DefaultQueueCapacity+10; i++ {
		_ = q.Push(queuedOpp(fmt.Sprintf("opp-%d", i), int64(i), now))
	}
	assert.Equal(t, DefaultQueueCapacity, q.Len())
}
