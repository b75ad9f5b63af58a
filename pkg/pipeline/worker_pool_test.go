package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingJob tracks executions and can be scripted to fail or block.
type countingJob struct {
	id       string
	execErr  error
	block    bool
	executed *int64
}

func (j *countingJob) Execute(ctx context.Context) (interface{}, error) {
	atomic.AddInt64(j.executed, 1)
	if j.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, j.execErr
}

func (j *countingJob) GetPriority() int          { return 0 }
func (j *countingJob) GetID() string             { return j.id }
func (j *countingJob) GetTimeout() time.Duration { return 0 }

func testPoolConfig() *WorkerPoolConfig {
	return &WorkerPoolConfig{
		PoolSize:        4,
		QueueSize:       16,
		MaxJobTimeout:   time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestWorkerPoolExecutesJobs(t *testing.T) {
	pool := NewWorkerPool(testPoolConfig())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	var executed int64
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(&countingJob{id: fmt.Sprintf("job-%d", i), executed: &executed}))
	}

	require.Eventually(t, func() bool {
		return pool.GetStats().CompletedJobs == 10
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(10), atomic.LoadInt64(&executed))
}

func TestWorkerPoolCountsFailures(t *testing.T) {
	pool := NewWorkerPool(testPoolConfig())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	var executed int64
	require.NoError(t, pool.Submit(&countingJob{id: "ok", executed: &executed}))
	require.NoError(t, pool.Submit(&countingJob{id: "bad", execErr: fmt.Errorf("revert"), executed: &executed}))

	require.Eventually(t, func() bool {
		stats := pool.GetStats()
		return stats.CompletedJobs == 1 && stats.FailedJobs == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPoolDoubleStart(t *testing.T) {
	pool := NewWorkerPool(testPoolConfig())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Error(t, pool.Start(context.Background()))
}

func TestWorkerPoolSubmitBeforeStart(t *testing.T) {
	pool := NewWorkerPool(testPoolConfig())

	var executed int64
	assert.Error(t, pool.Submit(&countingJob{id: "early", executed: &executed}))
}

func TestWorkerPoolQueueFull(t *testing.T) {
	cfg := &WorkerPoolConfig{
		PoolSize:        1,
		QueueSize:       1,
		MaxJobTimeout:   200 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	}
	pool := NewWorkerPool(cfg)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	var executed int64
	// One blocking job occupies the single worker; the queue holds one more;
	// further submissions bounce.
	require.NoError(t, pool.Submit(&countingJob{id: "blocker", block: true, executed: &executed}))
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&executed) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, pool.Submit(&countingJob{id: "queued", executed: &executed}))
	assert.Error(t, pool.Submit(&countingJob{id: "overflow", executed: &executed}))
}

func TestWorkerPoolJobTimeout(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxJobTimeout = 50 * time.Millisecond
	pool := NewWorkerPool(cfg)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	var executed int64
	require.NoError(t, pool.Submit(&countingJob{id: "slow", block: true, executed: &executed}))

	// The blocked job is cancelled by the pool timeout and counted failed.
	require.Eventually(t, func() bool {
		return pool.GetStats().FailedJobs == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool(testPoolConfig())
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	var executed int64
	require.NoError(t, pool.Submit(&countingJob{id: "one", executed: &executed}))

	require.Eventually(t, func() bool {
		return pool.GetStats().CompletedJobs == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := pool.GetStats()
	assert.Equal(t, 4, stats.PoolSize)
	assert.GreaterOrEqual(t, stats.AverageLatency, time.Duration(0))
}

func TestWorkerPoolStopDrainsCleanly(t *testing.T) {
	pool := NewWorkerPool(testPoolConfig())
	require.NoError(t, pool.Start(context.Background()))

	var executed int64
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(&countingJob{id: fmt.Sprintf("job-%d", i), executed: &executed}))
	}

	require.Eventually(t, func() bool {
		return pool.GetStats().CompletedJobs == 4
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, pool.Stop(context.Background()))
	assert.Error(t, pool.Stop(context.Background()))
}
