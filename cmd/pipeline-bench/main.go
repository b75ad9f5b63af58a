package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arb-engine/flashloan-arb-engine/pkg/dedup"
	"github.com/arb-engine/flashloan-arb-engine/pkg/pipeline"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// Standalone throughput check for the hot-path components: the dedup admit
// cache, the dispatch queue ordering and the worker pool. Useful for sizing
// the pool before pointing the engine at a live endpoint.
func main() {
	fmt.Println("Arb Engine Pipeline Benchmark")
	fmt.Println("=============================")

	ctx := context.Background()

	fmt.Println("\nTest 1: Dedup admit throughput")
	benchDedupAdmit()

	fmt.Println("\nTest 2: Dispatch queue ordering")
	benchDispatchQueue()

	fmt.Println("\nTest 3: Worker pool throughput")
	benchWorkerPool(ctx)

	fmt.Println("\nBenchmark completed")
}

func benchDedupAdmit() {
	engine, err := dedup.NewEngine(&dedup.Config{
		MaxCacheSize: 20000,
		DedupWindow:  5 * time.Second,
		CacheTimeout: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to create dedup engine: %v", err)
	}

	const checks = 200000
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < checks/8; i++ {
				engine.Admit(fmt.Sprintf("cycle-%d", i%5000))
			}
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)
	stats := engine.Stats()
	fmt.Printf("   %d admit checks in %v (%.0f/s)\n", checks, elapsed, float64(checks)/elapsed.Seconds())
	fmt.Printf("   duplicates suppressed: %d, cache size: %d\n", stats.DuplicatesFound, stats.AdmitCacheSize)
}

func benchDispatchQueue() {
	queue := pipeline.NewDispatchQueue(1000)

	const pushes = 50000
	start := time.Now()
	for i := 0; i < pushes; i++ {
		queue.Push(&types.Opportunity{
			ID:             fmt.Sprintf("opp-%d", i),
			Path:           []common.Address{{}, {}, {}},
			ExpectedProfit: big.NewInt(int64(i % 10000)),
			DiscoveredAt:   time.Now(),
		})
	}
	elapsed := time.Since(start)

	top := queue.Pop()
	fmt.Printf("   %d pushes in %v (%.0f/s), dropped %d\n", pushes, elapsed, float64(pushes)/elapsed.Seconds(), queue.Dropped())
	fmt.Printf("   highest-profit head: %s wei\n", top.ExpectedProfit)
}

type benchJob struct {
	id       string
	duration time.Duration
}

func (j *benchJob) Execute(ctx context.Context) (interface{}, error) {
	select {
	case <-time.After(j.duration):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *benchJob) GetPriority() int          { return 0 }
func (j *benchJob) GetID() string             { return j.id }
func (j *benchJob) GetTimeout() time.Duration { return time.Second }

func benchWorkerPool(ctx context.Context) {
	pool := pipeline.NewWorkerPool(&pipeline.WorkerPoolConfig{
		PoolSize:        20,
		QueueSize:       1000,
		MaxJobTimeout:   2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	})

	if err := pool.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}
	defer pool.Stop(ctx)

	const jobs = 1000
	jobDuration := 10 * time.Millisecond

	fmt.Printf("   Submitting %d jobs with %v duration each...\n", jobs, jobDuration)

	start := time.Now()
	for i := 0; i < jobs; i++ {
		job := &benchJob{id: fmt.Sprintf("job-%d", i), duration: jobDuration}
		for pool.Submit(job) != nil {
			time.Sleep(time.Millisecond)
		}
	}

	// Wait for drain.
	for {
		stats := pool.GetStats()
		if stats.CompletedJobs+stats.FailedJobs >= jobs {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	elapsed := time.Since(start)
	stats := pool.GetStats()
	fmt.Printf("   %d jobs in %v (%.0f/s), avg latency %v\n",
		jobs, elapsed, float64(jobs)/elapsed.Seconds(), stats.AverageLatency)
}
