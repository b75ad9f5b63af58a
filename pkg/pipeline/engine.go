package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/scanner"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// Engine connects the single-producer scanner to the bounded worker pool
// through the profit-ordered dispatch queue.
type Engine struct {
	scanner *scanner.Scanner
	orch    *Orchestrator
	queue   *DispatchQueue
	pool    interfaces.WorkerPool
	metrics interfaces.MetricsCollector

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewEngine assembles the live pipeline.
func NewEngine(scan *scanner.Scanner, orch *Orchestrator, queue *DispatchQueue, pool interfaces.WorkerPool, metrics interfaces.MetricsCollector) (*Engine, error) {
	if scan == nil || orch == nil || queue == nil || pool == nil || metrics == nil {
		return nil, fmt.Errorf("all engine components are required")
	}
	return &Engine{
		scanner: scan,
		orch:    orch,
		queue:   queue,
		pool:    pool,
		metrics: metrics,
	}, nil
}

// Start launches the worker pool, the dispatcher and the scan loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine is already running")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if err := e.pool.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	e.wg.Add(2)
	go e.runScanner(runCtx)
	go e.runDispatcher(runCtx)

	e.running = true
	log.Printf("[engine] pipeline started")
	return nil
}

// Stop shuts everything down: scan loop first, then the dispatcher, then the
// workers, then the pending bundle.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return fmt.Errorf("engine is not running")
	}

	e.cancel()
	e.wg.Wait()

	if err := e.pool.Stop(ctx); err != nil {
		log.Printf("[engine] worker pool stop: %v", err)
	}
	e.orch.Close()

	e.running = false
	log.Printf("[engine] pipeline stopped")
	return nil
}

// runScanner drives the scan loop; candidates flow into the dispatch queue.
func (e *Engine) runScanner(ctx context.Context) {
	defer e.wg.Done()

	err := e.scanner.Run(ctx, func(candidates []*types.Opportunity) {
		e.metrics.RecordDetected(len(candidates))
		for _, opp := range candidates {
			if err := e.queue.Push(opp); err != nil {
				log.Printf("[engine] dispatch queue rejected %s: %v", opp.ID, err)
			}
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("[engine] scanner exited: %v", err)
	}
}

// runDispatcher feeds queued opportunities to the worker pool, highest
// expected profit first.
func (e *Engine) runDispatcher(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				opp := e.queue.Pop()
				if opp == nil {
					break
				}
				job := &opportunityJob{opp: opp, orch: e.orch}
				if err := e.pool.Submit(job); err != nil {
					// Pool saturated: requeue and let the next tick retry.
					if pushErr := e.queue.Push(opp); pushErr != nil {
						log.Printf("[engine] dropped %s: %v", opp.ID, pushErr)
					}
					break
				}
			}
		}
	}
}

// PoolStats exposes worker pool statistics for the API surface.
func (e *Engine) PoolStats() *interfaces.WorkerPoolStats {
	return e.pool.GetStats()
}

// QueueDepth exposes the dispatch queue depth for the API surface.
func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

// opportunityJob adapts one Opportunity to the worker pool's Job interface.
type opportunityJob struct {
	opp  *types.Opportunity
	orch *Orchestrator
}

// Execute runs the opportunity through the full stage sequence.
func (j *opportunityJob) Execute(ctx context.Context) (interface{}, error) {
	result := j.orch.Process(ctx, j.opp)
	if !result.Success {
		return result, fmt.Errorf("opportunity %s rejected at %s: %s", j.opp.ID, result.FailedAt, result.Reason)
	}
	return result, nil
}

func (j *opportunityJob) GetPriority() int { return int(j.opp.ProfitBps) }

func (j *opportunityJob) GetID() string { return j.opp.ID }

func (j *opportunityJob) GetTimeout() time.Duration { return 0 }
