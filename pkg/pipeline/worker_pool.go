package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// WorkerPoolConfig holds configuration for the opportunity worker pool.
type WorkerPoolConfig struct {
	PoolSize        int           `json:"pool_size"`
	QueueSize       int           `json:"queue_size"`
	MaxJobTimeout   time.Duration `json:"max_job_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultWorkerPoolConfig returns default configuration.
func DefaultWorkerPoolConfig() *WorkerPoolConfig {
	return &WorkerPoolConfig{
		PoolSize:        8,
		QueueSize:       256,
		MaxJobTimeout:   60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// workerPool implements the WorkerPool interface. Simulation and broadcast
// are I/O-bound, so many opportunities are processed concurrently; the dedup
// engine's Admit is the sole gate preventing two workers from working the
// same cycle.
type workerPool struct {
	config   *WorkerPoolConfig
	jobQueue chan interfaces.Job
	workers  []*worker
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	running  bool

	completedJobs int64
	failedJobs    int64
	totalLatency  int64
	jobCount      int64
	activeWorkers int64
}

// worker represents a single worker goroutine.
type worker struct {
	id       int
	pool     *workerPool
	jobQueue chan interfaces.Job
	quit     chan bool
}

// NewWorkerPool creates a new worker pool instance.
func NewWorkerPool(config *WorkerPoolConfig) interfaces.WorkerPool {
	if config == nil {
		config = DefaultWorkerPoolConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &workerPool{
		config:   config,
		jobQueue: make(chan interfaces.Job, config.QueueSize),
		workers:  make([]*worker, config.PoolSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the worker pool.
func (wp *workerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return fmt.Errorf("worker pool is already running")
	}

	for i := 0; i < wp.config.PoolSize; i++ {
		w := &worker{
			id:       i,
			pool:     wp,
			jobQueue: wp.jobQueue,
			quit:     make(chan bool),
		}
		wp.workers[i] = w

		wp.wg.Add(1)
		go w.start()
	}

	wp.running = true
	return nil
}

// Stop stops the worker pool gracefully.
func (wp *workerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		return fmt.Errorf("worker pool is not running")
	}

	wp.cancel()
	close(wp.jobQueue)

	for _, w := range wp.workers {
		w.stop()
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(wp.config.ShutdownTimeout):
		return fmt.Errorf("worker pool shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	wp.running = false
	return nil
}

// Submit submits a job to the worker pool.
func (wp *workerPool) Submit(job interfaces.Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return fmt.Errorf("worker pool is not running")
	}

	select {
	case wp.jobQueue <- job:
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

// GetStats returns current worker pool statistics.
func (wp *workerPool) GetStats() *interfaces.WorkerPoolStats {
	completed := atomic.LoadInt64(&wp.completedJobs)
	failed := atomic.LoadInt64(&wp.failedJobs)
	totalLatency := atomic.LoadInt64(&wp.totalLatency)
	jobCount := atomic.LoadInt64(&wp.jobCount)
	active := int(atomic.LoadInt64(&wp.activeWorkers))

	stats := &interfaces.WorkerPoolStats{
		PoolSize:      wp.config.PoolSize,
		ActiveWorkers: active,
		QueuedJobs:    len(wp.jobQueue),
		CompletedJobs: completed,
		FailedJobs:    failed,
	}

	if jobCount > 0 {
		stats.AverageLatency = time.Duration(totalLatency / jobCount)
	}
	if wp.config.PoolSize > 0 {
		stats.Utilization = float64(active) / float64(wp.config.PoolSize)
	}

	return stats
}

// start runs the worker loop.
func (w *worker) start() {
	defer w.pool.wg.Done()

	for {
		select {
		case job := <-w.jobQueue:
			if job == nil {
				return // channel closed
			}
			w.processJob(job)

		case <-w.quit:
			return

		case <-w.pool.ctx.Done():
			return
		}
	}
}

// stop stops the worker.
func (w *worker) stop() {
	close(w.quit)
}

// processJob executes a job with timeout and metrics tracking.
func (w *worker) processJob(job interfaces.Job) {
	startTime := time.Now()
	atomic.AddInt64(&w.pool.activeWorkers, 1)
	defer atomic.AddInt64(&w.pool.activeWorkers, -1)

	timeout := job.GetTimeout()
	if timeout == 0 {
		timeout = w.pool.config.MaxJobTimeout
	}

	ctx, cancel := context.WithTimeout(w.pool.ctx, timeout)
	defer cancel()

	_, err := job.Execute(ctx)

	duration := time.Since(startTime)
	atomic.AddInt64(&w.pool.jobCount, 1)
	atomic.AddInt64(&w.pool.totalLatency, int64(duration))

	if err != nil {
		atomic.AddInt64(&w.pool.failedJobs, 1)
	} else {
		atomic.AddInt64(&w.pool.completedJobs, 1)
	}
}
