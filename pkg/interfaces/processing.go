package interfaces

import (
	"context"
	"time"
)

// WorkerPool manages a pool of worker goroutines for parallel opportunity
// processing.
type WorkerPool interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Submit(job Job) error
	GetStats() *WorkerPoolStats
}

// Job represents a unit of work to be processed by the worker pool.
type Job interface {
	Execute(ctx context.Context) (interface{}, error)
	GetPriority() int
	GetID() string
	GetTimeout() time.Duration
}

// WorkerPoolStats provides statistics about the worker pool.
type WorkerPoolStats struct {
	PoolSize       int           `json:"poolSize"`
	ActiveWorkers  int           `json:"activeWorkers"`
	QueuedJobs     int           `json:"queuedJobs"`
	CompletedJobs  int64         `json:"completedJobs"`
	FailedJobs     int64         `json:"failedJobs"`
	AverageLatency time.Duration `json:"averageLatency"`
	Utilization    float64       `json:"utilization"`
}
