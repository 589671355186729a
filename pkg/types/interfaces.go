// Package types defines core interfaces and types shared by the executor packages
package types

import (
	"context"
	"time"
)

// TaskFunc is a unit of work. The closure captures the callable and its arguments.
type TaskFunc func(ctx context.Context) (any, error)

// Task defines the task interface
type Task interface {
	// Execute executes the task
	Execute(ctx context.Context) error

	// ID returns the task ID (optional, for tracking)
	ID() string

	// Priority returns the task priority; lower values run first
	Priority() int
}

// Executor defines the priority executor interface
type Executor interface {
	// Submit schedules fn with the given priority and returns its completion handle
	Submit(priority int, fn TaskFunc) (*Future, error)

	// SubmitTask schedules a Task using its own priority
	SubmitTask(task Task) (*Future, error)

	// Shutdown stops accepting work; when wait is true it blocks until every worker exited
	Shutdown(wait bool)

	// ShutdownContext is Shutdown(true) bounded by ctx
	ShutdownContext(ctx context.Context) error

	// Close is Shutdown(true)
	Close() error

	// Stats returns executor statistics
	Stats() ExecutorStats
}

// ExecutorStats defines statistics for a priority executor
type ExecutorStats struct {
	// MaxWorkers is the configured worker cap
	MaxWorkers int

	// LiveWorkers is the number of worker goroutines currently running
	LiveWorkers int

	// PeakWorkers is the highest LiveWorkers ever observed
	PeakWorkers int

	// SpawnedWorkers is the total number of workers ever started
	SpawnedWorkers int64

	// QueueSize is the number of queued entries, shutdown probes included
	QueueSize int

	// QueuedTasks is the number of queued entries that carry work
	QueuedTasks int

	// Submitted, Completed and Failed count tasks
	Submitted int64
	Completed int64
	Failed    int64

	// ShutDown reports whether shutdown was requested
	ShutDown bool

	// AverageWaitTime is the mean time tasks spent queued before running
	AverageWaitTime time.Duration
}

// Pending returns the number of accepted tasks that have not resolved yet
func (s ExecutorStats) Pending() int64 {
	return s.Submitted - s.Completed - s.Failed
}
