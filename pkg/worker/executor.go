package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"go.uber.org/zap"

	"github.com/jzx17/prioexec/pkg/types"
)

// executorCounter numbers executors that were given no thread name prefix
var executorCounter int64

// poolState is the executor state shared with its workers.
// It must never reference the Executor itself.
type poolState struct {
	mu       sync.Mutex
	shutdown bool
	broken   bool
	live     map[*workerHandle]struct{}
	peak     int
	spawned  int64
	seq      uint64

	// atomic counters
	submitted     int64
	completed     int64
	failed        int64
	started       int64
	totalWaitTime int64 // nanoseconds
}

func newPoolState() *poolState {
	return &poolState{live: make(map[*workerHandle]struct{})}
}

// addWorkerLocked records a new live worker; s.mu must be held
func (s *poolState) addWorkerLocked(h *workerHandle) {
	s.live[h] = struct{}{}
	s.spawned++
	if len(s.live) > s.peak {
		s.peak = len(s.live)
	}
}

func (s *poolState) removeWorker(h *workerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, h)
}

// snapshotLocked returns the live workers; s.mu must be held
func (s *poolState) snapshotLocked() []*workerHandle {
	handles := make([]*workerHandle, 0, len(s.live))
	for h := range s.live {
		handles = append(handles, h)
	}
	return handles
}

func (s *poolState) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown || s.broken
}

// markBroken flags the pool broken and reports whether this call did it
func (s *poolState) markBroken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return false
	}
	s.broken = true
	return true
}

func (s *poolState) recordWait(d time.Duration) {
	atomic.AddInt64(&s.started, 1)
	atomic.AddInt64(&s.totalWaitTime, int64(d))
}

// Executor runs submitted tasks on a lazily grown pool of worker goroutines,
// lowest priority first.
type Executor struct {
	config   ExecutorConfig
	queue    *priorityWorkQueue
	state    *poolState
	registry *ExitRegistry
	logger   *zap.Logger
	clock    types.Clock

	afterTake func(e *entry)
}

var _ types.Executor = (*Executor)(nil)

// NewExecutor creates a new executor. A nil config uses DefaultExecutorConfig.
func NewExecutor(config *ExecutorConfig) (*Executor, error) {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := *config
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultExitRegistry()
	}
	if cfg.ThreadNamePrefix == "" {
		cfg.ThreadNamePrefix = fmt.Sprintf("PriorityExecutor-%d", atomic.AddInt64(&executorCounter, 1)-1)
	}

	e := &Executor{
		config:   cfg,
		queue:    newPriorityWorkQueue(),
		state:    newPoolState(),
		registry: cfg.Registry,
		logger:   cfg.Logger.With(zap.String("executor", cfg.ThreadNamePrefix)),
		clock:    cfg.Clock,
	}

	// Once the executor is unreachable its workers find a probe and exit.
	runtime.AddCleanup(e, func(q *priorityWorkQueue) {
		q.put(newProbe())
	}, e.queue)

	return e, nil
}

// Submit schedules fn with the given priority. Lower priorities run first;
// equal priorities run in submission order. The returned future is resolved
// with fn's result once a worker has run it.
func (e *Executor) Submit(priority int, fn types.TaskFunc) (*types.Future, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: task function cannot be nil", types.ErrInvalidTask)
	}
	return e.submit(priority, "", fn)
}

// SubmitTask schedules task using task.Priority()
func (e *Executor) SubmitTask(task types.Task) (*types.Future, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: task cannot be nil", types.ErrInvalidTask)
	}
	return e.submit(task.Priority(), task.ID(), func(ctx context.Context) (any, error) {
		return nil, task.Execute(ctx)
	})
}

// SubmitTyped schedules fn and returns a typed view of its future
func SubmitTyped[T any](e *Executor, priority int, fn func(ctx context.Context) (T, error)) (*types.TypedFuture[T], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: task function cannot be nil", types.ErrInvalidTask)
	}
	f, err := e.submit(priority, "", func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return types.NewTypedFuture[T](f), nil
}

func (e *Executor) submit(priority int, id string, fn types.TaskFunc) (*types.Future, error) {
	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return nil, types.ErrExecutorBroken
	}
	if s.shutdown {
		return nil, types.ErrExecutorShutdown
	}

	release, err := e.registry.admit()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExecutorShutdown, err)
	}
	defer release()

	s.seq++
	if id == "" {
		id = fmt.Sprintf("task-%d", s.seq)
	}
	future := types.NewFuture()
	e.queue.put(&entry{
		kind:        entryTask,
		priority:    priority,
		seq:         s.seq,
		submittedAt: e.clock.Now(),
		id:          id,
		fn:          fn,
		future:      future,
	})
	atomic.AddInt64(&s.submitted, 1)

	e.adjustWorkerCountLocked()
	return future, nil
}

// adjustWorkerCountLocked starts one more worker if the pool is below its cap.
// The cap is re-checked on every submission, so lost workers get replaced.
func (e *Executor) adjustWorkerCountLocked() {
	s := e.state
	if len(s.live) >= e.config.MaxWorkers {
		return
	}

	h := newWorkerHandle(int(s.spawned), fmt.Sprintf("%s-%d", e.config.ThreadNamePrefix, s.spawned))
	w := &poolWorker{
		handle:      h,
		queue:       e.queue,
		state:       s,
		registry:    e.registry,
		owner:       weak.Make(e),
		initializer: e.config.Initializer,
		logger:      e.logger.With(zap.String("worker", h.name)),
		clock:       e.clock,
		afterTake:   e.afterTake,
	}
	s.addWorkerLocked(h)
	e.registry.register(h, e.queue)
	go w.run()
}

// Shutdown stops accepting submissions. Tasks already queued still run.
// When wait is true Shutdown blocks until every worker has exited.
// It is safe to call more than once.
func (e *Executor) Shutdown(wait bool) {
	handles := e.beginShutdown()
	if !wait {
		return
	}
	for _, h := range handles {
		<-h.done
	}
}

// ShutdownContext is Shutdown(true) bounded by ctx. On timeout it returns
// ctx's error combined with the names of the workers still running.
func (e *Executor) ShutdownContext(ctx context.Context) error {
	return waitWorkers(ctx, e.beginShutdown())
}

// Close shuts the executor down and waits for its workers
func (e *Executor) Close() error {
	e.Shutdown(true)
	return nil
}

func (e *Executor) beginShutdown() []*workerHandle {
	s := e.state
	s.mu.Lock()
	first := !s.shutdown
	s.shutdown = true
	e.queue.put(newProbe())
	handles := s.snapshotLocked()
	s.mu.Unlock()

	if first {
		e.logger.Debug("executor shutting down", zap.Int("live_workers", len(handles)))
	}
	return handles
}

// isShutdown reports whether workers should stop once the queue is drained
func (e *Executor) isShutdown() bool {
	return e.state.closed()
}

// IsShutdown reports whether Shutdown has been called
func (e *Executor) IsShutdown() bool {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.shutdown
}

// IsBroken reports whether a worker initializer failed
func (e *Executor) IsBroken() bool {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.broken
}

// MaxWorkers returns the configured worker cap
func (e *Executor) MaxWorkers() int {
	return e.config.MaxWorkers
}

// ThreadNamePrefix returns the prefix used to name worker goroutines
func (e *Executor) ThreadNamePrefix() string {
	return e.config.ThreadNamePrefix
}

// Stats returns executor statistics
func (e *Executor) Stats() types.ExecutorStats {
	s := e.state
	s.mu.Lock()
	stats := types.ExecutorStats{
		MaxWorkers:     e.config.MaxWorkers,
		LiveWorkers:    len(s.live),
		PeakWorkers:    s.peak,
		SpawnedWorkers: s.spawned,
		ShutDown:       s.shutdown,
	}
	s.mu.Unlock()

	stats.QueueSize = e.queue.len()
	stats.QueuedTasks = e.queue.pendingTasks()
	stats.Submitted = atomic.LoadInt64(&s.submitted)
	stats.Completed = atomic.LoadInt64(&s.completed)
	stats.Failed = atomic.LoadInt64(&s.failed)
	if started := atomic.LoadInt64(&s.started); started > 0 {
		stats.AverageWaitTime = time.Duration(atomic.LoadInt64(&s.totalWaitTime) / started)
	}
	return stats
}

// WorkerStats returns statistics for the live workers
func (e *Executor) WorkerStats() []WorkerStats {
	e.state.mu.Lock()
	handles := e.state.snapshotLocked()
	e.state.mu.Unlock()

	stats := make([]WorkerStats, len(handles))
	for i, h := range handles {
		stats[i] = h.Stats()
	}
	return stats
}
