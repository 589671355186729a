package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"
	"weak"

	"go.uber.org/zap"

	"github.com/jzx17/prioexec/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents a worker waiting on the queue
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking represents a worker running a task
	WorkerStateWorking
	// WorkerStateExited represents a worker whose goroutine has returned
	WorkerStateExited
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// workerHandle identifies a worker goroutine and is its join point
type workerHandle struct {
	id   int
	name string
	done chan struct{}

	state          int32 // atomic WorkerState
	totalProcessed int64
	totalFailed    int64
	lastTaskTime   int64 // Unix nanosecond timestamp
}

func newWorkerHandle(id int, name string) *workerHandle {
	return &workerHandle{
		id:    id,
		name:  name,
		done:  make(chan struct{}),
		state: int32(WorkerStateIdle),
	}
}

func (h *workerHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *workerHandle) setState(state WorkerState) {
	atomic.StoreInt32(&h.state, int32(state))
}

// Stats gets worker statistics
func (h *workerHandle) Stats() WorkerStats {
	var last time.Time
	if ns := atomic.LoadInt64(&h.lastTaskTime); ns != 0 {
		last = time.Unix(0, ns)
	}
	return WorkerStats{
		ID:             h.id,
		Name:           h.name,
		State:          WorkerState(atomic.LoadInt32(&h.state)),
		TotalProcessed: atomic.LoadInt64(&h.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&h.totalFailed),
		LastTaskTime:   last,
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	Name           string
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// IsActive checks if Worker is running a task
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateWorking
}

// poolWorker runs the dequeue-and-execute-or-probe loop on its own goroutine.
// It holds only a weak reference to its Executor.
type poolWorker struct {
	handle   *workerHandle
	queue    *priorityWorkQueue
	state    *poolState
	registry *ExitRegistry
	owner    weak.Pointer[Executor]

	initializer func(ctx context.Context) error
	logger      *zap.Logger
	clock       types.Clock

	// afterTake runs on every dequeued entry before it is dispatched; tests only
	afterTake func(e *entry)
}

// run is the worker goroutine body
func (w *poolWorker) run() {
	defer w.exit()

	labels := pprof.Labels("worker", w.handle.name)
	pprof.Do(context.Background(), labels, func(ctx context.Context) {
		w.logger.Debug("worker started")
		if err := w.initialize(ctx); err != nil {
			w.logger.Error("worker initializer failed", zap.Error(err))
			w.breakPool(err)
			return
		}
		w.loop(ctx)
	})
}

// initialize runs the configured initializer, converting a panic into an error
func (w *poolWorker) initialize(ctx context.Context) (err error) {
	if w.initializer == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initializer panic: %v", r)
		}
	}()
	return w.initializer(ctx)
}

// loop runs until the worker decides to exit. A panic that escapes task
// execution ends this worker only.
func (w *poolWorker) loop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("exception in worker",
				zap.String("severity", "critical"),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	for {
		e := w.queue.take()
		if w.afterTake != nil {
			w.afterTake(e)
		}
		if !e.isProbe() {
			w.runTask(ctx, e)
			continue
		}

		if w.shouldExit() {
			// forward so a sibling sees it too
			w.queue.put(newProbe())
			w.logger.Debug("worker received shutdown probe, exiting")
			return
		}
		w.logger.Debug("ignoring shutdown probe, executor still running")
	}
}

// shouldExit decides what a dequeued probe means for this worker
func (w *poolWorker) shouldExit() bool {
	if w.registry.Draining() {
		return true
	}
	ex := w.owner.Value()
	if ex == nil {
		return true
	}
	return ex.isShutdown()
}

// runTask executes one task and resolves its future
func (w *poolWorker) runTask(ctx context.Context, e *entry) {
	w.handle.setState(WorkerStateWorking)
	defer w.handle.setState(WorkerStateIdle)

	atomic.StoreInt64(&w.handle.lastTaskTime, w.clock.Now().UnixNano())
	w.state.recordWait(w.clock.Since(e.submittedAt))

	value, err := w.execute(ctx, e)
	if err != nil {
		atomic.AddInt64(&w.handle.totalFailed, 1)
		atomic.AddInt64(&w.state.failed, 1)
	} else {
		atomic.AddInt64(&w.handle.totalProcessed, 1)
		atomic.AddInt64(&w.state.completed, 1)
	}

	e.future.ResolveWith(value, err, func(recovered any) {
		w.logger.Error("exception calling future callback",
			zap.String("task", e.id),
			zap.Any("panic", recovered))
	})
}

// execute runs the task function with panic recovery
func (w *poolWorker) execute(ctx context.Context, e *entry) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", r)
			}
			value = nil
			err = types.NewExecutorError("task", e.id, cause).
				WithContext("panic", r).
				WithContext("stack_trace", string(buf[:n])).
				WithContext("worker", w.handle.name)
		}
	}()

	return e.fn(ctx)
}

// breakPool marks the executor unusable after an initializer failure, fails
// every queued task and lets sibling workers exit.
func (w *poolWorker) breakPool(cause error) {
	if !w.state.markBroken() {
		return
	}

	for {
		e, ok := w.queue.tryTake()
		if !ok {
			break
		}
		if e.isProbe() {
			continue
		}
		atomic.AddInt64(&w.state.failed, 1)
		e.future.Resolve(nil, types.NewExecutorError("initializer", e.id, types.ErrExecutorBroken).
			WithContext("initializer_error", cause.Error()))
	}
	w.queue.put(newProbe())
}

// exit removes the worker from every bookkeeping structure and releases joiners
func (w *poolWorker) exit() {
	w.handle.setState(WorkerStateExited)
	w.state.removeWorker(w.handle)
	w.registry.unregister(w.handle)
	w.logger.Debug("worker exited")
	close(w.handle.done)
}
