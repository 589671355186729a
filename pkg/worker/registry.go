package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jzx17/prioexec/pkg/types"
)

// ExitRegistry tracks every live worker together with the queue it reads from,
// across all executors that share it. DrainAll stops and joins all of them.
type ExitRegistry struct {
	// gate orders submissions against the start of draining
	gate     sync.RWMutex
	draining atomic.Bool

	mu      sync.Mutex
	entries map[*workerHandle]*priorityWorkQueue

	logger *zap.Logger
}

// NewExitRegistry creates an empty registry. A nil logger uses zap's global logger.
func NewExitRegistry(logger *zap.Logger) *ExitRegistry {
	if logger == nil {
		logger = zap.L()
	}
	return &ExitRegistry{
		entries: make(map[*workerHandle]*priorityWorkQueue),
		logger:  logger,
	}
}

// Global default registry
var (
	defaultRegistry     *ExitRegistry
	defaultRegistryOnce sync.Once
)

// DefaultExitRegistry returns the process-wide registry used by executors
// whose config does not name one.
func DefaultExitRegistry() *ExitRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewExitRegistry(nil)
	})
	return defaultRegistry
}

// Exit drains the process-wide registry. Defer it from main so that no worker
// is left blocked on a queue when the process ends.
func Exit(ctx context.Context) error {
	return DefaultExitRegistry().DrainAll(ctx)
}

// admit holds the gate open for one submission. The returned release must be
// called once the submission has been queued.
func (r *ExitRegistry) admit() (release func(), err error) {
	r.gate.RLock()
	if r.draining.Load() {
		r.gate.RUnlock()
		return nil, types.ErrRegistryDraining
	}
	return r.gate.RUnlock, nil
}

// register records a started worker
func (r *ExitRegistry) register(h *workerHandle, q *priorityWorkQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[h] = q
}

// unregister forgets an exited worker
func (r *ExitRegistry) unregister(h *workerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, h)
}

// Draining reports whether DrainAll has been called
func (r *ExitRegistry) Draining() bool {
	return r.draining.Load()
}

// Len returns the number of registered workers
func (r *ExitRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DrainAll stops admitting work, pushes one probe into every registered queue
// and waits for every registered worker to exit. Queued tasks still run first.
// When ctx expires first the returned error lists the workers still running.
// DrainAll may be called more than once.
func (r *ExitRegistry) DrainAll(ctx context.Context) error {
	r.gate.Lock()
	r.draining.Store(true)
	r.gate.Unlock()

	r.mu.Lock()
	handles := make([]*workerHandle, 0, len(r.entries))
	queues := make(map[*priorityWorkQueue]struct{})
	for h, q := range r.entries {
		handles = append(handles, h)
		queues[q] = struct{}{}
	}
	r.mu.Unlock()

	for q := range queues {
		q.put(newProbe())
	}

	r.logger.Debug("draining workers",
		zap.Int("workers", len(handles)),
		zap.Int("queues", len(queues)))

	if err := waitWorkers(ctx, handles); err != nil {
		r.logger.Warn("workers still running after drain", zap.Error(err))
		return err
	}
	return nil
}

// waitWorkers joins every handle or gives up when ctx is done
func waitWorkers(ctx context.Context, handles []*workerHandle) error {
	for i, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			err := ctx.Err()
			for _, rest := range handles[i:] {
				if !rest.exited() {
					err = multierr.Append(err, fmt.Errorf("worker %s still running", rest.name))
				}
			}
			return err
		}
	}
	return nil
}
