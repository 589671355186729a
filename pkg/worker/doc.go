/*
Package worker provides a priority executor: a goroutine pool that runs submitted tasks lowest priority first instead of in submission order.

# Overview

The Executor keeps a single unbounded priority queue shared by all of its workers:
- Workers are started lazily, one per submission, up to MaxWorkers
- Lower priority values run first; equal priorities run in submission order
- Every submission returns a types.Future resolved by the worker that ran it
- Panics inside tasks are recovered and delivered through the future
- Shutdown lets queued tasks finish before workers exit

# Shutdown Probes

Shutdown is signalled through the queue itself. A probe entry sorts after every
task, so a worker only sees it when no task is left ahead of it. A worker that
dequeues a probe checks whether its executor was shut down, was garbage
collected, or whether the exit registry is draining. If so it puts a new probe
back for its siblings and exits; otherwise it drops the probe and keeps waiting.

Workers hold only a weak pointer to their Executor. When the Executor becomes
unreachable a runtime cleanup pushes one probe, so forgetting to call Shutdown
does not leak goroutines forever.

# Exit Registry

Every worker is registered in an ExitRegistry (DefaultExitRegistry unless the
config names another). DrainAll rejects further submissions, pushes a probe into
every registered queue and joins every worker. Programs should defer Exit from
main:

	func main() {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = worker.Exit(ctx)
		}()
		...
	}

# Usage Examples

Basic usage:

	config := worker.DefaultExecutorConfig()
	config.MaxWorkers = 4

	executor, err := worker.NewExecutor(config)
	if err != nil {
		log.Fatal(err)
	}
	defer executor.Close()

	future, err := executor.Submit(10, func(ctx context.Context) (any, error) {
		return "done", nil
	})
	if err != nil {
		log.Printf("Failed to submit task: %v", err)
	}

	value, err := future.Result()

Typed results:

	f, _ := worker.SubmitTyped(executor, 1, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	n, err := f.Result()

# Configuration Options

ExecutorConfig supports the following configurations:
- MaxWorkers: cap on concurrent worker goroutines (default min(32, NumCPU+4))
- ThreadNamePrefix: worker names for logs and pprof labels
- Initializer: per-worker setup hook; a failure breaks the executor
- Logger: zap logger for lifecycle and failure logs
- Clock: time source, mockable in tests
- Registry: exit registry the workers join

The same options (max_workers, thread_name_prefix) can be loaded from YAML with
LoadExecutorConfig.
*/
package worker
