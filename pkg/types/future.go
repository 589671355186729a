package types

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Future is the completion handle of a submitted task.
// It is resolved exactly once, by the worker that ran the task.
type Future struct {
	done chan struct{}
	once sync.Once

	value any
	err   error

	mu        sync.Mutex
	callbacks []func(any, error)
}

// NewFuture creates a pending future
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve completes the future. It returns false if the future was already resolved.
// Completion callbacks run on the calling goroutine after the result is published.
// A panicking callback is logged through zap's global logger and the remaining
// callbacks still run.
func (f *Future) Resolve(value any, err error) bool {
	return f.ResolveWith(value, err, nil)
}

// ResolveWith is Resolve with onPanic receiving every value recovered from a
// panicking callback. A nil onPanic logs through zap's global logger.
func (f *Future) ResolveWith(value any, err error, onPanic func(recovered any)) bool {
	resolved := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.err = err
		close(f.done)
		callbacks := f.callbacks
		f.callbacks = nil
		f.mu.Unlock()

		resolved = true
		for _, cb := range callbacks {
			invokeCallback(cb, value, err, onPanic)
		}
	})
	return resolved
}

// invokeCallback runs cb, keeping a panic from reaching the resolver
func invokeCallback(cb func(any, error), value any, err error, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil {
			if onPanic == nil {
				zap.L().Error("exception calling future callback", zap.Any("panic", r))
				return
			}
			onPanic(r)
		}
	}()
	cb(value, err)
}

// Done returns a channel closed once the future is resolved
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future is resolved and returns its outcome
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}

// Wait is Result bounded by ctx
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err blocks until the future is resolved and returns its error
func (f *Future) Err() error {
	<-f.done
	return f.err
}

// OnComplete registers cb to run once the future is resolved.
// If the future is already resolved cb runs immediately on the caller;
// a panic from it is then logged through zap's global logger.
func (f *Future) OnComplete(cb func(any, error)) {
	if cb == nil {
		return
	}
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		invokeCallback(cb, f.value, f.err, nil)
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// TypedFuture is a type-safe view over a Future
type TypedFuture[T any] struct {
	*Future
}

// NewTypedFuture wraps f
func NewTypedFuture[T any](f *Future) *TypedFuture[T] {
	return &TypedFuture[T]{Future: f}
}

// Result blocks until resolved and returns the typed value
func (tf *TypedFuture[T]) Result() (T, error) {
	v, err := tf.Future.Result()
	return castResult[T](v, err)
}

// Wait is Result bounded by ctx
func (tf *TypedFuture[T]) Wait(ctx context.Context) (T, error) {
	v, err := tf.Future.Wait(ctx)
	return castResult[T](v, err)
}

func castResult[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("future result has type %T, want %T", v, zero)
	}
	return typed, nil
}
