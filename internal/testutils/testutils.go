// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jzx17/prioexec/pkg/types"
)

// DefaultTimeout bounds every blocking wait in tests
const DefaultTimeout = 5 * time.Second

// Context returns a context with DefaultTimeout, cancelled at test cleanup
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// OrderLog records values from concurrent tasks in the order they arrive
type OrderLog[T any] struct {
	mu     sync.Mutex
	values []T
}

// Append records v
func (l *OrderLog[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
}

// Values returns a copy of the recorded values
func (l *OrderLog[T]) Values() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.values))
	copy(out, l.values)
	return out
}

// Len returns the number of recorded values
func (l *OrderLog[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// NewObservedLogger returns a logger whose entries at or above level are captured
func NewObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// RequireResolved waits for every future to resolve within DefaultTimeout
func RequireResolved(t testing.TB, futures ...*types.Future) {
	t.Helper()
	ctx := Context(t)
	for i, f := range futures {
		select {
		case <-f.Done():
		case <-ctx.Done():
			require.FailNow(t, "future not resolved", "future %d of %d still pending", i+1, len(futures))
		}
	}
}

// Gate blocks tasks until Open is called
type Gate struct {
	ch   chan struct{}
	once sync.Once
}

// NewGate creates a closed gate
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Wait blocks until the gate is opened
func (g *Gate) Wait() {
	<-g.ch
}

// Open releases every current and future waiter
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}
