package worker

import (
	"context"
	"fmt"

	"github.com/jzx17/prioexec/pkg/types"
)

// BasicTask is the basic implementation of the types.Task interface.
// Its priority is fixed at construction, so it sorts the same for its whole
// life in the queue.
type BasicTask struct {
	id       string
	priority int
	fn       func(ctx context.Context) error
}

// NewBasicTask creates an anonymous task. The executor names it "task-<n>"
// when it is submitted.
func NewBasicTask(priority int, fn func(ctx context.Context) error) *BasicTask {
	return &BasicTask{
		priority: priority,
		fn:       fn,
	}
}

// NewBasicTaskWithID creates a task whose ID shows up in errors and logs
func NewBasicTaskWithID(id string, priority int, fn func(ctx context.Context) error) *BasicTask {
	return &BasicTask{
		id:       id,
		priority: priority,
		fn:       fn,
	}
}

// Execute executes the task
func (t *BasicTask) Execute(ctx context.Context) error {
	if t.fn == nil {
		return fmt.Errorf("%w: task %q has no execution function", types.ErrInvalidTask, t.id)
	}
	return t.fn(ctx)
}

// ID returns the task ID, empty for anonymous tasks
func (t *BasicTask) ID() string {
	return t.id
}

// Priority returns the task priority
func (t *BasicTask) Priority() int {
	return t.priority
}
