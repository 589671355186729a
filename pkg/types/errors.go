// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrExecutorShutdown indicates the executor no longer accepts submissions
	ErrExecutorShutdown = errors.New("cannot schedule new tasks after shutdown")

	// ErrExecutorBroken indicates a worker initializer failed and the executor is unusable
	ErrExecutorBroken = errors.New("executor is broken: a worker initializer failed")

	// ErrRegistryDraining indicates the exit registry is tearing down all workers
	ErrRegistryDraining = errors.New("exit registry is draining")

	// ErrInvalidTask indicates a nil or otherwise unusable task
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidConfig indicates an invalid executor configuration
	ErrInvalidConfig = errors.New("invalid executor configuration")
)

// ExecutorError represents an error raised while running work on an executor
type ExecutorError struct {
	// Operation is the name of the operation where the error occurred
	Operation string

	// TaskID identifies the task that caused the error, if any
	TaskID string

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *ExecutorError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("executor error in operation %s (task %s): %v", e.Operation, e.TaskID, e.Cause)
	}
	return fmt.Sprintf("executor error in operation %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *ExecutorError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewExecutorError creates a new executor error
func NewExecutorError(operation, taskID string, cause error) *ExecutorError {
	return &ExecutorError{
		Operation: operation,
		TaskID:    taskID,
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *ExecutorError) WithContext(key string, value interface{}) *ExecutorError {
	e.Context[key] = value
	return e
}

// IsPanic reports whether err carries a recovered panic
func IsPanic(err error) bool {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		_, ok := execErr.Context["panic"]
		return ok
	}
	return false
}
