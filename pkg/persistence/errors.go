// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepNotFound indicates a step result was not found by id or (workflow, number).
	ErrStepNotFound = errors.New("step result not found")

	// ErrAgentNotFound indicates an agent was not found in the catalog.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrWorkflowAlreadyExists indicates a workflow with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrWorkflowTransition indicates a workflow status write that would
	// violate the forward-only lifecycle.
	ErrWorkflowTransition = errors.New("invalid workflow status transition")

	// ErrStepTransition indicates a step status write that would violate the
	// monotonic step lifecycle.
	ErrStepTransition = errors.New("invalid step status transition")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g., "GetByID", "MarkDispatched")
	ID  string // Record ID if applicable
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for store errors.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, id string, err error) *StoreError {
	return &StoreError{Op: op, ID: id, Err: err}
}

// IsNotFound checks whether an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrAgentNotFound)
}

// IsTransitionViolation checks whether an error is a rejected status write.
func IsTransitionViolation(err error) bool {
	return errors.Is(err, ErrWorkflowTransition) || errors.Is(err, ErrStepTransition)
}
