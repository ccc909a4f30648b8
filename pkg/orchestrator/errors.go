// Package orchestrator drives multi-step agent workflows: plan creation,
// step dispatch, payment-gated token acquisition, completion polling, and
// workflow advancement.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/0rca-network/conductor/pkg/agentclient"
	"github.com/0rca-network/conductor/pkg/persistence"
	"github.com/0rca-network/conductor/pkg/planner"
)

var (
	// ErrStateViolation indicates an operation was invoked on a workflow or
	// step in the wrong status. Rejected defensively to preserve the
	// monotonic status invariant.
	ErrStateViolation = errors.New("operation not allowed in current state")

	// ErrStepTerminal indicates a poll or mutation against a step that has
	// already reached a terminal status.
	ErrStepTerminal = errors.New("step already reached a terminal status")
)

// StateError carries the offending operation and record for a rejected call.
type StateError struct {
	Op     string
	ID     string
	Detail string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s rejected for %s: %s", e.Op, e.ID, e.Detail)
}

func (e *StateError) Is(target error) bool {
	return target == ErrStateViolation
}

func newStateError(op, id, detail string) *StateError {
	return &StateError{Op: op, ID: id, Detail: detail}
}

// IsPlanningFailure reports whether the plan generator produced no valid plan.
func IsPlanningFailure(err error) bool {
	return errors.Is(err, planner.ErrPlanningFailed) || errors.Is(err, planner.ErrNoActiveAgents)
}

// IsContractViolation reports whether an agent reply was missing required fields.
func IsContractViolation(err error) bool {
	return errors.Is(err, agentclient.ErrContract)
}

// IsTransportFailure reports whether an agent or planner call failed at the
// transport level; the same operation may be retried with no state advanced.
func IsTransportFailure(err error) bool {
	return errors.Is(err, agentclient.ErrTransport)
}

// IsStateViolation reports whether a caller invoked an operation in the
// wrong workflow or step status.
func IsStateViolation(err error) bool {
	return errors.Is(err, ErrStateViolation) ||
		errors.Is(err, ErrStepTerminal) ||
		persistence.IsTransitionViolation(err)
}

// IsNotFound reports whether the workflow, step, or agent does not exist.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}
