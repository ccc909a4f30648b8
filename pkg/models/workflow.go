// Package models defines the core domain models for multi-agent workflow orchestration.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusPlanned   WorkflowStatus = "planned"   // Plan generated, awaiting approval
	WorkflowStatusApproved  WorkflowStatus = "approved"  // Approved by the requester, not started
	WorkflowStatusRunning   WorkflowStatus = "running"   // Steps are being executed
	WorkflowStatusCompleted WorkflowStatus = "completed" // All steps succeeded
	WorkflowStatusFailed    WorkflowStatus = "failed"    // Terminally failed
)

// Terminal reports whether the status is a terminal state.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// CanTransitionTo reports whether a transition from s to next is allowed.
// Transitions are strictly forward; terminal states absorb.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	switch s {
	case WorkflowStatusPlanned:
		// planned -> running is tolerated as an implicit approval.
		return next == WorkflowStatusApproved || next == WorkflowStatusRunning
	case WorkflowStatusApproved:
		return next == WorkflowStatusRunning
	case WorkflowStatusRunning:
		return next == WorkflowStatusCompleted || next == WorkflowStatusFailed
	case WorkflowStatusCompleted, WorkflowStatusFailed:
		return false
	}

	return false
}

// Workflow represents one user-initiated multi-step agent request.
// CurrentStep is 1-based and only meaningful while the workflow is running.
type Workflow struct {
	ID               string         `json:"id"`
	UserMessage      string         `json:"user_message"      validate:"required"`
	RequesterAddress string         `json:"requester_address" validate:"required"`
	Plan             *Plan          `json:"plan"`
	Status           WorkflowStatus `json:"status"`
	CurrentStep      int            `json:"current_step"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TotalSteps returns the number of planned steps.
func (w *Workflow) TotalSteps() int {
	if w.Plan == nil {
		return 0
	}

	return len(w.Plan.Steps)
}
