package models

import "time"

// StepStatus represents the execution state of one planned step.
//
// Transitions are strictly forward:
//
//	pending -> awaiting_payment -> payment_confirmed -> running -> {succeeded | failed}
//
// running may be re-written while polling (a timestamp refresh), and any
// non-terminal status may move to cancelled. Terminal statuses absorb.
type StepStatus string

const (
	StepStatusPending          StepStatus = "pending"           // Created with the workflow, not dispatched
	StepStatusAwaitingPayment  StepStatus = "awaiting_payment"  // Job created, unsigned transactions returned
	StepStatusPaymentConfirmed StepStatus = "payment_confirmed" // Payment submitted, access token recorded
	StepStatusRunning          StepStatus = "running"           // Agent is executing the job
	StepStatusSucceeded        StepStatus = "succeeded"         // Terminal, output recorded
	StepStatusFailed           StepStatus = "failed"            // Terminal
	StepStatusCancelled        StepStatus = "cancelled"         // Terminal, requester stopped the step
)

// Terminal reports whether the status is a terminal state.
func (s StepStatus) Terminal() bool {
	return s == StepStatusSucceeded || s == StepStatusFailed || s == StepStatusCancelled
}

// CanTransitionTo reports whether a transition from s to next is allowed.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s.Terminal() {
		return false
	}

	if next == StepStatusCancelled || next == StepStatusFailed {
		return true
	}

	switch s {
	case StepStatusPending:
		return next == StepStatusAwaitingPayment
	case StepStatusAwaitingPayment:
		return next == StepStatusPaymentConfirmed
	case StepStatusPaymentConfirmed:
		return next == StepStatusRunning || next == StepStatusSucceeded
	case StepStatusRunning:
		// running -> running is the idempotent poll refresh.
		return next == StepStatusRunning || next == StepStatusSucceeded
	case StepStatusSucceeded, StepStatusFailed, StepStatusCancelled:
		return false
	}

	return false
}

// StepResult is the mutable execution record tracking one StepSpec.
// Exactly one exists per planned step, created alongside the workflow.
type StepResult struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	StepNumber    int        `json:"step_number"`
	AgentID       string     `json:"agent_id"`
	AgentName     string     `json:"agent_name"`
	Status        StepStatus `json:"status"`
	JobID         string     `json:"job_id,omitempty"`
	UnsignedTxns  []string   `json:"unsigned_group_txns,omitempty"`
	TxnIDs        []string   `json:"txn_ids,omitempty"`
	AccessToken   string     `json:"access_token,omitempty"`
	Output        string     `json:"output,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
