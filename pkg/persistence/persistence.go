// Package persistence provides the data storage abstraction for workflows,
// step results, and the agent catalog.
package persistence

import (
	"context"

	"github.com/0rca-network/conductor/pkg/models"
)

// Persistence is the single source of truth for orchestration state.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	StepResultRepository() StepResultRepository
	AgentRepository() AgentRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository manages workflow records.
type WorkflowRepository interface {
	// CreateWithSteps persists the workflow and its step results as a single
	// unit: either all rows become visible to subsequent readers or none do.
	CreateWithSteps(ctx context.Context, workflow *models.Workflow, steps []*models.StepResult) error

	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// UpdateStatus transitions the workflow status, rejecting transitions
	// models.WorkflowStatus.CanTransitionTo does not allow.
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus) error

	// SetRunning marks the workflow running and positions it at step 1.
	SetRunning(ctx context.Context, id string) error

	// SetCurrentStep advances the 1-based step cursor.
	SetCurrentStep(ctx context.Context, id string, step int) error
}

// StepResultRepository manages step execution records. All mutations are
// guarded point updates: a write whose current status does not allow the
// transition fails with ErrStepTransition instead of executing.
type StepResultRepository interface {
	GetByID(ctx context.Context, id string) (*models.StepResult, error)
	GetByWorkflowAndStep(ctx context.Context, workflowID string, stepNumber int) (*models.StepResult, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.StepResult, error)

	// ListPollable returns steps of running workflows that are waiting on a
	// remote job (payment_confirmed or running).
	ListPollable(ctx context.Context) ([]*models.StepResult, error)

	// MarkDispatched records the remote job handle and the unsigned payment
	// transactions; pending -> awaiting_payment.
	MarkDispatched(ctx context.Context, id, jobID string, unsignedTxns []string) error

	// MarkPaid records the access token and submitted transaction ids;
	// awaiting_payment -> payment_confirmed.
	MarkPaid(ctx context.Context, id, accessToken string, txnIDs []string) error

	// MarkRunning refreshes the step as running; idempotent while polling.
	MarkRunning(ctx context.Context, id string) error

	// MarkSucceeded records the output and completion timestamp.
	MarkSucceeded(ctx context.Context, id, output string) error

	// MarkFailed records the failure reason and completion timestamp.
	MarkFailed(ctx context.Context, id, reason string) error

	// MarkCancelled terminates a non-terminal step at the requester's behest.
	MarkCancelled(ctx context.Context, id string) error
}

// AgentRepository reads the marketplace agent catalog.
type AgentRepository interface {
	ActiveAgents(ctx context.Context) ([]*models.AgentMetadata, error)
	AgentByID(ctx context.Context, id string) (*models.AgentMetadata, error)
	SaveAgent(ctx context.Context, agent *models.AgentMetadata) error
}
