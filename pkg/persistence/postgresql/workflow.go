package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// CreateWithSteps inserts the workflow row and all step result rows in a
// single transaction so partial workflows are never visible.
func (r *WorkflowRepository) CreateWithSteps(ctx context.Context, workflow *models.Workflow, steps []*models.StepResult) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	planJSON, err := json.Marshal(workflow.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, user_message, requester_address, plan, status, current_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, workflow.ID, workflow.UserMessage, workflow.RequesterAddress, planJSON, workflow.Status, workflow.CurrentStep, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("CreateWithSteps", workflow.ID, err)
	}

	for _, step := range steps {
		if step.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate step result ID: %w", err)
			}

			step.ID = id.String()
		}

		step.WorkflowID = workflow.ID

		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}

		step.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_results (id, workflow_id, step_number, agent_id, agent_name, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, step.ID, step.WorkflowID, step.StepNumber, step.AgentID, step.AgentName, step.Status, step.CreatedAt, step.UpdatedAt)
		if err != nil {
			return persistence.NewStoreError("CreateWithSteps", step.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow creation: %w", err)
	}

	return nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id
		  , user_message
		  , requester_address
		  , plan
		  , status
		  , current_step
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`, id)

	workflow := &models.Workflow{}

	var planJSON []byte

	err := row.Scan(
		&workflow.ID,
		&workflow.UserMessage,
		&workflow.RequesterAddress,
		&planJSON,
		&workflow.Status,
		&workflow.CurrentStep,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if len(planJSON) > 0 {
		workflow.Plan = &models.Plan{}

		err = json.Unmarshal(planJSON, workflow.Plan)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
	}

	return workflow, nil
}

// allowedPriorStatuses returns the statuses a workflow may hold immediately
// before transitioning to next.
func allowedPriorStatuses(next models.WorkflowStatus) []models.WorkflowStatus {
	prior := make([]models.WorkflowStatus, 0, 2)

	for _, status := range []models.WorkflowStatus{
		models.WorkflowStatusPlanned,
		models.WorkflowStatusApproved,
		models.WorkflowStatusRunning,
	} {
		if status.CanTransitionTo(next) {
			prior = append(prior, status)
		}
	}

	return prior
}

// UpdateStatus transitions the workflow status with a guarded compare-and-set.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus) error {
	return r.guardedUpdate(ctx, "UpdateStatus", id, status, `
		UPDATE workflows
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`)
}

// SetRunning marks the workflow running and positions it at step 1.
func (r *WorkflowRepository) SetRunning(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx, "SetRunning", id, models.WorkflowStatusRunning, `
		UPDATE workflows
		SET status = $2, current_step = 1, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`)
}

func (r *WorkflowRepository) guardedUpdate(ctx context.Context, op, id string, status models.WorkflowStatus, query string) error {
	prior := allowedPriorStatuses(status)
	priorStrings := make([]string, len(prior))

	for i, s := range prior {
		priorStrings[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(), pq.Array(priorStrings))
	if err != nil {
		return persistence.NewStoreError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		// Distinguish a missing row from a rejected transition.
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check workflow existence: %w", err)
		}

		if !exists {
			return persistence.NewStoreError(op, id, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewStoreError(op, id, persistence.ErrWorkflowTransition)
	}

	return nil
}

// SetCurrentStep advances the 1-based step cursor of a running workflow.
func (r *WorkflowRepository) SetCurrentStep(ctx context.Context, id string, step int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows
		SET current_step = $2, updated_at = $3
		WHERE id = $1
	`, id, step, time.Now().UTC())
	if err != nil {
		return persistence.NewStoreError("SetCurrentStep", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("SetCurrentStep", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
