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
	"github.com/lib/pq"
)

const stepResultColumns = `
	id
  , workflow_id
  , step_number
  , agent_id
  , agent_name
  , status
  , job_id
  , unsigned_group_txns
  , txn_ids
  , access_token
  , output
  , failure_reason
  , completed_at
  , created_at
  , updated_at
`

// StepResultRepository handles step result database operations. Every status
// write is a compare-and-set scoped to the allowed prior statuses, so the
// monotonic step lifecycle is enforced at the store.
type StepResultRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepResultRepository creates a new step result repository.
func NewStepResultRepository(db *sql.DB, logger *slog.Logger) *StepResultRepository {
	return &StepResultRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStepResult(row rowScanner) (*models.StepResult, error) {
	step := &models.StepResult{}

	var (
		jobID         sql.NullString
		unsignedTxns  []byte
		txnIDs        []byte
		accessToken   sql.NullString
		output        sql.NullString
		failureReason sql.NullString
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepNumber,
		&step.AgentID,
		&step.AgentName,
		&step.Status,
		&jobID,
		&unsignedTxns,
		&txnIDs,
		&accessToken,
		&output,
		&failureReason,
		&completedAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.JobID = jobID.String
	step.AccessToken = accessToken.String
	step.Output = output.String
	step.FailureReason = failureReason.String

	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}

	if len(unsignedTxns) > 0 {
		err = json.Unmarshal(unsignedTxns, &step.UnsignedTxns)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal unsigned transactions: %w", err)
		}
	}

	if len(txnIDs) > 0 {
		err = json.Unmarshal(txnIDs, &step.TxnIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction ids: %w", err)
		}
	}

	return step, nil
}

// GetByID returns a step result by its ID.
func (r *StepResultRepository) GetByID(ctx context.Context, id string) (*models.StepResult, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+stepResultColumns+" FROM step_results WHERE id = $1", id)

	step, err := scanStepResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", id, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan step result: %w", err)
	}

	return step, nil
}

// GetByWorkflowAndStep returns the step result for (workflow_id, step_number).
func (r *StepResultRepository) GetByWorkflowAndStep(ctx context.Context, workflowID string, stepNumber int) (*models.StepResult, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+stepResultColumns+" FROM step_results WHERE workflow_id = $1 AND step_number = $2",
		workflowID, stepNumber)

	step, err := scanStepResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByWorkflowAndStep", workflowID, persistence.ErrStepNotFound)
		}

		return nil, fmt.Errorf("failed to scan step result: %w", err)
	}

	return step, nil
}

// ListByWorkflow returns all step results of a workflow ordered by step number.
func (r *StepResultRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.StepResult, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+stepResultColumns+" FROM step_results WHERE workflow_id = $1 ORDER BY step_number",
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step results: %w", err)
	}

	return r.collect(ctx, rows)
}

// ListPollable returns steps of running workflows waiting on a remote job.
func (r *StepResultRepository) ListPollable(ctx context.Context) ([]*models.StepResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stepResultColumns+`
		FROM step_results
		WHERE status IN ('payment_confirmed', 'running')
		  AND workflow_id IN (SELECT id FROM workflows WHERE status = 'running')
		ORDER BY workflow_id, step_number
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pollable steps: %w", err)
	}

	return r.collect(ctx, rows)
}

func (r *StepResultRepository) collect(ctx context.Context, rows *sql.Rows) ([]*models.StepResult, error) {
	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.StepResult, 0)

	for rows.Next() {
		step, err := scanStepResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}

		steps = append(steps, step)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step results: %w", err)
	}

	return steps, nil
}

// allowedPriorStepStatuses returns the statuses a step may hold immediately
// before transitioning to next.
func allowedPriorStepStatuses(next models.StepStatus) []string {
	prior := make([]string, 0, 4)

	for _, status := range []models.StepStatus{
		models.StepStatusPending,
		models.StepStatusAwaitingPayment,
		models.StepStatusPaymentConfirmed,
		models.StepStatusRunning,
	} {
		if status.CanTransitionTo(next) {
			prior = append(prior, string(status))
		}
	}

	return prior
}

func (r *StepResultRepository) guardedUpdate(ctx context.Context, op, id string, next models.StepStatus, set string, args ...any) error {
	query := fmt.Sprintf(`
		UPDATE step_results
		SET status = $2, updated_at = $3%s
		WHERE id = $1 AND status = ANY($4)
	`, set)

	queryArgs := append([]any{id, next, time.Now().UTC(), pq.Array(allowedPriorStepStatuses(next))}, args...)

	result, err := r.db.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		return persistence.NewStoreError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM step_results WHERE id = $1)", id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check step existence: %w", err)
		}

		if !exists {
			return persistence.NewStoreError(op, id, persistence.ErrStepNotFound)
		}

		return persistence.NewStoreError(op, id, persistence.ErrStepTransition)
	}

	return nil
}

// MarkDispatched records the job handle and unsigned transactions.
func (r *StepResultRepository) MarkDispatched(ctx context.Context, id, jobID string, unsignedTxns []string) error {
	txnsJSON, err := json.Marshal(unsignedTxns)
	if err != nil {
		return fmt.Errorf("failed to marshal unsigned transactions: %w", err)
	}

	return r.guardedUpdate(ctx, "MarkDispatched", id, models.StepStatusAwaitingPayment,
		", job_id = $5, unsigned_group_txns = $6", jobID, txnsJSON)
}

// MarkPaid records the access token and submitted transaction ids.
func (r *StepResultRepository) MarkPaid(ctx context.Context, id, accessToken string, txnIDs []string) error {
	idsJSON, err := json.Marshal(txnIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction ids: %w", err)
	}

	return r.guardedUpdate(ctx, "MarkPaid", id, models.StepStatusPaymentConfirmed,
		", access_token = $5, txn_ids = $6", accessToken, idsJSON)
}

// MarkRunning refreshes the step as running; idempotent while polling.
func (r *StepResultRepository) MarkRunning(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx, "MarkRunning", id, models.StepStatusRunning, "")
}

// MarkSucceeded records the output and completion timestamp.
func (r *StepResultRepository) MarkSucceeded(ctx context.Context, id, output string) error {
	return r.guardedUpdate(ctx, "MarkSucceeded", id, models.StepStatusSucceeded,
		", output = $5, completed_at = $6", output, time.Now().UTC())
}

// MarkFailed records the failure reason and completion timestamp.
func (r *StepResultRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.guardedUpdate(ctx, "MarkFailed", id, models.StepStatusFailed,
		", failure_reason = $5, completed_at = $6", reason, time.Now().UTC())
}

// MarkCancelled terminates a non-terminal step.
func (r *StepResultRepository) MarkCancelled(ctx context.Context, id string) error {
	return r.guardedUpdate(ctx, "MarkCancelled", id, models.StepStatusCancelled,
		", completed_at = $5", time.Now().UTC())
}
