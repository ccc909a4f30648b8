package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
	"github.com/0rca-network/conductor/pkg/persistence/postgresql"
	"github.com/0rca-network/conductor/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"step_results", "workflows", "agents", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("conductor_test"),
			postgres.WithUsername("conductor"),
			postgres.WithPassword("conductor"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "step_results", "agents", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}
}

func seedWorkflow(ctx context.Context, t *testing.T, store *postgresql.Persistence) (*models.Workflow, []*models.StepResult) {
	t.Helper()

	workflow := testutil.CreateTestWorkflow(testutil.WithPlan(testutil.CreateTestPlan("summarizer", "translator")))
	steps := testutil.CreateTestSteps(workflow)

	err := store.WorkflowRepository().CreateWithSteps(ctx, workflow, steps)
	require.NoError(t, err)

	return workflow, steps
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow, steps := seedWorkflow(ctx, t, store)

	loaded, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.UserMessage, loaded.UserMessage)
	assert.Equal(t, workflow.RequesterAddress, loaded.RequesterAddress)
	assert.Equal(t, models.WorkflowStatusPlanned, loaded.Status)
	require.NotNil(t, loaded.Plan)
	require.Len(t, loaded.Plan.Steps, 2)
	assert.Equal(t, "summarizer", loaded.Plan.Steps[0].AgentID)

	listed, err := store.StepResultRepository().ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, listed, len(steps))
	assert.Equal(t, 1, listed[0].StepNumber)
	assert.Equal(t, models.StepStatusPending, listed[0].Status)

	_, err = store.WorkflowRepository().GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, persistence.IsNotFound(err))
}

func TestWorkflowRepository_GuardedTransitions(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow, _ := seedWorkflow(ctx, t, store)
	repo := store.WorkflowRepository()

	require.NoError(t, repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusApproved))
	require.NoError(t, repo.SetRunning(ctx, workflow.ID))

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRunning, loaded.Status)
	assert.Equal(t, 1, loaded.CurrentStep)

	// Backwards transition hits the compare-and-set guard.
	err = repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusApproved)
	assert.True(t, persistence.IsTransitionViolation(err))

	require.NoError(t, repo.SetCurrentStep(ctx, workflow.ID, 2))
	require.NoError(t, repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusCompleted))

	err = repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusFailed)
	assert.True(t, persistence.IsTransitionViolation(err))

	err = repo.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", models.WorkflowStatusApproved)
	assert.True(t, persistence.IsNotFound(err))
}

func TestStepResultRepository_Lifecycle(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, steps := seedWorkflow(ctx, t, store)
	repo := store.StepResultRepository()
	step := steps[0]

	require.NoError(t, repo.MarkDispatched(ctx, step.ID, "job-1", []string{"txn-a", "txn-b"}))
	require.NoError(t, repo.MarkPaid(ctx, step.ID, "token-1", []string{"txid-1"}))
	require.NoError(t, repo.MarkRunning(ctx, step.ID))
	require.NoError(t, repo.MarkRunning(ctx, step.ID)) // poll refresh
	require.NoError(t, repo.MarkSucceeded(ctx, step.ID, `{"summary":"done"}`))

	loaded, err := repo.GetByID(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSucceeded, loaded.Status)
	assert.Equal(t, "job-1", loaded.JobID)
	assert.Equal(t, []string{"txn-a", "txn-b"}, loaded.UnsignedTxns)
	assert.Equal(t, []string{"txid-1"}, loaded.TxnIDs)
	assert.Equal(t, "token-1", loaded.AccessToken)
	assert.Equal(t, `{"summary":"done"}`, loaded.Output)
	require.NotNil(t, loaded.CompletedAt)

	// Terminal steps absorb.
	err = repo.MarkRunning(ctx, step.ID)
	assert.True(t, persistence.IsTransitionViolation(err))

	err = repo.MarkCancelled(ctx, step.ID)
	assert.True(t, persistence.IsTransitionViolation(err))
}

func TestStepResultRepository_TransitionGuards(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, steps := seedWorkflow(ctx, t, store)
	repo := store.StepResultRepository()

	err := repo.MarkPaid(ctx, steps[0].ID, "token", []string{"txid"})
	assert.True(t, persistence.IsTransitionViolation(err))

	err = repo.MarkRunning(ctx, steps[0].ID)
	assert.True(t, persistence.IsTransitionViolation(err))

	err = repo.MarkDispatched(ctx, "00000000-0000-0000-0000-000000000000", "job", nil)
	assert.True(t, persistence.IsNotFound(err))

	require.NoError(t, repo.MarkFailed(ctx, steps[0].ID, "gave up"))

	loaded, err := repo.GetByID(ctx, steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusFailed, loaded.Status)
	assert.Equal(t, "gave up", loaded.FailureReason)
}

func TestStepResultRepository_ListPollable(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow, steps := seedWorkflow(ctx, t, store)
	repo := store.StepResultRepository()

	require.NoError(t, repo.MarkDispatched(ctx, steps[0].ID, "job-1", nil))
	require.NoError(t, repo.MarkPaid(ctx, steps[0].ID, "token-1", nil))

	// Paid step of a non-running workflow is not pollable.
	pollable, err := repo.ListPollable(ctx)
	require.NoError(t, err)
	assert.Empty(t, pollable)

	require.NoError(t, store.WorkflowRepository().SetRunning(ctx, workflow.ID))

	pollable, err = repo.ListPollable(ctx)
	require.NoError(t, err)
	require.Len(t, pollable, 1)
	assert.Equal(t, steps[0].ID, pollable[0].ID)
}

func TestAgentRepository_Upsert(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	repo := store.AgentRepository()
	agent := testutil.CreateTestAgent()

	require.NoError(t, repo.SaveAgent(ctx, agent))

	agent.Description = "Summarizes text, now with citations"
	require.NoError(t, repo.SaveAgent(ctx, agent))

	loaded, err := repo.AgentByID(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Summarizes text, now with citations", loaded.Description)
	assert.Equal(t, agent.Tags, loaded.Tags)

	inactive := testutil.CreateTestAgent(
		testutil.WithAgentID("retired"),
		testutil.WithAgentStatus(models.AgentStatusInactive),
	)
	require.NoError(t, repo.SaveAgent(ctx, inactive))

	active, err := repo.ActiveAgents(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, agent.ID, active[0].ID)

	_, err = repo.AgentByID(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))
}
