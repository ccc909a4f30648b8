package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
	"github.com/0rca-network/conductor/pkg/persistence/memory"
	"github.com/0rca-network/conductor/pkg/testutil"
)

func seedWorkflow(t *testing.T, store *memory.Persistence, overrides ...func(*models.Workflow)) (*models.Workflow, []*models.StepResult) {
	t.Helper()

	workflow := testutil.CreateTestWorkflow(overrides...)
	steps := testutil.CreateTestSteps(workflow)

	err := store.WorkflowRepository().CreateWithSteps(context.Background(), workflow, steps)
	require.NoError(t, err)

	return workflow, steps
}

func TestWorkflowRepository_CreateWithSteps(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	workflow, steps := seedWorkflow(t, store)

	t.Run("workflow and steps are readable", func(t *testing.T) {
		loaded, err := store.WorkflowRepository().GetByID(context.Background(), workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStatusPlanned, loaded.Status)
		assert.Equal(t, workflow.UserMessage, loaded.UserMessage)
		require.NotNil(t, loaded.Plan)

		listed, err := store.StepResultRepository().ListByWorkflow(context.Background(), workflow.ID)
		require.NoError(t, err)
		require.Len(t, listed, len(steps))
		assert.Equal(t, models.StepStatusPending, listed[0].Status)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		err := store.WorkflowRepository().CreateWithSteps(context.Background(), workflow, steps)
		assert.ErrorIs(t, err, persistence.ErrWorkflowAlreadyExists)
	})

	t.Run("unknown workflow is not found", func(t *testing.T) {
		_, err := store.WorkflowRepository().GetByID(context.Background(), "missing")
		assert.True(t, persistence.IsNotFound(err))
	})
}

func TestWorkflowRepository_StatusTransitions(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	workflow, _ := seedWorkflow(t, store)

	repo := store.WorkflowRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusApproved))
	require.NoError(t, repo.SetRunning(ctx, workflow.ID))

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusRunning, loaded.Status)
	assert.Equal(t, 1, loaded.CurrentStep)

	t.Run("backwards transition is rejected", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusApproved)
		assert.True(t, persistence.IsTransitionViolation(err))
	})

	t.Run("terminal status absorbs", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusCompleted))

		err := repo.UpdateStatus(ctx, workflow.ID, models.WorkflowStatusFailed)
		assert.True(t, persistence.IsTransitionViolation(err))
	})
}

func TestStepResultRepository_Lifecycle(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	_, steps := seedWorkflow(t, store)
	step := steps[0]

	repo := store.StepResultRepository()
	ctx := context.Background()

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
}

func TestStepResultRepository_TransitionGuards(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	_, steps := seedWorkflow(t, store)
	step := steps[0]

	repo := store.StepResultRepository()
	ctx := context.Background()

	t.Run("cannot pay before dispatch", func(t *testing.T) {
		err := repo.MarkPaid(ctx, step.ID, "token", nil)
		assert.True(t, persistence.IsTransitionViolation(err))
	})

	t.Run("cannot run before payment", func(t *testing.T) {
		err := repo.MarkRunning(ctx, step.ID)
		assert.True(t, persistence.IsTransitionViolation(err))
	})

	t.Run("terminal step absorbs", func(t *testing.T) {
		require.NoError(t, repo.MarkCancelled(ctx, step.ID))

		err := repo.MarkDispatched(ctx, step.ID, "job", nil)
		assert.True(t, persistence.IsTransitionViolation(err))

		err = repo.MarkSucceeded(ctx, step.ID, "late output")
		assert.True(t, persistence.IsTransitionViolation(err))

		loaded, err := repo.GetByID(ctx, step.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StepStatusCancelled, loaded.Status)
		assert.Empty(t, loaded.Output)
	})
}

func TestStepResultRepository_ListPollable(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	ctx := context.Background()

	running := testutil.CreateTestWorkflow(testutil.WithPlan(testutil.CreateTestPlan("summarizer", "translator")))
	runningSteps := testutil.CreateTestSteps(running)
	require.NoError(t, store.WorkflowRepository().CreateWithSteps(ctx, running, runningSteps))
	require.NoError(t, store.WorkflowRepository().SetRunning(ctx, running.ID))

	planned, plannedSteps := seedWorkflow(t, store)

	repo := store.StepResultRepository()

	// First step of the running workflow reaches payment_confirmed.
	require.NoError(t, repo.MarkDispatched(ctx, runningSteps[0].ID, "job-1", nil))
	require.NoError(t, repo.MarkPaid(ctx, runningSteps[0].ID, "token-1", nil))

	// A paid step of a non-running workflow must not be polled.
	require.NoError(t, repo.MarkDispatched(ctx, plannedSteps[0].ID, "job-2", nil))
	require.NoError(t, repo.MarkPaid(ctx, plannedSteps[0].ID, "token-2", nil))

	pollable, err := repo.ListPollable(ctx)
	require.NoError(t, err)
	require.Len(t, pollable, 1)
	assert.Equal(t, runningSteps[0].ID, pollable[0].ID)
	assert.NotEqual(t, planned.ID, pollable[0].WorkflowID)
}

func TestAgentRepository(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	ctx := context.Background()

	active := testutil.CreateTestAgent()
	inactive := testutil.CreateTestAgent(
		testutil.WithAgentID("retired"),
		testutil.WithAgentStatus(models.AgentStatusInactive),
	)

	require.NoError(t, store.AgentRepository().SaveAgent(ctx, active))
	require.NoError(t, store.AgentRepository().SaveAgent(ctx, inactive))

	agents, err := store.AgentRepository().ActiveAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, active.ID, agents[0].ID)

	loaded, err := store.AgentRepository().AgentByID(ctx, "retired")
	require.NoError(t, err)
	assert.False(t, loaded.Active())

	_, err = store.AgentRepository().AgentByID(ctx, "missing")
	assert.True(t, persistence.IsNotFound(err))
}
