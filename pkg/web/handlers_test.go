package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0rca-network/conductor/pkg/agentclient"
	"github.com/0rca-network/conductor/pkg/catalog"
	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/orchestrator"
	"github.com/0rca-network/conductor/pkg/persistence/memory"
	"github.com/0rca-network/conductor/pkg/testutil"
	"github.com/0rca-network/conductor/pkg/web"
)

// scriptedPlanner returns a canned plan or error.
type scriptedPlanner struct {
	plan *models.Plan
	err  error
}

func (p *scriptedPlanner) Plan(_ context.Context, _ string, _ []*models.AgentMetadata) (*models.Plan, error) {
	return p.plan, p.err
}

// scriptedAgent serves a fixed happy job lifecycle.
type scriptedAgent struct {
	status string
	output string
}

func (a *scriptedAgent) StartJob(_ context.Context, _ *models.AgentMetadata, _, _ string) (*agentclient.StartJobResponse, error) {
	return &agentclient.StartJobResponse{JobID: "job-1", UnsignedTxns: []string{"unsigned"}}, nil
}

func (a *scriptedAgent) SubmitPayment(_ context.Context, _ *models.AgentMetadata, _ string, _ []string) (*agentclient.PaymentResponse, error) {
	return &agentclient.PaymentResponse{AccessToken: "token-1"}, nil
}

func (a *scriptedAgent) JobStatus(_ context.Context, _ *models.AgentMetadata, _, _ string) (*agentclient.JobStatusResponse, error) {
	return &agentclient.JobStatusResponse{Status: a.status, Output: a.output}, nil
}

type testEnv struct {
	app   *fiber.App
	store *memory.Persistence
	agent *scriptedAgent
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewPersistence()
	agentMeta := testutil.CreateTestAgent()
	require.NoError(t, store.AgentRepository().SaveAgent(context.Background(), agentMeta))

	agent := &scriptedAgent{status: "running"}

	service := orchestrator.NewService(
		store,
		catalog.NewReader(store.AgentRepository(), slog.Default()),
		&scriptedPlanner{plan: testutil.CreateTestPlan()},
		agent,
		slog.Default(),
	)

	handlers := web.NewAPIHandlers(service, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/approve", handlers.ApproveWorkflow)
	w.Post("/:id/start", handlers.StartWorkflow)
	w.Post("/:id/dispatch", handlers.DispatchStep)
	w.Post("/:id/advance", handlers.AdvanceWorkflow)

	s := app.Group("/steps")
	s.Post("/:id/payment", handlers.SubmitPayment)
	s.Post("/:id/poll", handlers.PollStep)
	s.Post("/:id/cancel", handlers.CancelStep)

	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, store: store, agent: agent}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func createWorkflow(t *testing.T, env *testEnv) web.WorkflowResponse {
	t.Helper()

	resp, body := doJSON(t, env.app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		UserMessage:      "summarize this article",
		RequesterAddress: "ADDR-REQUESTER",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow web.WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &workflow))

	return workflow
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	t.Run("successful planning", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)
		workflow := createWorkflow(t, env)

		assert.NotEmpty(t, workflow.ID)
		assert.Equal(t, "planned", workflow.Status)
		assert.Equal(t, "summarize this article", workflow.UserMessage)
		require.Len(t, workflow.Steps, 1)
		assert.Equal(t, "pending", workflow.Steps[0].Status)
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)

		resp, _ := doJSON(t, env.app, http.MethodPost, "/workflows", map[string]any{
			"user_message": "hi",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid JSON is rejected", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)

		req := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")

		resp, err := env.app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	workflow := createWorkflow(t, env)

	resp, body := doJSON(t, env.app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loaded web.WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, workflow.ID, loaded.ID)

	resp, _ = doJSON(t, env.app, http.MethodGet, "/workflows/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_Lifecycle(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	workflow := createWorkflow(t, env)
	stepID := workflow.Steps[0].ID

	resp, _ := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/approve", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/start", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/dispatch", web.DispatchStepRequest{StepNumber: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dispatch orchestrator.DispatchResult
	require.NoError(t, json.Unmarshal(body, &dispatch))
	assert.Equal(t, stepID, dispatch.StepResultID)
	assert.Equal(t, []string{"unsigned"}, dispatch.UnsignedTxns)

	resp, body = doJSON(t, env.app, http.MethodPost, "/steps/"+stepID+"/payment", web.SubmitPaymentRequest{TxnIDs: []string{"txid-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payment web.SubmitPaymentResponse
	require.NoError(t, json.Unmarshal(body, &payment))
	assert.Equal(t, "token-1", payment.AccessToken)

	env.agent.status = "succeeded"
	env.agent.output = `{"summary":"done"}`

	resp, body = doJSON(t, env.app, http.MethodPost, "/steps/"+stepID+"/poll", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var poll orchestrator.PollResult
	require.NoError(t, json.Unmarshal(body, &poll))
	assert.True(t, poll.Done)
	assert.Equal(t, `{"summary":"done"}`, poll.Output)

	resp, body = doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var advance orchestrator.AdvanceResult
	require.NoError(t, json.Unmarshal(body, &advance))
	assert.True(t, advance.Completed)

	resp, body = doJSON(t, env.app, http.MethodGet, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var final web.WorkflowResponse
	require.NoError(t, json.Unmarshal(body, &final))
	assert.Equal(t, "completed", final.Status)
	assert.Equal(t, "succeeded", final.Steps[0].Status)
}

func TestAPIHandlers_StateViolations(t *testing.T) {
	t.Parallel()

	t.Run("dispatch before start conflicts", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)
		workflow := createWorkflow(t, env)

		resp, _ := doJSON(t, env.app, http.MethodPost, "/workflows/"+workflow.ID+"/dispatch", web.DispatchStepRequest{StepNumber: 1})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("payment before dispatch conflicts", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)
		workflow := createWorkflow(t, env)

		resp, _ := doJSON(t, env.app, http.MethodPost, "/steps/"+workflow.Steps[0].ID+"/payment", web.SubmitPaymentRequest{TxnIDs: []string{"x"}})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("cancel then poll conflicts", func(t *testing.T) {
		t.Parallel()

		env := setupTestApp(t)
		workflow := createWorkflow(t, env)
		stepID := workflow.Steps[0].ID

		resp, _ := doJSON(t, env.app, http.MethodPost, "/steps/"+stepID+"/cancel", nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = doJSON(t, env.app, http.MethodPost, "/steps/"+stepID+"/poll", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, body := doJSON(t, env.app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health["status"])
}
