package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/0rca-network/conductor/pkg/agentclient"
	"github.com/0rca-network/conductor/pkg/eventbus"
	"github.com/0rca-network/conductor/pkg/events"
	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/otelhelper"
	"github.com/0rca-network/conductor/pkg/persistence"
)

// PlanGenerator is the planning capability consumed by the service.
// Implemented by planner.Planner.
type PlanGenerator interface {
	Plan(ctx context.Context, userMessage string, agents []*models.AgentMetadata) (*models.Plan, error)
}

// CatalogReader serves agent catalog lookups. Implemented by catalog.Reader.
type CatalogReader interface {
	Active(ctx context.Context) ([]*models.AgentMetadata, error)
	AgentByID(ctx context.Context, id string) (*models.AgentMetadata, error)
}

// AgentCaller is the agent service contract. Implemented by agentclient.Client.
type AgentCaller interface {
	StartJob(ctx context.Context, agent *models.AgentMetadata, senderAddress, jobInput string) (*agentclient.StartJobResponse, error)
	SubmitPayment(ctx context.Context, agent *models.AgentMetadata, jobID string, txnIDs []string) (*agentclient.PaymentResponse, error)
	JobStatus(ctx context.Context, agent *models.AgentMetadata, jobID, accessToken string) (*agentclient.JobStatusResponse, error)
}

// Service exposes the orchestrator surface. All collaborators are threaded
// in explicitly so tests can substitute isolated stores and fake agents.
type Service struct {
	store     persistence.Persistence
	catalog   CatalogReader
	planner   PlanGenerator
	agents    AgentCaller
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEventPublisher enables lifecycle event publication. Publishing is
// best-effort: a bus error is logged, never surfaced.
func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithTracer enables span creation around orchestration operations.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// NewService creates the orchestrator service.
func NewService(
	store persistence.Persistence,
	catalogReader CatalogReader,
	planGenerator PlanGenerator,
	agentCaller AgentCaller,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	service := &Service{
		store:   store,
		catalog: catalogReader,
		planner: planGenerator,
		agents:  agentCaller,
		tracer:  noop.NewTracerProvider().Tracer("conductor"),
		logger:  logger.With("module", "orchestrator"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

func (s *Service) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// CreateWorkflow plans the user message against the active catalog and
// persists the workflow with one pending step result per planned step.
// Nothing is persisted when planning fails.
func (s *Service) CreateWorkflow(ctx context.Context, userMessage, requesterAddress string) (*models.Workflow, []*models.StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "orchestrator.create_workflow")
	defer span.End()

	agents, err := s.catalog.Active(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, fmt.Errorf("failed to read agent catalog: %w", err)
	}

	plan, err := s.planner.Plan(ctx, userMessage, agents)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, err
	}

	workflowID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate workflow ID: %w", err)
	}

	workflow := &models.Workflow{
		ID:               workflowID.String(),
		UserMessage:      userMessage,
		RequesterAddress: requesterAddress,
		Plan:             plan,
		Status:           models.WorkflowStatusPlanned,
	}

	steps := make([]*models.StepResult, 0, len(plan.Steps))

	for _, spec := range plan.Steps {
		stepID, err := uuid.NewV7()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate step result ID: %w", err)
		}

		steps = append(steps, &models.StepResult{
			ID:         stepID.String(),
			WorkflowID: workflow.ID,
			StepNumber: spec.StepNumber,
			AgentID:    spec.AgentID,
			AgentName:  spec.AgentName,
			Status:     models.StepStatusPending,
		})
	}

	err = s.store.WorkflowRepository().CreateWithSteps(ctx, workflow, steps)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.Int("conductor.plan.steps", len(steps)),
	)

	event := events.WorkflowPlanned{
		BaseEvent:        events.NewBaseEvent(events.WorkflowPlannedEvent, workflow.ID),
		RequesterAddress: requesterAddress,
		StepCount:        len(steps),
	}
	s.publish(ctx, workflow.ID, event)

	s.logger.InfoContext(ctx, "Workflow planned",
		"workflow_id", workflow.ID, "steps", len(steps))

	return workflow, steps, nil
}

// ApproveWorkflow marks a planned workflow approved. No other side effects.
func (s *Service) ApproveWorkflow(ctx context.Context, workflowID string) error {
	err := s.store.WorkflowRepository().UpdateStatus(ctx, workflowID, models.WorkflowStatusApproved)
	if err != nil {
		return err
	}

	s.publish(ctx, workflowID, events.WorkflowApproved{
		BaseEvent: events.NewBaseEvent(events.WorkflowApprovedEvent, workflowID),
	})

	return nil
}

// StartWorkflow marks the workflow running at step 1. An un-approved planned
// workflow is tolerated as an implicit approval.
func (s *Service) StartWorkflow(ctx context.Context, workflowID string) error {
	err := s.store.WorkflowRepository().SetRunning(ctx, workflowID)
	if err != nil {
		return err
	}

	s.publish(ctx, workflowID, events.WorkflowStarted{
		BaseEvent: events.NewBaseEvent(events.WorkflowStartedEvent, workflowID),
	})

	s.logger.InfoContext(ctx, "Workflow started", "workflow_id", workflowID)

	return nil
}

// DispatchResult is returned by DispatchStep. The unsigned transactions must
// be signed out-of-band before SubmitPayment.
type DispatchResult struct {
	StepResultID string   `json:"step_result_id"`
	JobID        string   `json:"job_id"`
	UnsignedTxns []string `json:"unsigned_group_txns"`
}

// DispatchStep resolves the step input and creates a job on the target
// agent. On transport failure the step stays pending so the call can be
// retried without duplicate side effects.
func (s *Service) DispatchStep(ctx context.Context, workflowID string, stepNumber int, senderAddress string) (*DispatchResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "orchestrator.dispatch_step",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.StepNumberKey, stepNumber),
	)
	defer span.End()

	workflow, err := s.store.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusRunning {
		return nil, newStateError("DispatchStep", workflowID,
			fmt.Sprintf("workflow is %s, not running", workflow.Status))
	}

	spec := workflow.Plan.Step(stepNumber)
	if spec == nil {
		return nil, newStateError("DispatchStep", workflowID,
			fmt.Sprintf("plan has no step %d", stepNumber))
	}

	// Steps run strictly in order; a step becomes dispatchable only once the
	// workflow has advanced to it.
	if stepNumber != workflow.CurrentStep {
		return nil, newStateError("DispatchStep", workflowID,
			fmt.Sprintf("step %d is not the current step (%d)", stepNumber, workflow.CurrentStep))
	}

	step, err := s.store.StepResultRepository().GetByWorkflowAndStep(ctx, workflowID, stepNumber)
	if err != nil {
		return nil, err
	}

	if step.Status != models.StepStatusPending {
		return nil, newStateError("DispatchStep", step.ID,
			fmt.Sprintf("step is %s, already dispatched", step.Status))
	}

	var previous *models.StepResult

	if stepNumber > 1 {
		previous, err = s.store.StepResultRepository().GetByWorkflowAndStep(ctx, workflowID, stepNumber-1)
		if err != nil {
			return nil, err
		}
	}

	agent, err := s.catalog.AgentByID(ctx, spec.AgentID)
	if err != nil {
		return nil, err
	}

	input, err := resolveStepInput(workflow, spec, previous)
	if err != nil {
		return nil, err
	}

	if senderAddress == "" {
		senderAddress = workflow.RequesterAddress
	}

	resp, err := s.agents.StartJob(ctx, agent, senderAddress, input)
	if err != nil {
		// Transport and contract failures leave the step pending for retry.
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = s.store.StepResultRepository().MarkDispatched(ctx, step.ID, resp.JobID, resp.UnsignedTxns)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.AgentIDKey, agent.ID),
		attribute.String(otelhelper.JobIDKey, resp.JobID),
	)

	s.publish(ctx, workflowID, events.StepDispatched{
		BaseEvent:    events.NewBaseEvent(events.StepDispatchedEvent, workflowID),
		StepResultID: step.ID,
		StepNumber:   stepNumber,
		AgentID:      agent.ID,
		JobID:        resp.JobID,
	})

	s.logger.InfoContext(ctx, "Step dispatched",
		"workflow_id", workflowID, "step", stepNumber, "agent_id", agent.ID, "job_id", resp.JobID)

	return &DispatchResult{
		StepResultID: step.ID,
		JobID:        resp.JobID,
		UnsignedTxns: resp.UnsignedTxns,
	}, nil
}

// SubmitPayment forwards signed transaction ids to the agent and records the
// returned access token. Signing itself happens out-of-band before this call.
func (s *Service) SubmitPayment(ctx context.Context, stepResultID string, txnIDs []string) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "orchestrator.submit_payment",
		attribute.String(otelhelper.StepResultIDKey, stepResultID),
	)
	defer span.End()

	step, err := s.store.StepResultRepository().GetByID(ctx, stepResultID)
	if err != nil {
		return "", err
	}

	if step.Status != models.StepStatusAwaitingPayment {
		return "", newStateError("SubmitPayment", step.ID,
			fmt.Sprintf("step is %s, not awaiting payment", step.Status))
	}

	agent, err := s.catalog.AgentByID(ctx, step.AgentID)
	if err != nil {
		return "", err
	}

	resp, err := s.agents.SubmitPayment(ctx, agent, step.JobID, txnIDs)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	err = s.store.StepResultRepository().MarkPaid(ctx, step.ID, resp.AccessToken, txnIDs)
	if err != nil {
		return "", err
	}

	s.publish(ctx, step.WorkflowID, events.StepPaymentSubmitted{
		BaseEvent:    events.NewBaseEvent(events.StepPaymentSubmittedEvent, step.WorkflowID),
		StepResultID: step.ID,
		StepNumber:   step.StepNumber,
		TxnIDs:       txnIDs,
	})

	s.logger.InfoContext(ctx, "Payment submitted",
		"workflow_id", step.WorkflowID, "step", step.StepNumber, "job_id", step.JobID)

	return resp.AccessToken, nil
}

// PollResult is the discriminated outcome of one poll invocation. The
// external driver re-invokes PollStep until Done is true.
type PollResult struct {
	Done   bool              `json:"done"`
	Status models.StepStatus `json:"status"`
	// RemoteStatus is the agent's raw status for non-terminal outcomes.
	RemoteStatus string `json:"remote_status,omitempty"`
	Output       string `json:"output,omitempty"`
}

// PollStep queries the agent's job status once. Terminal remote statuses are
// persisted with a completion timestamp; anything else refreshes the step as
// running. A step that already reached a terminal status rejects the poll so
// a late-arriving response can never re-open it.
func (s *Service) PollStep(ctx context.Context, stepResultID string) (*PollResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "orchestrator.poll_step",
		attribute.String(otelhelper.StepResultIDKey, stepResultID),
	)
	defer span.End()

	step, err := s.store.StepResultRepository().GetByID(ctx, stepResultID)
	if err != nil {
		return nil, err
	}

	if step.Status.Terminal() {
		return nil, fmt.Errorf("%w: step %s is %s", ErrStepTerminal, step.ID, step.Status)
	}

	if step.Status != models.StepStatusPaymentConfirmed && step.Status != models.StepStatusRunning {
		return nil, newStateError("PollStep", step.ID,
			fmt.Sprintf("step is %s, no access token yet", step.Status))
	}

	agent, err := s.catalog.AgentByID(ctx, step.AgentID)
	if err != nil {
		return nil, err
	}

	resp, err := s.agents.JobStatus(ctx, agent, step.JobID, step.AccessToken)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	switch resp.Status {
	case "succeeded":
		err = s.store.StepResultRepository().MarkSucceeded(ctx, step.ID, resp.Output)
		if err != nil {
			return nil, err
		}

		s.publish(ctx, step.WorkflowID, events.StepSucceeded{
			BaseEvent:    events.NewBaseEvent(events.StepSucceededEvent, step.WorkflowID),
			StepResultID: step.ID,
			StepNumber:   step.StepNumber,
		})

		s.logger.InfoContext(ctx, "Step succeeded",
			"workflow_id", step.WorkflowID, "step", step.StepNumber)

		return &PollResult{Done: true, Status: models.StepStatusSucceeded, Output: resp.Output}, nil

	case "failed":
		err = s.store.StepResultRepository().MarkFailed(ctx, step.ID, "agent reported failure")
		if err != nil {
			return nil, err
		}

		s.publish(ctx, step.WorkflowID, events.StepFailed{
			BaseEvent:    events.NewBaseEvent(events.StepFailedEvent, step.WorkflowID),
			StepResultID: step.ID,
			StepNumber:   step.StepNumber,
			Reason:       "agent reported failure",
		})

		return &PollResult{Done: true, Status: models.StepStatusFailed}, nil

	default:
		// queued, running, or any agent-defined interim status.
		err = s.store.StepResultRepository().MarkRunning(ctx, step.ID)
		if err != nil {
			return nil, err
		}

		return &PollResult{Done: false, Status: models.StepStatusRunning, RemoteStatus: resp.Status}, nil
	}
}

// AdvanceResult is returned by AdvanceWorkflow.
type AdvanceResult struct {
	Completed bool `json:"completed"`
	NextStep  int  `json:"next_step,omitempty"`
}

// AdvanceWorkflow decides whether the workflow finished or moves on. It is
// only valid once the current step's result has succeeded; anything else is
// rejected so a misordered call cannot corrupt the step sequence.
func (s *Service) AdvanceWorkflow(ctx context.Context, workflowID string) (*AdvanceResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "orchestrator.advance_workflow",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	workflow, err := s.store.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusRunning {
		return nil, newStateError("AdvanceWorkflow", workflowID,
			fmt.Sprintf("workflow is %s, not running", workflow.Status))
	}

	current, err := s.store.StepResultRepository().GetByWorkflowAndStep(ctx, workflowID, workflow.CurrentStep)
	if err != nil {
		return nil, err
	}

	if current.Status != models.StepStatusSucceeded {
		return nil, newStateError("AdvanceWorkflow", workflowID,
			fmt.Sprintf("step %d is %s, not succeeded", workflow.CurrentStep, current.Status))
	}

	if workflow.CurrentStep >= workflow.TotalSteps() {
		err = s.store.WorkflowRepository().UpdateStatus(ctx, workflowID, models.WorkflowStatusCompleted)
		if err != nil {
			return nil, err
		}

		s.publish(ctx, workflowID, events.WorkflowCompleted{
			BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, workflowID),
		})

		s.logger.InfoContext(ctx, "Workflow completed", "workflow_id", workflowID)

		return &AdvanceResult{Completed: true}, nil
	}

	nextStep := workflow.CurrentStep + 1

	err = s.store.WorkflowRepository().SetCurrentStep(ctx, workflowID, nextStep)
	if err != nil {
		return nil, err
	}

	return &AdvanceResult{NextStep: nextStep}, nil
}

// CancelStep terminates a non-terminal step at the requester's behest. The
// terminal cancelled status guards against late poll responses re-opening it.
func (s *Service) CancelStep(ctx context.Context, stepResultID string) error {
	step, err := s.store.StepResultRepository().GetByID(ctx, stepResultID)
	if err != nil {
		return err
	}

	err = s.store.StepResultRepository().MarkCancelled(ctx, stepResultID)
	if err != nil {
		return err
	}

	s.publish(ctx, step.WorkflowID, events.StepCancelled{
		BaseEvent:    events.NewBaseEvent(events.StepCancelledEvent, step.WorkflowID),
		StepResultID: step.ID,
		StepNumber:   step.StepNumber,
	})

	return nil
}

// FailStep terminates a non-terminal step with a reason. Used by the poll
// driver to enforce per-step timeouts.
func (s *Service) FailStep(ctx context.Context, stepResultID, reason string) error {
	step, err := s.store.StepResultRepository().GetByID(ctx, stepResultID)
	if err != nil {
		return err
	}

	err = s.store.StepResultRepository().MarkFailed(ctx, stepResultID, reason)
	if err != nil {
		return err
	}

	s.publish(ctx, step.WorkflowID, events.StepFailed{
		BaseEvent:    events.NewBaseEvent(events.StepFailedEvent, step.WorkflowID),
		StepResultID: step.ID,
		StepNumber:   step.StepNumber,
		Reason:       reason,
	})

	return nil
}

// Workflow returns a workflow and its step results ordered by step number.
func (s *Service) Workflow(ctx context.Context, workflowID string) (*models.Workflow, []*models.StepResult, error) {
	workflow, err := s.store.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	steps, err := s.store.StepResultRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	return workflow, steps, nil
}

// PollableSteps returns the steps the external driver should poll.
func (s *Service) PollableSteps(ctx context.Context) ([]*models.StepResult, error) {
	return s.store.StepResultRepository().ListPollable(ctx)
}

// HealthCheck checks the health of the persistence layer.
func (s *Service) HealthCheck(ctx context.Context) (string, bool) {
	err := s.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}
