// Package memory provides an in-memory persistence implementation for tests
// and local development. It honors the same transition guards as the SQL
// implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
)

// Persistence implements persistence.Persistence backed by process memory.
type Persistence struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	steps     map[string]*models.StepResult
	agents    map[string]*models.AgentMetadata
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows: make(map[string]*models.Workflow),
		steps:     make(map[string]*models.StepResult),
		agents:    make(map[string]*models.AgentMetadata),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{p: p}
}

func (p *Persistence) StepResultRepository() persistence.StepResultRepository {
	return &stepResultRepository{p: p}
}

func (p *Persistence) AgentRepository() persistence.AgentRepository {
	return &agentRepository{p: p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func cloneWorkflow(w *models.Workflow) *models.Workflow {
	clone := *w

	if w.Plan != nil {
		plan := *w.Plan
		plan.Steps = append([]models.StepSpec(nil), w.Plan.Steps...)
		clone.Plan = &plan
	}

	return &clone
}

func cloneStep(s *models.StepResult) *models.StepResult {
	clone := *s
	clone.UnsignedTxns = append([]string(nil), s.UnsignedTxns...)
	clone.TxnIDs = append([]string(nil), s.TxnIDs...)

	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		clone.CompletedAt = &completedAt
	}

	return &clone
}

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) CreateWithSteps(_ context.Context, workflow *models.Workflow, steps []*models.StepResult) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, exists := r.p.workflows[workflow.ID]; exists {
		return persistence.NewStoreError("CreateWithSteps", workflow.ID, persistence.ErrWorkflowAlreadyExists)
	}

	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	r.p.workflows[workflow.ID] = cloneWorkflow(workflow)

	for _, step := range steps {
		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}

		step.UpdatedAt = now
		r.p.steps[step.ID] = cloneStep(step)
	}

	return nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow), nil
}

func (r *workflowRepository) UpdateStatus(_ context.Context, id string, status models.WorkflowStatus) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return persistence.NewStoreError("UpdateStatus", id, persistence.ErrWorkflowNotFound)
	}

	if !workflow.Status.CanTransitionTo(status) {
		return persistence.NewStoreError("UpdateStatus", id, persistence.ErrWorkflowTransition)
	}

	workflow.Status = status
	workflow.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *workflowRepository) SetRunning(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return persistence.NewStoreError("SetRunning", id, persistence.ErrWorkflowNotFound)
	}

	if !workflow.Status.CanTransitionTo(models.WorkflowStatusRunning) {
		return persistence.NewStoreError("SetRunning", id, persistence.ErrWorkflowTransition)
	}

	workflow.Status = models.WorkflowStatusRunning
	workflow.CurrentStep = 1
	workflow.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *workflowRepository) SetCurrentStep(_ context.Context, id string, step int) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return persistence.NewStoreError("SetCurrentStep", id, persistence.ErrWorkflowNotFound)
	}

	workflow.CurrentStep = step
	workflow.UpdatedAt = time.Now().UTC()

	return nil
}

type stepResultRepository struct {
	p *Persistence
}

func (r *stepResultRepository) GetByID(_ context.Context, id string) (*models.StepResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	step, ok := r.p.steps[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrStepNotFound)
	}

	return cloneStep(step), nil
}

func (r *stepResultRepository) GetByWorkflowAndStep(_ context.Context, workflowID string, stepNumber int) (*models.StepResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, step := range r.p.steps {
		if step.WorkflowID == workflowID && step.StepNumber == stepNumber {
			return cloneStep(step), nil
		}
	}

	return nil, persistence.NewStoreError("GetByWorkflowAndStep", workflowID, persistence.ErrStepNotFound)
}

func (r *stepResultRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.StepResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	steps := make([]*models.StepResult, 0)

	for _, step := range r.p.steps {
		if step.WorkflowID == workflowID {
			steps = append(steps, cloneStep(step))
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})

	return steps, nil
}

func (r *stepResultRepository) ListPollable(_ context.Context) ([]*models.StepResult, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	steps := make([]*models.StepResult, 0)

	for _, step := range r.p.steps {
		if step.Status != models.StepStatusPaymentConfirmed && step.Status != models.StepStatusRunning {
			continue
		}

		workflow, ok := r.p.workflows[step.WorkflowID]
		if !ok || workflow.Status != models.WorkflowStatusRunning {
			continue
		}

		steps = append(steps, cloneStep(step))
	}

	sort.Slice(steps, func(i, j int) bool {
		if steps[i].WorkflowID != steps[j].WorkflowID {
			return steps[i].WorkflowID < steps[j].WorkflowID
		}

		return steps[i].StepNumber < steps[j].StepNumber
	})

	return steps, nil
}

// transition applies fn to the step under the write lock after verifying the
// status transition is allowed.
func (r *stepResultRepository) transition(op, id string, next models.StepStatus, fn func(*models.StepResult)) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	step, ok := r.p.steps[id]
	if !ok {
		return persistence.NewStoreError(op, id, persistence.ErrStepNotFound)
	}

	if !step.Status.CanTransitionTo(next) {
		return persistence.NewStoreError(op, id, persistence.ErrStepTransition)
	}

	step.Status = next
	step.UpdatedAt = time.Now().UTC()

	if fn != nil {
		fn(step)
	}

	return nil
}

func (r *stepResultRepository) MarkDispatched(_ context.Context, id, jobID string, unsignedTxns []string) error {
	return r.transition("MarkDispatched", id, models.StepStatusAwaitingPayment, func(step *models.StepResult) {
		step.JobID = jobID
		step.UnsignedTxns = append([]string(nil), unsignedTxns...)
	})
}

func (r *stepResultRepository) MarkPaid(_ context.Context, id, accessToken string, txnIDs []string) error {
	return r.transition("MarkPaid", id, models.StepStatusPaymentConfirmed, func(step *models.StepResult) {
		step.AccessToken = accessToken
		step.TxnIDs = append([]string(nil), txnIDs...)
	})
}

func (r *stepResultRepository) MarkRunning(_ context.Context, id string) error {
	return r.transition("MarkRunning", id, models.StepStatusRunning, nil)
}

func (r *stepResultRepository) MarkSucceeded(_ context.Context, id, output string) error {
	return r.transition("MarkSucceeded", id, models.StepStatusSucceeded, func(step *models.StepResult) {
		now := time.Now().UTC()
		step.Output = output
		step.CompletedAt = &now
	})
}

func (r *stepResultRepository) MarkFailed(_ context.Context, id, reason string) error {
	return r.transition("MarkFailed", id, models.StepStatusFailed, func(step *models.StepResult) {
		now := time.Now().UTC()
		step.FailureReason = reason
		step.CompletedAt = &now
	})
}

func (r *stepResultRepository) MarkCancelled(_ context.Context, id string) error {
	return r.transition("MarkCancelled", id, models.StepStatusCancelled, func(step *models.StepResult) {
		now := time.Now().UTC()
		step.CompletedAt = &now
	})
}

type agentRepository struct {
	p *Persistence
}

func (r *agentRepository) ActiveAgents(_ context.Context) ([]*models.AgentMetadata, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	agents := make([]*models.AgentMetadata, 0)

	for _, agent := range r.p.agents {
		if agent.Active() {
			clone := *agent
			clone.Tags = append([]string(nil), agent.Tags...)
			agents = append(agents, &clone)
		}
	}

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].ID < agents[j].ID
	})

	return agents, nil
}

func (r *agentRepository) AgentByID(_ context.Context, id string) (*models.AgentMetadata, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	agent, ok := r.p.agents[id]
	if !ok {
		return nil, persistence.NewStoreError("AgentByID", id, persistence.ErrAgentNotFound)
	}

	clone := *agent
	clone.Tags = append([]string(nil), agent.Tags...)

	return &clone, nil
}

func (r *agentRepository) SaveAgent(_ context.Context, agent *models.AgentMetadata) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	clone := *agent
	clone.Tags = append([]string(nil), agent.Tags...)
	r.p.agents[agent.ID] = &clone

	return nil
}
