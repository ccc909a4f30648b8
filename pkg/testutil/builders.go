// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/0rca-network/conductor/pkg/models"
)

// CreateTestAgent creates an active test agent with default values that can
// be overridden.
func CreateTestAgent(overrides ...func(*models.AgentMetadata)) *models.AgentMetadata {
	agent := &models.AgentMetadata{
		ID:            "summarizer",
		Name:          "Summarizer",
		Description:   "Summarizes text",
		Subdomain:     "summarizer",
		Category:      "text",
		Tags:          []string{"text", "nlp"},
		DataInput:     "JSON object with a text field",
		ExampleInput:  `{"text": "long article body"}`,
		ExampleOutput: `{"summary": "short version"}`,
		Status:        models.AgentStatusActive,
	}

	for _, override := range overrides {
		override(agent)
	}

	return agent
}

// WithAgentID sets the agent id and subdomain together.
func WithAgentID(id string) func(*models.AgentMetadata) {
	return func(a *models.AgentMetadata) {
		a.ID = id
		a.Subdomain = id
	}
}

// WithAgentStatus sets the agent status.
func WithAgentStatus(status models.AgentStatus) func(*models.AgentMetadata) {
	return func(a *models.AgentMetadata) {
		a.Status = status
	}
}

// CreateTestPlan creates a plan with one step per agent id, numbered from 1.
func CreateTestPlan(agentIDs ...string) *models.Plan {
	if len(agentIDs) == 0 {
		agentIDs = []string{"summarizer"}
	}

	plan := &models.Plan{
		Reasoning: "test plan",
		Steps:     make([]models.StepSpec, 0, len(agentIDs)),
	}

	for i, agentID := range agentIDs {
		plan.Steps = append(plan.Steps, models.StepSpec{
			StepNumber:  i + 1,
			AgentID:     agentID,
			AgentName:   agentID,
			Description: "run " + agentID,
			InputData:   map[string]any{"text": "input for " + agentID},
		})
	}

	return plan
}

// CreateTestWorkflow creates a planned test workflow with default values
// that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:               uuid.New().String(),
		UserMessage:      "summarize this article",
		RequesterAddress: "ADDR-REQUESTER",
		Plan:             CreateTestPlan(),
		Status:           models.WorkflowStatusPlanned,
		CurrentStep:      1,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithPlan sets the workflow plan.
func WithPlan(plan *models.Plan) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Plan = plan
	}
}

// WithWorkflowStatus sets the workflow status.
func WithWorkflowStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// CreateTestSteps creates one pending step result per plan step.
func CreateTestSteps(workflow *models.Workflow) []*models.StepResult {
	steps := make([]*models.StepResult, 0, len(workflow.Plan.Steps))

	for _, spec := range workflow.Plan.Steps {
		steps = append(steps, &models.StepResult{
			ID:         uuid.New().String(),
			WorkflowID: workflow.ID,
			StepNumber: spec.StepNumber,
			AgentID:    spec.AgentID,
			AgentName:  spec.AgentName,
			Status:     models.StepStatusPending,
		})
	}

	return steps
}
