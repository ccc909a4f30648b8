package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    WorkflowStatus
		to      WorkflowStatus
		allowed bool
	}{
		{"planned to approved", WorkflowStatusPlanned, WorkflowStatusApproved, true},
		{"planned to running is implicit approval", WorkflowStatusPlanned, WorkflowStatusRunning, true},
		{"planned to completed", WorkflowStatusPlanned, WorkflowStatusCompleted, false},
		{"approved to running", WorkflowStatusApproved, WorkflowStatusRunning, true},
		{"approved to planned", WorkflowStatusApproved, WorkflowStatusPlanned, false},
		{"running to completed", WorkflowStatusRunning, WorkflowStatusCompleted, true},
		{"running to failed", WorkflowStatusRunning, WorkflowStatusFailed, true},
		{"running to approved", WorkflowStatusRunning, WorkflowStatusApproved, false},
		{"completed absorbs", WorkflowStatusCompleted, WorkflowStatusRunning, false},
		{"completed to failed", WorkflowStatusCompleted, WorkflowStatusFailed, false},
		{"failed absorbs", WorkflowStatusFailed, WorkflowStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestWorkflowStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.True(t, WorkflowStatusCompleted.Terminal())
	assert.True(t, WorkflowStatusFailed.Terminal())
	assert.False(t, WorkflowStatusPlanned.Terminal())
	assert.False(t, WorkflowStatusApproved.Terminal())
	assert.False(t, WorkflowStatusRunning.Terminal())
}

func TestWorkflow_TotalSteps(t *testing.T) {
	t.Parallel()

	workflow := &Workflow{}
	assert.Equal(t, 0, workflow.TotalSteps())

	workflow.Plan = &Plan{
		Steps: []StepSpec{
			{StepNumber: 1, AgentID: "a"},
			{StepNumber: 2, AgentID: "b"},
		},
	}
	assert.Equal(t, 2, workflow.TotalSteps())
}
