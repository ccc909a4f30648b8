package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPlan is returned when a plan contains no steps.
	ErrEmptyPlan = errors.New("plan contains no steps")

	// ErrStepNumbering is returned when step numbers are not contiguous and ascending from 1.
	ErrStepNumbering = errors.New("step numbers must be contiguous and ascending from 1")

	// ErrUnknownAgent is returned when a step references an agent outside the catalog snapshot.
	ErrUnknownAgent = errors.New("step references unknown agent")
)

// Plan is the immutable step sequence attached to a workflow at creation.
type Plan struct {
	Reasoning string     `json:"reasoning"`
	Steps     []StepSpec `json:"steps"`
}

// StepSpec is the planner's description of one workflow step.
type StepSpec struct {
	StepNumber  int            `json:"step_number"`
	AgentID     string         `json:"agent_id"`
	AgentName   string         `json:"agent_name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	InputData   map[string]any `json:"input_data"`
}

// Step returns the spec for the given 1-based step number, or nil.
func (p *Plan) Step(number int) *StepSpec {
	for i := range p.Steps {
		if p.Steps[i].StepNumber == number {
			return &p.Steps[i]
		}
	}

	return nil
}

// Validate checks plan structure against the catalog snapshot used for
// planning: at least one step, step numbers contiguous and ascending from 1,
// and every agent id present in the snapshot.
func (p *Plan) Validate(catalogIDs map[string]bool) error {
	if len(p.Steps) == 0 {
		return ErrEmptyPlan
	}

	for i, step := range p.Steps {
		if step.StepNumber != i+1 {
			return fmt.Errorf("step at position %d has number %d: %w", i+1, step.StepNumber, ErrStepNumbering)
		}

		if !catalogIDs[step.AgentID] {
			return fmt.Errorf("step %d targets agent %q: %w", step.StepNumber, step.AgentID, ErrUnknownAgent)
		}
	}

	return nil
}
