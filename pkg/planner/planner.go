// Package planner turns a free-form user request and an agent catalog
// snapshot into a validated multi-step workflow plan.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/0rca-network/conductor/pkg/llm"
	"github.com/0rca-network/conductor/pkg/models"
)

// planTemperature favors determinism while tolerating minor variance.
const planTemperature = 0.2

var (
	// ErrPlanningFailed indicates the plan generator produced no parseable,
	// valid plan. Never retried automatically; no workflow is persisted.
	ErrPlanningFailed = errors.New("plan generation failed")

	// ErrNoActiveAgents indicates planning was attempted with an empty catalog.
	ErrNoActiveAgents = errors.New("no active agents available for planning")
)

const systemPrompt = "You are a workflow orchestrator. Analyze user requests and create multi-step agent workflows. Return only valid JSON."

// Planner is the plan generator adapter.
type Planner struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewPlanner creates a planner backed by the given completion capability.
func NewPlanner(completer llm.Completer, logger *slog.Logger) *Planner {
	return &Planner{
		completer: completer,
		logger:    logger.With("module", "planner"),
	}
}

// Plan generates a workflow plan for the user message against the active
// agent catalog snapshot. Callers must pass only active agents.
func (p *Planner) Plan(ctx context.Context, userMessage string, agents []*models.AgentMetadata) (*models.Plan, error) {
	if len(agents) == 0 {
		return nil, ErrNoActiveAgents
	}

	completion, err := p.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(userMessage, agents)},
		},
		Temperature: planTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	plan, err := parsePlan(completion)
	if err != nil {
		p.logger.WarnContext(ctx, "Rejected plan completion", "error", err)

		return nil, err
	}

	catalogIDs := make(map[string]bool, len(agents))
	for _, agent := range agents {
		catalogIDs[agent.ID] = true
	}

	err = plan.Validate(catalogIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	return plan, nil
}

// parsePlan is the explicit two-stage parse: isolate the first balanced JSON
// object from the completion, check it against the plan schema, then decode.
func parsePlan(completion string) (*models.Plan, error) {
	raw := llm.ExtractJSON(completion)
	if raw == "" {
		return nil, fmt.Errorf("%w: completion contained no JSON object", ErrPlanningFailed)
	}

	err := validatePlanDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	plan := &models.Plan{}

	err = json.Unmarshal([]byte(raw), plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	return plan, nil
}
