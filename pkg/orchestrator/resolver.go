package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/0rca-network/conductor/pkg/models"
)

// resolveStepInput computes the serialized payload dispatched to a step's
// agent. The step spec's input_data is the base; from step 2 on, the prior
// step's output is threaded in under previous_output. An empty payload is
// never dispatched: the fallback substitutes a query derived from the user
// message or the step description.
func resolveStepInput(workflow *models.Workflow, spec *models.StepSpec, previous *models.StepResult) (string, error) {
	input := make(map[string]any, len(spec.InputData)+1)

	for key, value := range spec.InputData {
		input[key] = value
	}

	if spec.StepNumber > 1 && previous != nil && previous.Output != "" {
		input["previous_output"] = previous.Output
	}

	if len(input) == 0 {
		query := workflow.UserMessage
		if query == "" {
			query = spec.Description
		}

		input["query"] = query
	}

	serialized, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to serialize step input: %w", err)
	}

	return string(serialized), nil
}
