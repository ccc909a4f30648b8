package planner

import (
	"fmt"
	"strings"

	"github.com/0rca-network/conductor/pkg/models"
)

// buildPrompt embeds the candidate agents' declared contracts and the
// literal-values instruction: input_data must carry values derived from the
// user message, never an empty object.
func buildPrompt(userMessage string, agents []*models.AgentMetadata) string {
	var b strings.Builder

	fmt.Fprintf(&b, "User request: %q\n\nAvailable agents:\n", userMessage)

	for _, agent := range agents {
		fmt.Fprintf(&b, `
- ID: %s
  Name: %s
  Description: %s
  Category: %s
  Tags: %s
  Input format: %s
  Example input: %s
  Example output: %s
`, agent.ID, agent.Name, agent.Description, agent.Category,
			strings.Join(agent.Tags, ", "), agent.DataInput, agent.ExampleInput, agent.ExampleOutput)
	}

	b.WriteString(`
Create a workflow plan that:
1. Identifies which agents are needed
2. Orders them sequentially
3. Defines input for each step matching the agent's example input format EXACTLY
4. Passes outputs between steps

IMPORTANT: input_data for each step MUST contain literal values derived from
the user request, never an empty object. If the agent's example input is a
plain string, input_data should be a simple object that will be stringified.
If it is JSON, input_data should match that JSON structure.

Return JSON:
{
  "reasoning": "explanation of workflow",
  "steps": [
    {
      "step_number": 1,
      "agent_id": "uuid",
      "agent_name": "name",
      "description": "what this step does",
      "input_schema": {},
      "input_data": {}
    }
  ]
}`)

	return b.String()
}
