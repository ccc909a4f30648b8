package planner

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// planSchema is the structural contract a plan completion must satisfy
// before it is decoded into models.Plan.
var planSchema = map[string]any{
	"type":     "object",
	"required": []any{"reasoning", "steps"},
	"properties": map[string]any{
		"reasoning": map[string]any{"type": "string"},
		"steps": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"step_number", "agent_id", "agent_name", "description"},
				"properties": map[string]any{
					"step_number":  map[string]any{"type": "integer", "minimum": 1},
					"agent_id":     map[string]any{"type": "string", "minLength": 1},
					"agent_name":   map[string]any{"type": "string"},
					"description":  map[string]any{"type": "string"},
					"input_schema": map[string]any{"type": "object"},
					"input_data":   map[string]any{"type": "object"},
				},
			},
		},
	},
}

// validatePlanDocument validates the extracted JSON document against planSchema.
func validatePlanDocument(raw string) error {
	schemaLoader := gojsonschema.NewGoLoader(planSchema)
	dataLoader := gojsonschema.NewStringLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("plan schema validation errored: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("plan schema validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
