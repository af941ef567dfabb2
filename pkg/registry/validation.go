package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/autoflow/pkg/coerce"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/dukex/autoflow/pkg/template"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDefinition is returned when an automation document is malformed.
var ErrInvalidDefinition = errors.New("invalid automation definition")

const automationSchemaJSON = `{
  "type": "object",
  "required": ["definition"],
  "properties": {
    "_id": { "type": "string" },
    "_rev": { "type": "string" },
    "appId": { "type": "string" },
    "definition": {
      "type": "object",
      "required": ["trigger"],
      "properties": {
        "trigger": { "$ref": "#/definitions/step" },
        "steps": {
          "type": ["array", "null"],
          "items": { "$ref": "#/definitions/step" }
        }
      }
    }
  },
  "definitions": {
    "step": {
      "type": "object",
      "required": ["stepId"],
      "properties": {
        "stepId": { "type": "string", "minLength": 1 },
        "type": { "enum": ["", "TRIGGER", "ACTION", "LOGIC"] },
        "inputs": { "type": ["object", "null"] }
      }
    }
  }
}`

var automationSchema = gojsonschema.NewStringLoader(automationSchemaJSON)

// ValidationError lists every problem found in an automation document.
type ValidationError struct {
	Problems []string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateAutomation checks the document shape, that every step identifier is known and
// that step inputs satisfy the declared input schemas.
// It runs when automations are created or updated, never on the trigger path.
func (r *Registry) ValidateAutomation(automation *models.Automation) error {
	if automation == nil {
		return &ValidationError{Problems: []string{"automation is required"}, Err: ErrInvalidDefinition}
	}

	result, err := gojsonschema.Validate(automationSchema, gojsonschema.NewGoLoader(automation))
	if err != nil {
		return fmt.Errorf("failed to validate automation document: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return &ValidationError{Problems: problems, Err: ErrInvalidDefinition}
	}

	var problems []string

	trigger := automation.Definition.Trigger

	triggerStep, ok := r.Trigger(trigger.StepID)
	if !ok {
		return &ValidationError{
			Problems: []string{fmt.Sprintf("trigger %q is not registered", trigger.StepID)},
			Err:      ErrUnknownStep,
		}
	}

	problems = appendInputProblems(problems, "trigger", triggerStep, trigger.Inputs)

	unknown := false

	for i, step := range automation.Definition.Steps {
		executor, err := r.Executor(step)
		if err != nil {
			unknown = unknown || errors.Is(err, ErrUnknownStep)
			problems = append(problems, fmt.Sprintf("steps.%d: %v", i, err))

			continue
		}

		problems = appendInputProblems(problems, fmt.Sprintf("steps.%d", i), executor, step.Inputs)
	}

	if len(problems) == 0 {
		return nil
	}

	if unknown {
		return &ValidationError{Problems: problems, Err: ErrUnknownStep}
	}

	return &ValidationError{Problems: problems, Err: ErrInvalidDefinition}
}

func appendInputProblems(problems []string, path string, step protocol.Step, inputs map[string]any) []string {
	if err := template.Validate(inputs); err != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", path, err))
	}

	problems = appendSchemaProblems(problems, path, step.Definition().Schema.Inputs, inputs)

	validator, ok := step.(protocol.InputValidator)
	if !ok {
		return problems
	}

	if err := validator.ValidateInputs(inputs); err != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", path, err))
	}

	return problems
}

// appendSchemaProblems checks inputs against the declared input schema of a step. Literal
// values are coerced first, the same way they are at run time. Templated values only count
// towards required fields since their type is known once rendered.
func appendSchemaProblems(problems []string, path string, schema *models.JSONSchema, inputs map[string]any) []string {
	if schema == nil {
		return problems
	}

	if inputs == nil {
		inputs = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(inputSchema(schema, template.TemplatedInputs(inputs))),
		gojsonschema.NewGoLoader(coerce.CleanInputValues(inputs, schema)),
	)
	if err != nil {
		return append(problems, fmt.Sprintf("%s: failed to validate inputs: %v", path, err))
	}

	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s.inputs: %s", path, desc.String()))
	}

	return problems
}

func inputSchema(schema *models.JSONSchema, templated []string) map[string]any {
	properties := make(map[string]any, len(schema.Properties))

	for name, prop := range schema.Properties {
		if prop == nil {
			continue
		}

		if slices.Contains(templated, name) {
			properties[name] = map[string]any{}

			continue
		}

		constraint := map[string]any{}

		switch prop.Type {
		case "":
		case models.PropertyTypeString:
			// rendered as text, so plain scalars are accepted
			constraint["type"] = []any{models.PropertyTypeString, models.PropertyTypeNumber, models.PropertyTypeBoolean}
		default:
			constraint["type"] = prop.Type
		}

		if len(prop.Enum) > 0 {
			constraint["enum"] = prop.Enum
		}

		properties[name] = constraint
	}

	out := map[string]any{
		"type":       models.PropertyTypeObject,
		"properties": properties,
	}

	if len(schema.Required) > 0 {
		required := make([]any, len(schema.Required))
		for i, name := range schema.Required {
			required[i] = name
		}

		out["required"] = required
	}

	return out
}
