// Package template binds step inputs to the trigger event and earlier step outputs.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// Data builds the template data for a run: the trigger event, the outputs of the steps
// executed so far (by position) and run identifiers.
func Data(executionCtx *models.ExecutionContext) map[string]any {
	steps := make([]any, 0, len(executionCtx.Steps))
	for _, output := range executionCtx.Steps {
		steps = append(steps, output)
	}

	return map[string]any{
		"trigger": executionCtx.Event,
		"steps":   steps,
		"appId":   executionCtx.AppID,
		"execution": map[string]any{
			"id":           executionCtx.ID,
			"automationId": executionCtx.AutomationID,
		},
	}
}

// NeedsTemplating reports whether a string holds template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderInputs renders every templated string of a step's inputs, descending into
// nested objects and arrays. The input map is not modified.
func RenderInputs(inputs map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	if inputs == nil {
		return nil, nil
	}

	data := Data(executionCtx)

	rendered, err := renderValue(inputs, data)
	if err != nil {
		return nil, err
	}

	return rendered.(map[string]any), nil
}

func renderValue(value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// noValue is what text/template prints for a key missing from a map of interfaces.
const noValue = "<no value>"

// Render executes a template against data. Output that forms a JSON object or array is
// decoded; anything else is returned as a string so that schema coercion decides its type.
// Missing keys render as the empty string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := parse(templateStr)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(strings.ReplaceAll(buf.String(), noValue, ""))

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	return result, nil
}

func parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("input").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"json": func(v any) (string, error) {
				raw, err := json.Marshal(v)

				return string(raw), err
			},
			"default": func(fallback, v any) any {
				if v == nil || v == "" {
					return fallback
				}

				return v
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}
