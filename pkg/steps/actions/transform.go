package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/itchyny/gojq"
)

const TransformID = "TRANSFORM"

var ErrInvalidQuery = errors.New("invalid jq query")

// Transform reshapes data with a jq query. The query runs against an object holding
// the trigger event, earlier step outputs and the optional "input" value.
type Transform struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func NewTransform() *Transform {
	return &Transform{cache: make(map[string]*gojq.Code)}
}

func (a *Transform) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          TransformID,
		Type:        models.StepTypeAction,
		Name:        "Transform",
		Description: "Reshape data with a jq query",
		Icon:        "Code",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"query": {Type: models.PropertyTypeString, Title: "jq query"},
					"input": {Type: models.PropertyTypeObject, Title: "Input"},
				},
				Required: []string{"query"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"result":  {Description: "Query result, an array when the query yields several values"},
					"success": {Type: models.PropertyTypeBoolean, Description: "Whether the action was successful"},
				},
				Required: []string{"success"},
			},
		},
	}
}

func (a *Transform) ValidateInputs(inputs map[string]any) error {
	query, _ := inputs["query"].(string)
	_, err := a.compile(query)

	return err
}

func (a *Transform) Execute(ctx context.Context, input protocol.StepInput) (map[string]any, error) {
	query, _ := input.Inputs["query"].(string)

	code, err := a.compile(query)
	if err != nil {
		return nil, err
	}

	var event map[string]any
	if input.Execution != nil {
		event = input.Execution.Event
	}

	data := map[string]any{
		"trigger": normalize(event),
		"steps":   normalize(stepOutputs(input.Execution)),
		"input":   normalize(input.Inputs["input"]),
	}

	iter := code.RunWithContext(ctx, data)

	var results []any

	for {
		val, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := val.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", query, err)
		}

		results = append(results, val)
	}

	var result any

	switch len(results) {
	case 0:
	case 1:
		result = results[0]
	default:
		result = results
	}

	return map[string]any{
		"result":  result,
		"success": true,
	}, nil
}

func (a *Transform) compile(query string) (*gojq.Code, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: missing required field 'query'", ErrInvalidQuery)
	}

	a.mu.RLock()
	code, ok := a.cache[query]
	a.mu.RUnlock()

	if ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	code, err = gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	a.mu.Lock()
	a.cache[query] = code
	a.mu.Unlock()

	return code, nil
}

func stepOutputs(executionCtx *models.ExecutionContext) []any {
	if executionCtx == nil {
		return []any{}
	}

	steps := make([]any, 0, len(executionCtx.Steps))
	for _, output := range executionCtx.Steps {
		steps = append(steps, map[string]any(output))
	}

	return steps
}

// normalize converts Go values into the types gojq accepts.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}

		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}

		return out
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
