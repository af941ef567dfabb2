// Package logic provides the built-in logic steps. A logic step whose "success" output
// is false stops the run.
package logic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

const FilterID = "FILTER"

const (
	ConditionEqual       = "EQUAL"
	ConditionNotEqual    = "NOT_EQUAL"
	ConditionGreaterThan = "GREATER_THAN"
	ConditionLessThan    = "LESS_THAN"
)

var ErrInvalidCondition = errors.New("invalid filter condition")

// Filter continues the run only when the comparison holds.
type Filter struct{}

func NewFilter() *Filter {
	return &Filter{}
}

func (l *Filter) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          FilterID,
		Type:        models.StepTypeLogic,
		Name:        "Condition",
		Description: "Conditionally halt automations which do not meet certain conditions",
		Icon:        "Branch2",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"field": {Type: models.PropertyTypeString, Title: "Reference Value"},
					"condition": {
						Type:    models.PropertyTypeString,
						Title:   "Condition",
						Enum:    []any{ConditionEqual, ConditionNotEqual, ConditionGreaterThan, ConditionLessThan},
						Default: ConditionEqual,
					},
					"value": {Type: models.PropertyTypeString, Title: "Comparison Value"},
				},
				Required: []string{"field", "condition", "value"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"success": {Type: models.PropertyTypeBoolean, Description: "Whether the action was successful"},
					"result":  {Type: models.PropertyTypeBoolean, Description: "Whether the logic block passed"},
				},
				Required: []string{"success", "result"},
			},
		},
	}
}

func (l *Filter) ValidateInputs(inputs map[string]any) error {
	_, err := condition(inputs)

	return err
}

func (l *Filter) Execute(_ context.Context, input protocol.StepInput) (map[string]any, error) {
	cond, err := condition(input.Inputs)
	if err != nil {
		return nil, err
	}

	result := compare(cond, input.Inputs["field"], input.Inputs["value"])

	return map[string]any{
		protocol.LogicOutputKey: result,
		"result":                result,
	}, nil
}

func condition(inputs map[string]any) (string, error) {
	cond, _ := inputs["condition"].(string)
	if cond == "" {
		return ConditionEqual, nil
	}

	switch cond {
	case ConditionEqual, ConditionNotEqual, ConditionGreaterThan, ConditionLessThan:
		return cond, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidCondition, cond)
	}
}

// compare compares numerically when both sides are numbers, then as RFC 3339 dates,
// and otherwise as strings.
func compare(cond string, field, value any) bool {
	var order int

	if a, b, ok := asNumbers(field, value); ok {
		order = cmpFloat(a, b)
	} else if a, b, ok := asTimes(field, value); ok {
		order = a.Compare(b)
	} else {
		order = strings.Compare(fmt.Sprint(field), fmt.Sprint(value))
	}

	switch cond {
	case ConditionNotEqual:
		return order != 0
	case ConditionGreaterThan:
		return order > 0
	case ConditionLessThan:
		return order < 0
	default:
		return order == 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asNumbers(a, b any) (float64, float64, bool) {
	x, ok := asNumber(a)
	if !ok {
		return 0, 0, false
	}

	y, ok := asNumber(b)
	if !ok {
		return 0, 0, false
	}

	return x, y, true
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func asTimes(a, b any) (time.Time, time.Time, bool) {
	sa, ok := a.(string)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	sb, ok := b.(string)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	ta, err := time.Parse(time.RFC3339, sa)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	tb, err := time.Parse(time.RFC3339, sb)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	return ta, tb, true
}
