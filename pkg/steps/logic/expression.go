package logic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const ExpressionID = "EXPRESSION"

var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrNotBoolean        = errors.New("expression did not evaluate to a boolean")
)

// Expression continues the run when a boolean expression over the trigger event and
// earlier step outputs holds.
type Expression struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewExpression() *Expression {
	return &Expression{cache: make(map[string]*vm.Program)}
}

func (l *Expression) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          ExpressionID,
		Type:        models.StepTypeLogic,
		Name:        "Expression",
		Description: "Halt the automation unless a boolean expression holds",
		Icon:        "Code",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"expression": {
						Type:        models.PropertyTypeString,
						Title:       "Expression",
						Description: "For example: trigger.fields.count > 3 && steps[0].success",
					},
				},
				Required: []string{"expression"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"success": {Type: models.PropertyTypeBoolean, Description: "Whether the expression held"},
				},
				Required: []string{"success"},
			},
		},
	}
}

func (l *Expression) ValidateInputs(inputs map[string]any) error {
	expression, _ := inputs["expression"].(string)
	_, err := l.compile(expression)

	return err
}

func (l *Expression) Execute(_ context.Context, input protocol.StepInput) (map[string]any, error) {
	expression, _ := input.Inputs["expression"].(string)

	program, err := l.compile(expression)
	if err != nil {
		return nil, err
	}

	env := map[string]any{
		"trigger": map[string]any{},
		"steps":   []any{},
		"appId":   input.AppID,
	}

	if input.Execution != nil {
		if input.Execution.Event != nil {
			env["trigger"] = input.Execution.Event
		}

		steps := make([]any, 0, len(input.Execution.Steps))
		for _, output := range input.Execution.Steps {
			steps = append(steps, output)
		}

		env["steps"] = steps
	}

	out, err := vm.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation failed for %q: %w", expression, err)
	}

	result, ok := out.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %q returned %T", ErrNotBoolean, expression, out)
	}

	return map[string]any{protocol.LogicOutputKey: result}, nil
}

func (l *Expression) compile(expression string) (*vm.Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("%w: missing required field 'expression'", ErrInvalidExpression)
	}

	l.mu.RLock()
	program, ok := l.cache[expression]
	l.mu.RUnlock()

	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(map[string]any{
			"trigger": map[string]any{},
			"steps":   []any{},
			"appId":   "",
		}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}

	l.mu.Lock()
	l.cache[expression] = program
	l.mu.Unlock()

	return program, nil
}
