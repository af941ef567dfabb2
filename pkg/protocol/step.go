// Package protocol defines the interfaces and contracts for pluggable automation steps.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/autoflow/pkg/models"
)

// StepDefinition is the capability metadata exposed for a step type.
type StepDefinition struct {
	ID          string          `json:"stepId"`
	Type        models.StepType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	Schema      StepSchema      `json:"schema"`
}

// StepSchema groups the declared input and output schemas of a step.
type StepSchema struct {
	Inputs  *models.JSONSchema `json:"inputs"`
	Outputs *models.JSONSchema `json:"outputs"`
}

// Step is implemented by every registered trigger, action and logic step.
type Step interface {
	Definition() StepDefinition
}

// StepInput is what an executing step receives.
type StepInput struct {
	Inputs    map[string]any
	AppID     string
	Index     int
	Execution *models.ExecutionContext
	Logger    *slog.Logger
}

// Executor runs the logic of an action or logic step. Logic steps report their branch
// condition in the "success" output.
type Executor interface {
	Step
	Execute(ctx context.Context, input StepInput) (map[string]any, error)
}

// InputValidator is implemented by steps that check their configuration when an
// automation is created or updated.
type InputValidator interface {
	ValidateInputs(inputs map[string]any) error
}

// EventSchemaProvider is implemented by triggers that declare a field list the
// incoming event's "fields" must be coerced against.
type EventSchemaProvider interface {
	EventSchema(inputs map[string]any) *models.JSONSchema
}

// WebhookTrigger is implemented by triggers that need a webhook registration.
type WebhookTrigger interface {
	RequiresWebhook() bool
}

// LogicOutputKey is the output a logic step uses to continue or halt a run.
const LogicOutputKey = "success"
