// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestAutomation creates an APP triggered automation with one SERVER_LOG step
// that can be overridden.
func CreateTestAutomation(overrides ...func(*models.Automation)) *models.Automation {
	automation := &models.Automation{
		ID:    "au_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		AppID: "app_test",
		Type:  models.DocumentTypeAutomation,
		Name:  "Test Automation",
		Definition: models.Definition{
			Trigger: CreateTestStep("APP", models.StepTypeTrigger, map[string]any{}),
			Steps: []*models.Step{
				CreateTestStep("SERVER_LOG", models.StepTypeAction, map[string]any{"text": "test"}),
			},
		},
	}

	for _, override := range overrides {
		override(automation)
	}

	return automation
}

// CreateTestStep creates a step with a generated id.
func CreateTestStep(stepID string, stepType models.StepType, inputs map[string]any) *models.Step {
	return &models.Step{
		ID:     uuid.NewString(),
		StepID: stepID,
		Type:   stepType,
		Name:   stepID,
		Inputs: inputs,
	}
}

// WithAppID sets the owning app.
func WithAppID(appID string) func(*models.Automation) {
	return func(a *models.Automation) {
		a.AppID = appID
	}
}

// WithTrigger replaces the trigger.
func WithTrigger(stepID string, inputs map[string]any) func(*models.Automation) {
	return func(a *models.Automation) {
		a.Definition.Trigger = CreateTestStep(stepID, models.StepTypeTrigger, inputs)
	}
}

// WithSteps replaces the step list.
func WithSteps(steps ...*models.Step) func(*models.Automation) {
	return func(a *models.Automation) {
		a.Definition.Steps = steps
	}
}

// WithoutID clears identity so the automation can be created.
func WithoutID() func(*models.Automation) {
	return func(a *models.Automation) {
		a.ID = ""
		a.Rev = ""
	}
}
