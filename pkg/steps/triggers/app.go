// Package triggers provides the built-in automation triggers.
package triggers

import (
	"github.com/dukex/autoflow/pkg/coerce"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

const AppTriggerID = "APP"

// AppTrigger fires when a user presses an automation button in a published app. Its
// "fields" input declares the field list the incoming event carries.
type AppTrigger struct{}

func NewAppTrigger() *AppTrigger {
	return &AppTrigger{}
}

func (t *AppTrigger) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          AppTriggerID,
		Type:        models.StepTypeTrigger,
		Name:        "App Action",
		Description: "Automation fired from the frontend",
		Icon:        "Apps",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"fields": {
						Type:        models.PropertyTypeObject,
						Title:       "Fields",
						Description: "Field name to type (string, number, boolean)",
					},
				},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"fields": {
						Type:        models.PropertyTypeObject,
						Description: "Fields submitted from the app frontend",
					},
				},
			},
		},
	}
}

// EventSchema turns the configured field list into a schema for event coercion.
func (t *AppTrigger) EventSchema(inputs map[string]any) *models.JSONSchema {
	fields, _ := inputs["fields"].(map[string]any)

	return coerce.FieldsSchema(fields)
}
