package triggers

import (
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

const WebhookTriggerID = "WEBHOOK"

// WebhookTrigger fires when an external system posts to the automation's webhook URL.
type WebhookTrigger struct{}

func NewWebhookTrigger() *WebhookTrigger {
	return &WebhookTrigger{}
}

func (t *WebhookTrigger) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          WebhookTriggerID,
		Type:        models.StepTypeTrigger,
		Name:        "Webhook",
		Description: "Trigger an automation when a HTTP POST webhook is hit",
		Icon:        "Send",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"schemaUrl": {
						Type:  models.PropertyTypeString,
						Title: "Schema URL",
					},
					"triggerUrl": {
						Type:  models.PropertyTypeString,
						Title: "Trigger URL",
					},
				},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"body": {
						Type:        models.PropertyTypeObject,
						Description: "Body of the request which hit the webhook",
					},
				},
			},
		},
	}
}

func (t *WebhookTrigger) RequiresWebhook() bool {
	return true
}
