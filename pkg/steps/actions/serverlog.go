// Package actions provides the built-in automation actions.
package actions

import (
	"context"
	"fmt"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

const ServerLogID = "SERVER_LOG"

// ServerLog writes a message to the server log.
type ServerLog struct{}

func NewServerLog() *ServerLog {
	return &ServerLog{}
}

func (a *ServerLog) Definition() protocol.StepDefinition {
	return protocol.StepDefinition{
		ID:          ServerLogID,
		Type:        models.StepTypeAction,
		Name:        "Backend log",
		Description: "Logs the given text to the server (using console.log)",
		Icon:        "Monitoring",
		Schema: protocol.StepSchema{
			Inputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"text": {Type: models.PropertyTypeString, Title: "Log"},
				},
				Required: []string{"text"},
			},
			Outputs: &models.JSONSchema{
				Type: models.PropertyTypeObject,
				Properties: map[string]*models.Property{
					"success": {Type: models.PropertyTypeBoolean, Description: "Whether the action was successful"},
					"message": {Type: models.PropertyTypeString, Description: "What was output"},
				},
				Required: []string{"success", "message"},
			},
		},
	}
}

func (a *ServerLog) Execute(_ context.Context, input protocol.StepInput) (map[string]any, error) {
	text := input.Inputs["text"]
	if text == nil {
		text = ""
	}

	message := fmt.Sprintf("App %s - %v", input.AppID, text)

	input.Logger.Info(message, "step", ServerLogID)

	return map[string]any{
		"success": true,
		"message": message,
	}, nil
}
