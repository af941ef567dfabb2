// Package web provides the HTTP control surface for automations and webhooks.
package web

import "github.com/dukex/autoflow/pkg/models"

// SaveAutomationRequest is the body of POST and PUT /automations.
type SaveAutomationRequest struct {
	ID         string            `json:"_id,omitempty"`
	Rev        string            `json:"_rev,omitempty"`
	Type       string            `json:"type,omitempty"`
	Name       string            `json:"name,omitempty"`
	Definition models.Definition `json:"definition"     validate:"required"`
	Live       *bool             `json:"live,omitempty"`
}

// Automation converts the request into a document.
func (r SaveAutomationRequest) Automation() *models.Automation {
	return &models.Automation{
		ID:         r.ID,
		Rev:        r.Rev,
		Type:       r.Type,
		Name:       r.Name,
		Definition: r.Definition,
		Live:       r.Live,
	}
}

// AutomationResponse carries a saved or triggered automation with a status message.
type AutomationResponse struct {
	Message    string                  `json:"message"`
	Automation *models.Automation      `json:"automation"`
	Execution  *models.ExecutionResult `json:"execution,omitempty"`
}

// DeleteAutomationResponse acknowledges a removed document.
type DeleteAutomationResponse struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
