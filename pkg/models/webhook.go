package models

import "time"

// WebhookActionAutomation is the only action type a registration can target.
const WebhookActionAutomation = "automation"

// WebhookAction describes what an incoming webhook call fires.
type WebhookAction struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// Webhook is the registration derived from an automation with a webhook-style trigger.
type Webhook struct {
	ID         string         `json:"_id"`
	AppID      string         `json:"appId"`
	Name       string         `json:"name"`
	Action     WebhookAction  `json:"action"`
	Config     map[string]any `json:"config,omitempty"`
	BodySchema *JSONSchema    `json:"bodySchema,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
