package models

import "time"

// TestHistoryRecord is an append-only entry describing one manual test run.
type TestHistoryRecord struct {
	ID           string           `json:"id"`
	AutomationID string           `json:"automationId"`
	AppID        string           `json:"appId"`
	Event        map[string]any   `json:"event"`
	Output       *ExecutionResult `json:"output,omitempty"`
	OccurredAt   time.Time        `json:"occurredAt"`
}
