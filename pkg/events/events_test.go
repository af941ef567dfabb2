package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewBaseEvent(AutomationTriggeredEvent, "au_1", "app_1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, AutomationTriggeredEvent, event.Type)
	assert.Equal(t, "au_1", event.AutomationID)
	assert.Equal(t, "app_1", event.AppID)
	assert.False(t, event.Timestamp.Before(before))
	assert.NotNil(t, event.Metadata)

	other := NewBaseEvent(AutomationTriggeredEvent, "au_1", "app_1")
	assert.NotEqual(t, event.ID, other.ID)
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{AutomationTriggered{}, AutomationTriggeredEvent},
		{AutomationRunCompleted{}, AutomationRunCompletedEvent},
		{AutomationRunFailed{}, AutomationRunFailedEvent},
		{AutomationSaved{}, AutomationSavedEvent},
		{AutomationDeleted{}, AutomationDeletedEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.GetType())
		})
	}
}

func TestAutomationRunFailed_JSON(t *testing.T) {
	event := AutomationRunFailed{
		BaseEvent:   NewBaseEvent(AutomationRunFailedEvent, "au_1", "app_1"),
		ExecutionID: "exec-1",
		FailedStep:  2,
		StepID:      "OUTGOING_WEBHOOK",
		Error:       "connection refused",
		Duration:    time.Second,
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"automation.run.failed"`)
	assert.Contains(t, string(raw), `"automation_id":"au_1"`)
	assert.Contains(t, string(raw), `"failed_step":2`)
}
