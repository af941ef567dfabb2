// Package events defines event types and structures for automation lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every automation lifecycle event.
const Topic = "autoflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	AutomationTriggeredEvent    EventType = "automation.triggered"
	AutomationRunCompletedEvent EventType = "automation.run.completed"
	AutomationRunFailedEvent    EventType = "automation.run.failed"

	// Definition lifecycle events.
	AutomationSavedEvent   EventType = "automation.saved"
	AutomationDeletedEvent EventType = "automation.deleted"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	AutomationID string         `json:"automation_id"`
	AppID        string         `json:"app_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, automationID, appID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		AutomationID: automationID,
		AppID:        appID,
		Metadata:     make(map[string]any),
	}
}

type AutomationTriggered struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TriggerID   string `json:"trigger_id"`
	Mode        string `json:"mode"`
}

func (e AutomationTriggered) GetType() EventType {
	return AutomationTriggeredEvent
}

type AutomationRunCompleted struct {
	BaseEvent

	ExecutionID   string        `json:"execution_id"`
	StepsExecuted int           `json:"steps_executed"`
	Stopped       bool          `json:"stopped"`
	Duration      time.Duration `json:"duration"`
}

func (e AutomationRunCompleted) GetType() EventType {
	return AutomationRunCompletedEvent
}

type AutomationRunFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	FailedStep  int           `json:"failed_step"`
	StepID      string        `json:"step_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e AutomationRunFailed) GetType() EventType {
	return AutomationRunFailedEvent
}

type AutomationSaved struct {
	BaseEvent

	Rev       string         `json:"rev"`
	TriggerID string         `json:"trigger_id"`
	Inputs    map[string]any `json:"inputs,omitempty"`
}

func (e AutomationSaved) GetType() EventType {
	return AutomationSavedEvent
}

type AutomationDeleted struct {
	BaseEvent
}

func (e AutomationDeleted) GetType() EventType {
	return AutomationDeletedEvent
}
