package models

import "time"

// ExecutionContext is the per-run bag threaded through step execution.
type ExecutionContext struct {
	ID           string           `json:"id"`
	AutomationID string           `json:"automation_id"`
	AppID        string           `json:"appId"`
	Event        map[string]any   `json:"event"`
	Steps        []map[string]any `json:"steps"`
	GetResponses bool             `json:"get_responses"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// RunStatus is the state of a single automation run.
type RunStatus string

const (
	// RunStatusPending is reported for a dispatched run that has not finished yet.
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// StepResult is the recorded outcome of one executed step.
type StepResult struct {
	Index   int            `json:"index"`
	ID      string         `json:"id,omitempty"`
	StepID  string         `json:"stepId"`
	Outputs map[string]any `json:"outputs"`
}

// ExecutionResult aggregates a run. Error holds the first failing step's error.
type ExecutionResult struct {
	ExecutionID  string         `json:"executionId"`
	AutomationID string         `json:"automationId"`
	Status       RunStatus      `json:"status"`
	Trigger      map[string]any `json:"trigger,omitempty"`
	Steps        []StepResult   `json:"steps,omitempty"`
	Stopped      bool           `json:"stopped,omitempty"`
	FailedStep   *int           `json:"failedStep,omitempty"`
	Error        string         `json:"err,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt,omitzero"`
}

// Failed reports whether the run ended in the failed state.
func (r *ExecutionResult) Failed() bool {
	return r.Status == RunStatusFailed
}
