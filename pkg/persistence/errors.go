package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrRevisionConflict indicates a write carried a stale or missing revision.
	ErrRevisionConflict = errors.New("document update conflict")

	// ErrWebhookNotFound indicates a webhook registration was not found.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrInvalidID indicates an identifier that cannot be used as a document key.
	ErrInvalidID = errors.New("invalid document id")
)

// AutomationError wraps automation-related errors with additional context.
type AutomationError struct {
	Op           string // Operation being performed (e.g., "Get", "Put", "Remove")
	AppID        string
	AutomationID string
	Err          error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("%s operation failed for automation %s in app %s: %v", e.Op, e.AutomationID, e.AppID, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for automation errors.
func (e *AutomationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAutomationError creates a new automation error with context.
func NewAutomationError(op, appID, automationID string, err error) *AutomationError {
	return &AutomationError{
		Op:           op,
		AppID:        appID,
		AutomationID: automationID,
		Err:          err,
	}
}

// IsAutomationNotFound checks if an error indicates an automation was not found.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsConflictError checks if an error indicates a stale revision.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}

// IsWebhookNotFound checks if an error indicates a webhook was not found.
func IsWebhookNotFound(err error) bool {
	return errors.Is(err, ErrWebhookNotFound)
}
