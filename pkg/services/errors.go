// Package services provides the automation builder and trigger operations behind the API.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/registry"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidAutomation = errors.New("invalid automation")
	ErrAutomationNil     = errors.New("automation cannot be nil")
	ErrMissingID         = errors.New("automation _id is required")

	// Not Found Errors (404).
	ErrAutomationNotFound = persistence.ErrAutomationNotFound
	ErrWebhookNotFound    = persistence.ErrWebhookNotFound

	// Conflicts (409).
	ErrRevisionConflict = persistence.ErrRevisionConflict
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidAutomation) ||
		errors.Is(err, ErrAutomationNil) ||
		errors.Is(err, ErrMissingID) ||
		errors.Is(err, registry.ErrUnknownStep) ||
		errors.Is(err, registry.ErrInvalidDefinition) ||
		errors.Is(err, persistence.ErrInvalidID)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrAutomationNotFound) || errors.Is(err, ErrWebhookNotFound)
}

// IsConflictError checks if an error is a stale revision that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
