// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/validation"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidWorkflow    = validation.ErrInvalidWorkflow
	ErrInvalidStatsFilter = errors.New("invalid stats filter")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")

	// Not Found Errors (404 Not Found).
	ErrWorkflowNotFound         = persistence.ErrWorkflowNotFound
	ErrWorkflowInstanceNotFound = persistence.ErrWorkflowInstanceNotFound
	ErrTaskNotFound             = persistence.ErrTaskNotFound
	ErrPayloadNotFound          = persistence.ErrPayloadNotFound
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
		errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidStatsFilter) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
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
