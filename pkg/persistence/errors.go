package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	ErrWorkflowNotFound              = errors.New("workflow not found")
	ErrWorkflowInstanceNotFound      = errors.New("workflow instance not found")
	ErrWorkflowInstanceAlreadyExists = errors.New("workflow instance already exists")
	ErrTaskNotFound                  = errors.New("task not found")
	ErrTaskAlreadyExists             = errors.New("task already exists in workflow instance")
	ErrPayloadNotFound               = errors.New("payload not found")
	ErrExecutionStatsNotFound        = errors.New("execution stats not found")
	ErrWorkflowRevisionAlreadyExists = errors.New("workflow revision already exists")

	// ErrConcurrentUpdate indicates a conditional element update matched nothing
	// because the task changed after it was read.
	ErrConcurrentUpdate = errors.New("task was concurrently updated")
)

// WorkflowError wraps workflow revision errors with additional context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// InstanceError wraps workflow instance and task errors with additional context.
type InstanceError struct {
	Op                 string
	WorkflowInstanceID string
	ExecutionID        string
	Err                error
}

func (e *InstanceError) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("%s operation failed for execution %s in workflow instance %s: %v", e.Op, e.ExecutionID, e.WorkflowInstanceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow instance %s: %v", e.Op, e.WorkflowInstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:                 op,
		WorkflowInstanceID: instanceID,
		Err:                err,
	}
}

func NewTaskError(op, instanceID, executionID string, err error) *InstanceError {
	return &InstanceError{
		Op:                 op,
		WorkflowInstanceID: instanceID,
		ExecutionID:        executionID,
		Err:                err,
	}
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrWorkflowInstanceNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrPayloadNotFound) ||
		errors.Is(err, ErrExecutionStatsNotFound)
}

func IsWorkflowInstanceNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowInstanceNotFound)
}

func IsConcurrentUpdate(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}
