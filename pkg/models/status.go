package models

// TaskExecutionStatus is the lifecycle state of one task attempt.
type TaskExecutionStatus string

const (
	TaskExecutionStatusCreated     TaskExecutionStatus = "Created"
	TaskExecutionStatusDispatched  TaskExecutionStatus = "Dispatched"
	TaskExecutionStatusAccepted    TaskExecutionStatus = "Accepted"
	TaskExecutionStatusSucceeded   TaskExecutionStatus = "Succeeded"
	TaskExecutionStatusFailed      TaskExecutionStatus = "Failed"
	TaskExecutionStatusPartialFail TaskExecutionStatus = "PartialFail"
	TaskExecutionStatusCanceled    TaskExecutionStatus = "Canceled"
	TaskExecutionStatusUnknown     TaskExecutionStatus = "Unknown"
)

// IsTerminal reports whether no further transition may leave the status.
func (s TaskExecutionStatus) IsTerminal() bool {
	switch s {
	case TaskExecutionStatusSucceeded,
		TaskExecutionStatusFailed,
		TaskExecutionStatusPartialFail,
		TaskExecutionStatusCanceled:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status needs operator attention.
func (s TaskExecutionStatus) IsFailure() bool {
	return s == TaskExecutionStatusFailed || s == TaskExecutionStatusPartialFail
}

// IsValid reports whether s is one of the known statuses.
func (s TaskExecutionStatus) IsValid() bool {
	switch s {
	case TaskExecutionStatusCreated,
		TaskExecutionStatusDispatched,
		TaskExecutionStatusAccepted,
		TaskExecutionStatusSucceeded,
		TaskExecutionStatusFailed,
		TaskExecutionStatusPartialFail,
		TaskExecutionStatusCanceled,
		TaskExecutionStatusUnknown:
		return true
	default:
		return false
	}
}

// NonTerminalTaskStatuses lists the statuses a task may still leave.
var NonTerminalTaskStatuses = []TaskExecutionStatus{
	TaskExecutionStatusCreated,
	TaskExecutionStatusDispatched,
	TaskExecutionStatusAccepted,
	TaskExecutionStatusUnknown,
}

// WorkflowInstanceStatus is derived from the statuses of the instance tasks.
type WorkflowInstanceStatus string

const (
	WorkflowInstanceStatusCreated   WorkflowInstanceStatus = "Created"
	WorkflowInstanceStatusSucceeded WorkflowInstanceStatus = "Succeeded"
	WorkflowInstanceStatusFailed    WorkflowInstanceStatus = "Failed"
	WorkflowInstanceStatusCanceled  WorkflowInstanceStatus = "Canceled"
)

func (s WorkflowInstanceStatus) IsValid() bool {
	switch s {
	case WorkflowInstanceStatusCreated, WorkflowInstanceStatusSucceeded,
		WorkflowInstanceStatusFailed, WorkflowInstanceStatusCanceled:
		return true
	default:
		return false
	}
}

// FailureReason qualifies a terminal task status.
type FailureReason string

const (
	FailureReasonNone                    FailureReason = "None"
	FailureReasonUnknown                 FailureReason = "Unknown"
	FailureReasonPluginError             FailureReason = "PluginError"
	FailureReasonExternalServiceError    FailureReason = "ExternalServiceError"
	FailureReasonTimedOut                FailureReason = "TimedOut"
	FailureReasonCancelled               FailureReason = "Cancelled"
	FailureReasonRejected                FailureReason = "Rejected"
	FailureReasonMandatoryOutputsMissing FailureReason = "MandatoryOutputsMissing"
)
