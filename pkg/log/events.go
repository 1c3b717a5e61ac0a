package log

import (
	"context"
	"log/slog"
)

// EventLogger records the well-known events of the workflow manager, one
// method per event kind.
type EventLogger interface {
	WorkflowRequestReceived(ctx context.Context, payloadID, correlationID string, workflows []string)
	WorkflowRequestDuplicate(ctx context.Context, payloadID, workflowID string)
	NoMatchingWorkflows(ctx context.Context, payloadID, calledAeTitle, callingAeTitle string)
	WorkflowInstanceCreated(ctx context.Context, instanceID, workflowID, payloadID string)
	WorkflowInstanceNotFound(ctx context.Context, instanceID string)
	WorkflowNotFound(ctx context.Context, workflowID string)
	TaskNotFoundInWorkflowInstance(ctx context.Context, instanceID, taskID, executionID string)
	TaskStatusUpdateNotValid(ctx context.Context, instanceID, executionID, from, kind, to string)
	TaskStatusUpdated(ctx context.Context, instanceID, executionID, from, to string)
	TaskPreviouslyDispatched(ctx context.Context, payloadID, taskID string)
	TaskDispatched(ctx context.Context, instanceID, taskID, executionID string)
	TaskDestinationNotFound(ctx context.Context, instanceID, taskID, destination string)
	MandatoryOutputsMissing(ctx context.Context, instanceID, taskID string, missing []string)
	ConditionEvaluationFailed(ctx context.Context, instanceID, taskID, condition string, err error)
	WorkflowInstanceStatusUpdated(ctx context.Context, instanceID, status string)
	TaskTimedOut(ctx context.Context, instanceID, taskID, executionID string)
	ExecutionStatsWriteFailed(ctx context.Context, executionID string, err error)
	TaskErrorAcknowledged(ctx context.Context, instanceID, executionID string)
	WorkflowErrorsAcknowledged(ctx context.Context, instanceID string)
}

// SlogEventLogger implements EventLogger on a *slog.Logger.
type SlogEventLogger struct {
	logger *slog.Logger
}

func NewEventLogger(logger *slog.Logger) *SlogEventLogger {
	return &SlogEventLogger{logger: logger}
}

func (l *SlogEventLogger) WorkflowRequestReceived(ctx context.Context, payloadID, correlationID string, workflows []string) {
	l.logger.InfoContext(ctx, "workflow request received",
		"payload_id", payloadID, "correlation_id", correlationID, "workflows", workflows)
}

func (l *SlogEventLogger) WorkflowRequestDuplicate(ctx context.Context, payloadID, workflowID string) {
	l.logger.InfoContext(ctx, "workflow instance already exists for payload, skipping",
		"payload_id", payloadID, "workflow_id", workflowID)
}

func (l *SlogEventLogger) NoMatchingWorkflows(ctx context.Context, payloadID, calledAeTitle, callingAeTitle string) {
	l.logger.WarnContext(ctx, "no workflow matches the request",
		"payload_id", payloadID, "called_ae_title", calledAeTitle, "calling_ae_title", callingAeTitle)
}

func (l *SlogEventLogger) WorkflowInstanceCreated(ctx context.Context, instanceID, workflowID, payloadID string) {
	l.logger.InfoContext(ctx, "workflow instance created",
		"workflow_instance_id", instanceID, "workflow_id", workflowID, "payload_id", payloadID)
}

func (l *SlogEventLogger) WorkflowInstanceNotFound(ctx context.Context, instanceID string) {
	l.logger.WarnContext(ctx, "workflow instance not found", "workflow_instance_id", instanceID)
}

func (l *SlogEventLogger) WorkflowNotFound(ctx context.Context, workflowID string) {
	l.logger.WarnContext(ctx, "workflow not found", "workflow_id", workflowID)
}

func (l *SlogEventLogger) TaskNotFoundInWorkflowInstance(ctx context.Context, instanceID, taskID, executionID string) {
	l.logger.WarnContext(ctx, "task not found in workflow instance",
		"workflow_instance_id", instanceID, "task_id", taskID, "execution_id", executionID)
}

func (l *SlogEventLogger) TaskStatusUpdateNotValid(ctx context.Context, instanceID, executionID, from, kind, to string) {
	l.logger.WarnContext(ctx, "task status update not valid",
		"workflow_instance_id", instanceID, "execution_id", executionID, "from", from, "event", kind, "to", to)
}

func (l *SlogEventLogger) TaskStatusUpdated(ctx context.Context, instanceID, executionID, from, to string) {
	l.logger.DebugContext(ctx, "task status updated",
		"workflow_instance_id", instanceID, "execution_id", executionID, "from", from, "to", to)
}

func (l *SlogEventLogger) TaskPreviouslyDispatched(ctx context.Context, payloadID, taskID string) {
	l.logger.InfoContext(ctx, "task previously dispatched", "payload_id", payloadID, "task_id", taskID)
}

func (l *SlogEventLogger) TaskDispatched(ctx context.Context, instanceID, taskID, executionID string) {
	l.logger.InfoContext(ctx, "task dispatched",
		"workflow_instance_id", instanceID, "task_id", taskID, "execution_id", executionID)
}

func (l *SlogEventLogger) TaskDestinationNotFound(ctx context.Context, instanceID, taskID, destination string) {
	l.logger.WarnContext(ctx, "task destination not found in workflow",
		"workflow_instance_id", instanceID, "task_id", taskID, "destination", destination)
}

func (l *SlogEventLogger) MandatoryOutputsMissing(ctx context.Context, instanceID, taskID string, missing []string) {
	l.logger.WarnContext(ctx, "mandatory output artifacts missing",
		"workflow_instance_id", instanceID, "task_id", taskID, "missing", missing)
}

func (l *SlogEventLogger) ConditionEvaluationFailed(ctx context.Context, instanceID, taskID, condition string, err error) {
	l.logger.ErrorContext(ctx, "failed to evaluate destination condition",
		"workflow_instance_id", instanceID, "task_id", taskID, "condition", condition, "error", err)
}

func (l *SlogEventLogger) WorkflowInstanceStatusUpdated(ctx context.Context, instanceID, status string) {
	l.logger.InfoContext(ctx, "workflow instance status updated", "workflow_instance_id", instanceID, "status", status)
}

func (l *SlogEventLogger) TaskTimedOut(ctx context.Context, instanceID, taskID, executionID string) {
	l.logger.WarnContext(ctx, "task timed out",
		"workflow_instance_id", instanceID, "task_id", taskID, "execution_id", executionID)
}

func (l *SlogEventLogger) ExecutionStatsWriteFailed(ctx context.Context, executionID string, err error) {
	l.logger.ErrorContext(ctx, "failed to write execution stats", "execution_id", executionID, "error", err)
}

func (l *SlogEventLogger) TaskErrorAcknowledged(ctx context.Context, instanceID, executionID string) {
	l.logger.InfoContext(ctx, "task error acknowledged", "workflow_instance_id", instanceID, "execution_id", executionID)
}

func (l *SlogEventLogger) WorkflowErrorsAcknowledged(ctx context.Context, instanceID string) {
	l.logger.InfoContext(ctx, "workflow errors acknowledged", "workflow_instance_id", instanceID)
}
