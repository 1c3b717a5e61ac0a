package workflow

import (
	"context"
	"errors"
	"maps"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/otelhelper"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/statemachine"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// taskEvent is a task level event normalized for the state machine.
type taskEvent struct {
	instanceID     string
	taskID         string
	executionID    string
	event          statemachine.Event
	outputs        map[string]string
	metadata       map[string]any
	executionStats map[string]string
	// record forwards the event to the stats recorder.
	record func(context.Context)
}

// recordStats reports te unless the addressed task is already terminal.
func (te taskEvent) recordStats(ctx context.Context, task *models.TaskExecution) {
	if te.record == nil || (task != nil && task.Status.IsTerminal()) {
		return
	}

	te.record(ctx)
}

// HandleTaskUpdate applies a status reported by a task plugin.
func (r *Reconciler) HandleTaskUpdate(ctx context.Context, ev *events.TaskUpdate) (Result, error) {
	ctx, span := r.startTaskSpan(ctx, "task.update", ev.WorkflowInstanceID, ev.TaskID, ev.ExecutionID)
	defer span.End()

	if err := r.validate.Struct(ev); err != nil || !ev.Status.IsValid() {
		r.logger.WarnContext(ctx, "dropping invalid task update",
			"workflow_instance_id", ev.WorkflowInstanceID, "execution_id", ev.ExecutionID, "status", ev.Status, "error", err)

		return Result{Outcome: OutcomeDropped}, nil
	}

	result, err := r.applyTaskEvent(ctx, taskEvent{
		instanceID:  ev.WorkflowInstanceID,
		taskID:      ev.TaskID,
		executionID: ev.ExecutionID,
		event: statemachine.Event{
			Kind:   statemachine.EventStatusUpdate,
			Status: ev.Status,
			Reason: ev.Reason,
		},
		outputs:        events.OutputsMap(ev.Outputs),
		metadata:       ev.Metadata,
		executionStats: ev.ExecutionStats,
		record:         func(ctx context.Context) { r.recordUpdate(ctx, ev) },
	})
	otelhelper.RecordOutcome(span, string(result.Outcome), err)

	return result, err
}

// HandleTaskCallback applies the decision of a human-in-the-loop callback.
// A callback without a status approves the task.
func (r *Reconciler) HandleTaskCallback(ctx context.Context, ev *events.TaskCallback) (Result, error) {
	ctx, span := r.startTaskSpan(ctx, "task.callback", ev.WorkflowInstanceID, ev.TaskID, ev.ExecutionID)
	defer span.End()

	status := ev.Status
	if status == "" {
		status = models.TaskExecutionStatusSucceeded
	}

	if err := r.validate.Struct(ev); err != nil || !status.IsValid() {
		r.logger.WarnContext(ctx, "dropping invalid task callback",
			"workflow_instance_id", ev.WorkflowInstanceID, "execution_id", ev.ExecutionID, "status", ev.Status, "error", err)

		return Result{Outcome: OutcomeDropped}, nil
	}

	metadata := ev.Metadata
	if ev.Identity != "" {
		metadata = maps.Clone(metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}

		metadata["callback_identity"] = ev.Identity
	}

	result, err := r.applyTaskEvent(ctx, taskEvent{
		instanceID:  ev.WorkflowInstanceID,
		taskID:      ev.TaskID,
		executionID: ev.ExecutionID,
		event: statemachine.Event{
			Kind:   statemachine.EventCallback,
			Status: status,
			Reason: ev.Reason,
		},
		outputs:  events.OutputsMap(ev.Outputs),
		metadata: metadata,
	})
	otelhelper.RecordOutcome(span, string(result.Outcome), err)

	return result, err
}

// HandleTaskCancellation forces a non-terminal task to Canceled.
func (r *Reconciler) HandleTaskCancellation(ctx context.Context, ev *events.TaskCancellation) (Result, error) {
	ctx, span := r.startTaskSpan(ctx, "task.cancellation", ev.WorkflowInstanceID, ev.TaskID, ev.ExecutionID)
	defer span.End()

	if err := r.validate.Struct(ev); err != nil {
		r.logger.WarnContext(ctx, "dropping invalid task cancellation",
			"workflow_instance_id", ev.WorkflowInstanceID, "execution_id", ev.ExecutionID, "error", err)

		return Result{Outcome: OutcomeDropped}, nil
	}

	var metadata map[string]any
	if ev.Identity != "" || ev.Message != "" {
		metadata = map[string]any{"cancelled_by": ev.Identity, "cancellation_message": ev.Message}
	}

	result, err := r.applyTaskEvent(ctx, taskEvent{
		instanceID:  ev.WorkflowInstanceID,
		taskID:      ev.TaskID,
		executionID: ev.ExecutionID,
		event: statemachine.Event{
			Kind:   statemachine.EventCancel,
			Reason: ev.Reason,
		},
		metadata: metadata,
		record:   func(ctx context.Context) { r.recordCancellation(ctx, ev) },
	})
	otelhelper.RecordOutcome(span, string(result.Outcome), err)

	return result, err
}

// applyTaskEvent loads the addressed task, runs the transition and persists it
// with a compare-and-set on the status the task was read in. A terminal
// transition refreshes the instance status and, on success, dispatches the
// downstream tasks.
func (r *Reconciler) applyTaskEvent(ctx context.Context, te taskEvent) (Result, error) {
	instances := r.persistence.WorkflowInstanceRepository()

	instance, err := instances.GetByID(ctx, te.instanceID)
	if persistence.IsWorkflowInstanceNotFound(err) {
		te.recordStats(ctx, nil)
		r.eventLog.WorkflowInstanceNotFound(ctx, te.instanceID)
		r.metrics.Rejected(metrics.RejectedInstanceNotFound)

		return Result{Outcome: OutcomeDropped}, nil
	}

	if err != nil {
		return Result{}, err
	}

	index := instance.TaskIndex(te.taskID, te.executionID)
	if index < 0 {
		te.recordStats(ctx, nil)
		r.eventLog.TaskNotFoundInWorkflowInstance(ctx, instance.ID, te.taskID, te.executionID)
		r.metrics.Rejected(metrics.RejectedTaskNotFound)

		return Result{Outcome: OutcomeDropped}, nil
	}

	task := instance.Tasks[index]
	te.recordStats(ctx, &task)

	ev := te.event
	outputs := mergeOutputs(task.OutputArtifacts, te.outputs)

	var revision *models.WorkflowRevision
	if ev.Status == models.TaskExecutionStatusSucceeded && !task.Status.IsTerminal() {
		revision = r.revisionOf(ctx, instance)
		if revision != nil {
			if def, ok := revision.Workflow.FindTask(task.TaskID); ok {
				ev.MissingOutputs = statemachine.MissingMandatoryOutputs(def, outputs)
			}
		}
	}

	transition, err := statemachine.Apply(task.Status, ev)
	if err != nil {
		r.eventLog.TaskStatusUpdateNotValid(ctx, instance.ID, task.ExecutionID, string(task.Status), string(ev.Kind), string(ev.Status))
		r.metrics.Rejected(metrics.RejectedInvalidTransition)

		return Result{Outcome: OutcomeRejected}, nil
	}

	if len(ev.MissingOutputs) > 0 {
		r.eventLog.MandatoryOutputsMissing(ctx, instance.ID, task.TaskID, ev.MissingOutputs)
	}

	update := persistence.TaskStatusUpdate{
		ExecutionID:    task.ExecutionID,
		ExpectedStatus: task.Status,
		Status:         transition.To,
		Reason:         transition.Reason,
		ExecutionStats: te.executionStats,
	}

	if len(te.outputs) > 0 {
		update.OutputArtifacts = outputs
	}

	if len(te.metadata) > 0 {
		update.ResultMetadata = mergeMetadata(task.ResultMetadata, te.metadata)
	}

	if transition.Terminal {
		end := r.now()
		update.TaskEndTime = &end
	}

	err = instances.UpdateTaskStatus(ctx, instance.ID, update)

	switch {
	case persistence.IsConcurrentUpdate(err):
		r.eventLog.TaskStatusUpdateNotValid(ctx, instance.ID, task.ExecutionID, string(task.Status), string(ev.Kind), string(transition.To))
		r.metrics.Rejected(metrics.RejectedConcurrentUpdate)

		return Result{Outcome: OutcomeRejected}, nil
	case errors.Is(err, persistence.ErrTaskNotFound):
		r.eventLog.TaskNotFoundInWorkflowInstance(ctx, instance.ID, task.TaskID, task.ExecutionID)
		r.metrics.Rejected(metrics.RejectedTaskNotFound)

		return Result{Outcome: OutcomeDropped}, nil
	case persistence.IsWorkflowInstanceNotFound(err):
		r.eventLog.WorkflowInstanceNotFound(ctx, instance.ID)
		r.metrics.Rejected(metrics.RejectedInstanceNotFound)

		return Result{Outcome: OutcomeDropped}, nil
	case err != nil:
		return Result{}, err
	}

	r.metrics.Transition(string(transition.From), string(transition.To))
	r.eventLog.TaskStatusUpdated(ctx, instance.ID, task.ExecutionID, string(transition.From), string(transition.To))

	update.ApplyTo(&instance.Tasks[index])

	result := Result{Outcome: OutcomeApplied, Transition: &transition}

	if !transition.Terminal {
		return result, nil
	}

	if transition.DispatchDownstream && revision != nil {
		dispatched, err := r.dispatchDestinations(ctx, instance, revision.Workflow, instance.Tasks[index])
		result.Dispatched = dispatched

		if err != nil {
			return result, err
		}
	}

	return result, r.refreshStatus(ctx, instance.ID)
}

// refreshStatus persists the status derived from the stored tasks of the
// instance when it changed. The instance is read again after this handler's
// own writes so sibling tasks finishing concurrently are taken into account.
func (r *Reconciler) refreshStatus(ctx context.Context, instanceID string) error {
	instances := r.persistence.WorkflowInstanceRepository()

	instance, err := instances.GetByID(ctx, instanceID)
	if persistence.IsWorkflowInstanceNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	status := statemachine.DeriveInstanceStatus(instance.Tasks)
	if status == instance.Status {
		return nil
	}

	err = instances.UpdateStatus(ctx, instance.ID, status)
	if err != nil {
		return err
	}

	r.eventLog.WorkflowInstanceStatusUpdated(ctx, instance.ID, string(status))

	return nil
}

// revisionOf returns the revision an instance was started from, or nil when
// it can no longer be found.
func (r *Reconciler) revisionOf(ctx context.Context, instance *models.WorkflowInstance) *models.WorkflowRevision {
	revision, err := r.persistence.WorkflowRepository().GetByRevision(ctx, instance.WorkflowID, instance.Revision)
	if err != nil {
		if persistence.IsNotFound(err) {
			r.eventLog.WorkflowNotFound(ctx, instance.WorkflowID)
		} else {
			r.logger.ErrorContext(ctx, "failed to load workflow revision",
				"workflow_id", instance.WorkflowID, "revision", instance.Revision, "error", err)
		}

		return nil
	}

	if revision.Workflow == nil {
		return nil
	}

	return revision
}

func (r *Reconciler) startTaskSpan(ctx context.Context, name, instanceID, taskID, executionID string) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, r.tracer, name,
		attribute.String(otelhelper.WorkflowInstanceIDKey, instanceID),
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
}

func mergeOutputs(current, received map[string]string) map[string]string {
	if len(received) == 0 {
		return current
	}

	merged := make(map[string]string, len(current)+len(received))
	maps.Copy(merged, current)
	maps.Copy(merged, received)

	return merged
}

func mergeMetadata(current, received map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(received))
	maps.Copy(merged, current)
	maps.Copy(merged, received)

	return merged
}
