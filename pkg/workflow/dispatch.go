package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dukex/workflow-manager/pkg/conditions"
	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/statemachine"
)

// Keys of WorkflowInstance.InputMetadata, addressable as context.input.<key>.
const (
	InputDICOM          = "dicom"
	InputCalledAeTitle  = "called_ae_title"
	InputCallingAeTitle = "calling_ae_title"
)

// newTaskExecution builds the Dispatched execution of def inside instance.
func (r *Reconciler) newTaskExecution(instance *models.WorkflowInstance, def models.TaskObject, previousTaskID string) (models.TaskExecution, error) {
	transition, err := statemachine.Apply(models.TaskExecutionStatusCreated, statemachine.Event{Kind: statemachine.EventDispatch})
	if err != nil {
		return models.TaskExecution{}, err
	}

	executionID := r.newID()

	inputs := make(map[string]string, len(def.Artifacts.Input))
	for _, artifact := range def.Artifacts.Input {
		if path := resolveArtifactValue(artifact.Value, instance); path != "" {
			inputs[artifact.Name] = path
		}
	}

	return models.TaskExecution{
		ExecutionID:         executionID,
		TaskID:              def.ID,
		TaskType:            def.Type,
		WorkflowInstanceID:  instance.ID,
		PreviousTaskID:      previousTaskID,
		Status:              transition.To,
		Reason:              models.FailureReasonNone,
		OutputDirectory:     fmt.Sprintf("%s/workflows/%s/%s", instance.PayloadID, instance.ID, executionID),
		InputArtifacts:      inputs,
		TaskPluginArguments: maps.Clone(def.Args),
		TimeoutMinutes:      def.TimeoutMinutes,
		TaskStartTime:       r.now(),
	}, nil
}

// dispatch publishes the TaskDispatch event of task and records it.
func (r *Reconciler) dispatch(ctx context.Context, instance *models.WorkflowInstance, task models.TaskExecution) error {
	event := dispatchEvent(instance, task)

	err := r.publisher.Publish(ctx, task.ExecutionID, event)
	if err != nil {
		return fmt.Errorf("failed to publish dispatch of task %s: %w", task.TaskID, err)
	}

	r.metrics.Dispatched()
	r.eventLog.TaskDispatched(ctx, instance.ID, task.TaskID, task.ExecutionID)
	r.recordDispatch(ctx, event)

	return nil
}

// dispatchDestinations adds and dispatches the destinations of the completed
// task whose conditions hold. Destinations already present in the instance
// are skipped.
func (r *Reconciler) dispatchDestinations(ctx context.Context, instance *models.WorkflowInstance, wf *models.Workflow, completed models.TaskExecution) ([]string, error) {
	def, ok := wf.FindTask(completed.TaskID)
	if !ok {
		return nil, nil
	}

	var dispatched []string

	for _, destination := range def.TaskDestinations {
		if !r.conditionsHold(ctx, instance, completed.TaskID, destination.Conditions) {
			continue
		}

		next, ok := wf.FindTask(destination.Name)
		if !ok {
			r.eventLog.TaskDestinationNotFound(ctx, instance.ID, completed.TaskID, destination.Name)

			continue
		}

		if instance.HasTask(next.ID) {
			r.eventLog.TaskPreviouslyDispatched(ctx, instance.PayloadID, next.ID)

			continue
		}

		task, err := r.newTaskExecution(instance, next, completed.TaskID)
		if err != nil {
			return dispatched, err
		}

		err = r.persistence.WorkflowInstanceRepository().AddTask(ctx, instance.ID, task)
		if errors.Is(err, persistence.ErrTaskAlreadyExists) {
			r.eventLog.TaskPreviouslyDispatched(ctx, instance.PayloadID, next.ID)

			continue
		}

		if err != nil {
			return dispatched, err
		}

		instance.Tasks = append(instance.Tasks, task)

		err = r.dispatch(ctx, instance, task)
		if err != nil {
			return dispatched, err
		}

		dispatched = append(dispatched, task.ExecutionID)
	}

	return dispatched, nil
}

func (r *Reconciler) conditionsHold(ctx context.Context, instance *models.WorkflowInstance, taskID string, list []string) bool {
	for _, condition := range list {
		ok, err := conditions.Evaluate(condition, instance)
		if err != nil {
			r.eventLog.ConditionEvaluationFailed(ctx, instance.ID, taskID, condition, err)

			return false
		}

		if !ok {
			return false
		}
	}

	return true
}

func dispatchEvent(instance *models.WorkflowInstance, task models.TaskExecution) *events.TaskDispatch {
	event := &events.TaskDispatch{
		BaseEvent:           events.NewBaseEvent(events.TaskDispatchEvent, instance.CorrelationID),
		WorkflowInstanceID:  instance.ID,
		WorkflowID:          instance.WorkflowID,
		PayloadID:           instance.PayloadID,
		TaskID:              task.TaskID,
		ExecutionID:         task.ExecutionID,
		TaskPluginType:      task.TaskType,
		TaskPluginArguments: task.TaskPluginArguments,
		Inputs:              make([]events.Storage, 0, len(task.InputArtifacts)),
		Outputs: []events.Storage{{
			Name:             task.TaskID,
			Bucket:           instance.BucketID,
			RelativeRootPath: task.OutputDirectory,
		}},
		IntermediateStorage: &events.Storage{
			Name:             task.TaskID,
			Bucket:           instance.BucketID,
			RelativeRootPath: task.OutputDirectory + "/tmp",
		},
	}

	for _, name := range slices.Sorted(maps.Keys(task.InputArtifacts)) {
		event.Inputs = append(event.Inputs, events.Storage{
			Name:             name,
			Bucket:           instance.BucketID,
			RelativeRootPath: task.InputArtifacts[name],
		})
	}

	return event
}

// resolveArtifactValue expands a "{{ context.* }}" reference against the
// instance. Other values are returned as is.
func resolveArtifactValue(value string, instance *models.WorkflowInstance) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return trimmed
	}

	path := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, "{{"), "}}"))

	resolved := conditions.Resolve(path, instance)
	if resolved == nil {
		return ""
	}

	return fmt.Sprint(resolved)
}
