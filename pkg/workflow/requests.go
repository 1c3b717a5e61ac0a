package workflow

import (
	"context"
	"errors"
	"slices"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/otelhelper"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/statemachine"
	"go.opentelemetry.io/otel/attribute"
)

// startRequest is the part of a request or an unbound artifacts event needed
// to start workflow instances.
type startRequest struct {
	PayloadID      string
	CorrelationID  string
	Workflows      []string
	CalledAeTitle  string
	CallingAeTitle string
	Bucket         string
}

// HandleWorkflowRequest starts one instance per matching workflow revision,
// skipping revisions that already have an instance for the payload.
func (r *Reconciler) HandleWorkflowRequest(ctx context.Context, req *events.WorkflowRequest) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.request",
		attribute.String(otelhelper.PayloadIDKey, req.PayloadID),
		attribute.String(otelhelper.CorrelationIDKey, req.CorrelationID),
	)
	defer span.End()

	if err := r.validate.Struct(req); err != nil {
		r.logger.WarnContext(ctx, "dropping invalid workflow request", "payload_id", req.PayloadID, "error", err)

		return Result{Outcome: OutcomeDropped}, nil
	}

	r.eventLog.WorkflowRequestReceived(ctx, req.PayloadID, req.CorrelationID, req.Workflows)

	result, err := r.start(ctx, startRequest{
		PayloadID:      req.PayloadID,
		CorrelationID:  req.CorrelationID,
		Workflows:      req.Workflows,
		CalledAeTitle:  req.CalledAeTitle,
		CallingAeTitle: req.CallingAeTitle,
		Bucket:         req.Bucket,
	})
	otelhelper.RecordOutcome(span, string(result.Outcome), err)

	return result, err
}

// HandleArtifactsReceived either starts workflows, when the event is not bound
// to an instance, or records the artifacts against the addressed task and
// completes it once its mandatory outputs are all present.
func (r *Reconciler) HandleArtifactsReceived(ctx context.Context, ev *events.ArtifactsReceived) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "workflow.artifacts_received",
		attribute.String(otelhelper.PayloadIDKey, ev.PayloadID),
		attribute.String(otelhelper.WorkflowInstanceIDKey, ev.WorkflowInstanceID),
		attribute.String(otelhelper.TaskIDKey, ev.TaskID),
	)
	defer span.End()

	if err := r.validate.Struct(ev); err != nil {
		r.logger.WarnContext(ctx, "dropping invalid artifacts received event", "payload_id", ev.PayloadID, "error", err)

		return Result{Outcome: OutcomeDropped}, nil
	}

	var (
		result Result
		err    error
	)

	if ev.WorkflowInstanceID == "" {
		if ev.CalledAeTitle == "" && len(ev.Workflows) == 0 {
			r.logger.WarnContext(ctx, "dropping artifacts received event without routing", "payload_id", ev.PayloadID)

			return Result{Outcome: OutcomeDropped}, nil
		}

		r.eventLog.WorkflowRequestReceived(ctx, ev.PayloadID, ev.CorrelationID, ev.Workflows)

		result, err = r.start(ctx, startRequest{
			PayloadID:      ev.PayloadID,
			CorrelationID:  ev.CorrelationID,
			Workflows:      ev.Workflows,
			CalledAeTitle:  ev.CalledAeTitle,
			CallingAeTitle: ev.CallingAeTitle,
			Bucket:         ev.Bucket,
		})
	} else {
		result, err = r.receiveArtifacts(ctx, ev)
	}

	otelhelper.RecordOutcome(span, string(result.Outcome), err)

	return result, err
}

func (r *Reconciler) start(ctx context.Context, req startRequest) (Result, error) {
	revisions, err := r.matchRevisions(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if len(revisions) == 0 {
		r.eventLog.NoMatchingWorkflows(ctx, req.PayloadID, req.CalledAeTitle, req.CallingAeTitle)

		return Result{Outcome: OutcomeDropped}, nil
	}

	err = r.persistence.PayloadRepository().Upsert(ctx, &models.Payload{
		PayloadID:      req.PayloadID,
		Bucket:         req.Bucket,
		CalledAeTitle:  req.CalledAeTitle,
		CallingAeTitle: req.CallingAeTitle,
		CorrelationID:  req.CorrelationID,
		Timestamp:      r.now(),
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Outcome: OutcomeDuplicate}

	for _, revision := range revisions {
		instanceID, dispatched, err := r.startRevision(ctx, req, revision)
		if err != nil {
			return result, err
		}

		if instanceID == "" {
			continue
		}

		result.Outcome = OutcomeApplied
		result.Instances = append(result.Instances, instanceID)
		result.Dispatched = append(result.Dispatched, dispatched...)
	}

	return result, nil
}

// matchRevisions returns the active revisions named by the request, or the
// ones routed to the called AE title that accept the calling AE title.
func (r *Reconciler) matchRevisions(ctx context.Context, req startRequest) ([]*models.WorkflowRevision, error) {
	workflows := r.persistence.WorkflowRepository()

	if len(req.Workflows) > 0 {
		revisions, err := workflows.GetByWorkflowIDs(ctx, req.Workflows)
		if err != nil {
			return nil, err
		}

		for _, workflowID := range req.Workflows {
			found := slices.ContainsFunc(revisions, func(rev *models.WorkflowRevision) bool {
				return rev.WorkflowID == workflowID
			})
			if !found {
				r.eventLog.WorkflowNotFound(ctx, workflowID)
			}
		}

		return revisions, nil
	}

	revisions, err := workflows.GetByAeTitle(ctx, req.CalledAeTitle)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(revisions, func(rev *models.WorkflowRevision) bool {
		return rev.Workflow == nil || !rev.Workflow.InformaticsGateway.AcceptsCaller(req.CallingAeTitle)
	}), nil
}

// startRevision creates the instance of revision for the payload and dispatches
// its entry task. An empty instance id means the payload already had one.
func (r *Reconciler) startRevision(ctx context.Context, req startRequest, revision *models.WorkflowRevision) (string, []string, error) {
	if r.guard != nil {
		claimed, err := r.guard.Claim(ctx, req.PayloadID, revision.WorkflowID)
		if err != nil {
			r.logger.WarnContext(ctx, "request guard unavailable, falling back to instance lookup", "error", err)
		} else if !claimed {
			r.eventLog.WorkflowRequestDuplicate(ctx, req.PayloadID, revision.WorkflowID)

			return "", nil, nil
		}
	}

	instanceID, dispatched, err := r.createInstance(ctx, req, revision)
	if err != nil && r.guard != nil {
		if releaseErr := r.guard.Release(ctx, req.PayloadID, revision.WorkflowID); releaseErr != nil {
			r.logger.WarnContext(ctx, "failed to release request guard", "payload_id", req.PayloadID, "error", releaseErr)
		}
	}

	return instanceID, dispatched, err
}

func (r *Reconciler) createInstance(ctx context.Context, req startRequest, revision *models.WorkflowRevision) (string, []string, error) {
	instances := r.persistence.WorkflowInstanceRepository()
	payloads := r.persistence.PayloadRepository()

	existing, err := instances.GetByWorkflowAndPayload(ctx, revision.WorkflowID, req.PayloadID)
	if err == nil {
		r.eventLog.WorkflowRequestDuplicate(ctx, req.PayloadID, revision.WorkflowID)

		return "", nil, payloads.AddWorkflowInstanceID(ctx, req.PayloadID, existing.ID)
	}

	if !persistence.IsWorkflowInstanceNotFound(err) {
		return "", nil, err
	}

	if revision.Workflow == nil || len(revision.Workflow.Tasks) == 0 {
		r.logger.WarnContext(ctx, "workflow revision has no tasks", "workflow_id", revision.WorkflowID, "revision", revision.Revision)

		return "", nil, nil
	}

	instance := &models.WorkflowInstance{
		ID:            r.newID(),
		WorkflowID:    revision.WorkflowID,
		WorkflowName:  revision.Workflow.Name,
		Revision:      revision.Revision,
		AeTitle:       revision.Workflow.InformaticsGateway.AeTitle,
		PayloadID:     req.PayloadID,
		BucketID:      req.Bucket,
		CorrelationID: req.CorrelationID,
		StartTime:     r.now(),
		Status:        models.WorkflowInstanceStatusCreated,
		InputMetadata: map[string]string{
			InputDICOM:          req.PayloadID + "/dcm",
			InputCalledAeTitle:  req.CalledAeTitle,
			InputCallingAeTitle: req.CallingAeTitle,
		},
	}

	entry, err := r.newTaskExecution(instance, revision.Workflow.Tasks[0], "")
	if err != nil {
		return "", nil, err
	}

	instance.Tasks = []models.TaskExecution{entry}

	err = instances.Create(ctx, instance)
	if errors.Is(err, persistence.ErrWorkflowInstanceAlreadyExists) {
		r.eventLog.WorkflowRequestDuplicate(ctx, req.PayloadID, revision.WorkflowID)

		return "", nil, nil
	}

	if err != nil {
		return "", nil, err
	}

	r.eventLog.WorkflowInstanceCreated(ctx, instance.ID, instance.WorkflowID, instance.PayloadID)

	err = payloads.AddWorkflowInstanceID(ctx, req.PayloadID, instance.ID)
	if err != nil {
		return "", nil, err
	}

	err = r.dispatch(ctx, instance, entry)
	if err != nil {
		return "", nil, err
	}

	return instance.ID, []string{entry.ExecutionID}, nil
}

// receiveArtifacts records artifacts delivered for a task of an existing
// instance and completes the task once every mandatory output arrived.
func (r *Reconciler) receiveArtifacts(ctx context.Context, ev *events.ArtifactsReceived) (Result, error) {
	instances := r.persistence.WorkflowInstanceRepository()

	instance, err := instances.GetByID(ctx, ev.WorkflowInstanceID)
	if persistence.IsWorkflowInstanceNotFound(err) {
		r.eventLog.WorkflowInstanceNotFound(ctx, ev.WorkflowInstanceID)

		return Result{Outcome: OutcomeDropped}, nil
	}

	if err != nil {
		return Result{}, err
	}

	index := instance.TaskIndex(ev.TaskID, "")
	if index < 0 {
		r.eventLog.TaskNotFoundInWorkflowInstance(ctx, instance.ID, ev.TaskID, "")

		return Result{Outcome: OutcomeDropped}, nil
	}

	task := instance.Tasks[index]

	err = r.persistence.ArtifactReceivedRepository().Add(ctx, &models.ArtifactReceivedItem{
		ID:                 r.newID(),
		WorkflowInstanceID: instance.ID,
		TaskID:             task.TaskID,
		CorrelationID:      ev.CorrelationID,
		Artifacts:          ev.Artifacts,
		Received:           r.now(),
	})
	if err != nil {
		return Result{}, err
	}

	if task.Status.IsTerminal() {
		return Result{Outcome: OutcomeApplied}, nil
	}

	outputs := mergeOutputs(task.OutputArtifacts, events.OutputsMap(ev.Artifacts))

	err = instances.UpdateTaskOutputs(ctx, instance.ID, task.ExecutionID, outputs)
	if err != nil {
		return Result{}, err
	}

	revision := r.revisionOf(ctx, instance)
	if revision == nil {
		return Result{Outcome: OutcomeApplied}, nil
	}

	def, ok := revision.Workflow.FindTask(task.TaskID)
	if !ok || len(statemachine.MissingMandatoryOutputs(def, outputs)) > 0 {
		return Result{Outcome: OutcomeApplied}, nil
	}

	return r.applyTaskEvent(ctx, taskEvent{
		instanceID:  instance.ID,
		taskID:      task.TaskID,
		executionID: task.ExecutionID,
		event: statemachine.Event{
			Kind:   statemachine.EventStatusUpdate,
			Status: models.TaskExecutionStatusSucceeded,
		},
		outputs: outputs,
	})
}
