package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/workflow-manager/pkg/eventbus"
	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/workflow"
)

type WorkerManager struct {
	id         string
	logger     *slog.Logger
	reconciler *workflow.Reconciler
	eventBus   eventbus.EventBus
}

func NewWorkerManager(
	id string,
	reconciler *workflow.Reconciler,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:         id,
		logger:     logger.With("module", "wfm-worker", "worker_id", id),
		reconciler: reconciler,
		eventBus:   eventBus,
	}
}

// Register binds one handler per consumed event type.
func (w *WorkerManager) Register() error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.WorkflowRequestEvent:   w.handleWorkflowRequest,
		events.ArtifactsReceivedEvent: w.handleArtifactsReceived,
		events.TaskUpdateEvent:        w.handleTaskUpdate,
		events.TaskCallbackEvent:      w.handleTaskCallback,
		events.TaskCancellationEvent:  w.handleTaskCancellation,
	}

	for eventType, handler := range handlers {
		err := w.eventBus.Handle(eventType, handler)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.Register()
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleWorkflowRequest(ctx context.Context, event any) error {
	request, ok := event.(*events.WorkflowRequest)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for WorkflowRequest")

		return nil
	}

	result, err := w.reconciler.HandleWorkflowRequest(ctx, request)

	return w.done(ctx, events.WorkflowRequestEvent, result, err, "payload_id", request.PayloadID)
}

func (w *WorkerManager) handleArtifactsReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.ArtifactsReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ArtifactsReceived")

		return nil
	}

	result, err := w.reconciler.HandleArtifactsReceived(ctx, received)

	return w.done(ctx, events.ArtifactsReceivedEvent, result, err,
		"payload_id", received.PayloadID,
		"workflow_instance_id", received.WorkflowInstanceID,
	)
}

func (w *WorkerManager) handleTaskUpdate(ctx context.Context, event any) error {
	update, ok := event.(*events.TaskUpdate)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TaskUpdate")

		return nil
	}

	result, err := w.reconciler.HandleTaskUpdate(ctx, update)

	return w.done(ctx, events.TaskUpdateEvent, result, err,
		"workflow_instance_id", update.WorkflowInstanceID,
		"execution_id", update.ExecutionID,
	)
}

func (w *WorkerManager) handleTaskCallback(ctx context.Context, event any) error {
	callback, ok := event.(*events.TaskCallback)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TaskCallback")

		return nil
	}

	result, err := w.reconciler.HandleTaskCallback(ctx, callback)

	return w.done(ctx, events.TaskCallbackEvent, result, err,
		"workflow_instance_id", callback.WorkflowInstanceID,
		"execution_id", callback.ExecutionID,
	)
}

func (w *WorkerManager) handleTaskCancellation(ctx context.Context, event any) error {
	cancellation, ok := event.(*events.TaskCancellation)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TaskCancellation")

		return nil
	}

	result, err := w.reconciler.HandleTaskCancellation(ctx, cancellation)

	return w.done(ctx, events.TaskCancellationEvent, result, err,
		"workflow_instance_id", cancellation.WorkflowInstanceID,
		"execution_id", cancellation.ExecutionID,
	)
}

// done logs the outcome and hands err back to the bus, which nacks on error.
func (w *WorkerManager) done(ctx context.Context, eventType events.EventType, result workflow.Result, err error, attrs ...any) error {
	logger := w.logger.With(attrs...).With("event_type", eventType)

	if err != nil {
		logger.ErrorContext(ctx, "Failed to handle event, requesting redelivery", "error", err)

		return err
	}

	logger.DebugContext(ctx, "Event handled",
		"outcome", result.Outcome,
		"dispatched", len(result.Dispatched),
	)

	return nil
}
