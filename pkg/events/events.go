// Package events defines the typed messages exchanged over the bus.
package events

import (
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// TopicPrefix namespaces every topic used by the workflow manager.
const TopicPrefix = "wfm."

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const CorrelationIDMetadataKey = "correlation_id"

const (
	WorkflowRequestEvent   EventType = "workflow.request"
	ArtifactsReceivedEvent EventType = "workflow.artifacts_received"
	TaskDispatchEvent      EventType = "task.dispatch"
	TaskUpdateEvent        EventType = "task.update"
	TaskCallbackEvent      EventType = "task.callback"
	TaskCancellationEvent  EventType = "task.cancellation"
)

// Topic returns the bus topic carrying events of type t.
func (t EventType) Topic() string {
	return TopicPrefix + string(t)
}

// New returns an empty event of type t ready for decoding.
func New(t EventType) (any, bool) {
	switch t {
	case WorkflowRequestEvent:
		return &WorkflowRequest{}, true
	case ArtifactsReceivedEvent:
		return &ArtifactsReceived{}, true
	case TaskDispatchEvent:
		return &TaskDispatch{}, true
	case TaskUpdateEvent:
		return &TaskUpdate{}, true
	case TaskCallbackEvent:
		return &TaskCallback{}, true
	case TaskCancellationEvent:
		return &TaskCancellation{}, true
	default:
		return nil, false
	}
}

type BaseEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id" validate:"required"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, correlationID string) BaseEvent {
	return BaseEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// Storage locates a set of artifacts in object storage.
type Storage struct {
	Name             string `json:"name"`
	Bucket           string `json:"bucket"`
	RelativeRootPath string `json:"relative_root_path"`
}

// WorkflowRequest asks for the workflows matching the payload to be started.
type WorkflowRequest struct {
	BaseEvent

	PayloadID      string   `json:"payload_id"       validate:"required"`
	Workflows      []string `json:"workflows,omitempty"`
	CalledAeTitle  string   `json:"called_ae_title"  validate:"required"`
	CallingAeTitle string   `json:"calling_ae_title"`
	Bucket         string   `json:"bucket"           validate:"required"`
	FileCount      int      `json:"file_count"`
}

func (w WorkflowRequest) GetType() EventType {
	return WorkflowRequestEvent
}

// ArtifactsReceived reports artifacts delivered to the platform. Without a
// WorkflowInstanceID it starts matching workflows like a WorkflowRequest.
type ArtifactsReceived struct {
	BaseEvent

	PayloadID          string                    `json:"payload_id"           validate:"required"`
	WorkflowInstanceID string                    `json:"workflow_instance_id,omitempty"`
	TaskID             string                    `json:"task_id,omitempty"    validate:"required_with=WorkflowInstanceID"`
	Workflows          []string                  `json:"workflows,omitempty"`
	CalledAeTitle      string                    `json:"called_ae_title"`
	CallingAeTitle     string                    `json:"calling_ae_title"`
	Bucket             string                    `json:"bucket"`
	Artifacts          []models.ArtifactReceived `json:"artifacts"`
}

func (a ArtifactsReceived) GetType() EventType {
	return ArtifactsReceivedEvent
}

// TaskDispatch instructs a task plugin to start an execution.
type TaskDispatch struct {
	BaseEvent

	WorkflowInstanceID  string            `json:"workflow_instance_id"`
	WorkflowID          string            `json:"workflow_id"`
	PayloadID           string            `json:"payload_id"`
	TaskID              string            `json:"task_id"`
	ExecutionID         string            `json:"execution_id"`
	TaskPluginType      string            `json:"task_plugin_type"`
	Inputs              []Storage         `json:"inputs"`
	Outputs             []Storage         `json:"outputs"`
	IntermediateStorage *Storage          `json:"intermediate_storage,omitempty"`
	TaskPluginArguments map[string]string `json:"task_plugin_arguments,omitempty"`
}

func (t TaskDispatch) GetType() EventType {
	return TaskDispatchEvent
}

// TaskUpdate carries a status reported by a task plugin.
type TaskUpdate struct {
	BaseEvent

	WorkflowInstanceID string                     `json:"workflow_instance_id" validate:"required"`
	TaskID             string                     `json:"task_id"              validate:"required"`
	ExecutionID        string                     `json:"execution_id"         validate:"required"`
	Status             models.TaskExecutionStatus `json:"status"               validate:"required"`
	Reason             models.FailureReason       `json:"reason,omitempty"`
	Message            string                     `json:"message,omitempty"`
	Metadata           map[string]any             `json:"metadata,omitempty"`
	Outputs            []models.ArtifactReceived  `json:"outputs,omitempty"`
	ExecutionStats     map[string]string          `json:"execution_stats,omitempty"`
}

func (t TaskUpdate) GetType() EventType {
	return TaskUpdateEvent
}

// TaskCallback is sent by human-in-the-loop flows (for example clinical review).
// An empty Status means the reviewer approved the task.
type TaskCallback struct {
	BaseEvent

	WorkflowInstanceID string                     `json:"workflow_instance_id" validate:"required"`
	TaskID             string                     `json:"task_id"              validate:"required"`
	ExecutionID        string                     `json:"execution_id"         validate:"required"`
	Identity           string                     `json:"identity"`
	Status             models.TaskExecutionStatus `json:"status,omitempty"`
	Reason             models.FailureReason       `json:"reason,omitempty"`
	Metadata           map[string]any             `json:"metadata,omitempty"`
	Outputs            []models.ArtifactReceived  `json:"outputs,omitempty"`
}

func (t TaskCallback) GetType() EventType {
	return TaskCallbackEvent
}

// TaskCancellation forces a non-terminal task to Canceled.
type TaskCancellation struct {
	BaseEvent

	WorkflowInstanceID string               `json:"workflow_instance_id" validate:"required"`
	TaskID             string               `json:"task_id"              validate:"required"`
	ExecutionID        string               `json:"execution_id"         validate:"required"`
	Reason             models.FailureReason `json:"reason,omitempty"`
	Identity           string               `json:"identity,omitempty"`
	Message            string               `json:"message,omitempty"`
}

func (t TaskCancellation) GetType() EventType {
	return TaskCancellationEvent
}

// OutputsMap flattens received artifacts into name -> path.
func OutputsMap(artifacts []models.ArtifactReceived) map[string]string {
	if len(artifacts) == 0 {
		return nil
	}

	outputs := make(map[string]string, len(artifacts))
	for _, artifact := range artifacts {
		outputs[artifact.Name] = artifact.Path
	}

	return outputs
}

// GetCorrelationID exposes the correlation id to the bus without a type switch.
func (b BaseEvent) GetCorrelationID() string {
	return b.CorrelationID
}
