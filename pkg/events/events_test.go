package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ReturnsTypedEvents(t *testing.T) {
	for _, eventType := range []EventType{
		WorkflowRequestEvent,
		ArtifactsReceivedEvent,
		TaskDispatchEvent,
		TaskUpdateEvent,
		TaskCallbackEvent,
		TaskCancellationEvent,
	} {
		event, ok := New(eventType)
		require.True(t, ok, eventType)

		typed, ok := event.(interface{ GetType() EventType })
		require.True(t, ok)
		assert.Equal(t, eventType, typed.GetType())
	}

	_, ok := New("unknown")
	assert.False(t, ok)
}

func TestEventType_Topic(t *testing.T) {
	assert.Equal(t, "wfm.task.update", TaskUpdateEvent.Topic())
	assert.Equal(t, "wfm.workflow.request", WorkflowRequestEvent.Topic())
}

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(TaskDispatchEvent, "corr-1")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, TaskDispatchEvent, base.Type)
	assert.Equal(t, "corr-1", base.CorrelationID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestTaskUpdate_DecodesEmbeddedBase(t *testing.T) {
	payload := []byte(`{
		"id": "evt-1",
		"correlation_id": "corr-1",
		"workflow_instance_id": "wi-1",
		"task_id": "router",
		"execution_id": "exec-1",
		"status": "Succeeded",
		"outputs": [{"name": "mask", "path": "out/mask.dcm"}],
		"execution_stats": {"finishedAt": "2024-01-01T00:00:05Z"}
	}`)

	var update TaskUpdate
	require.NoError(t, json.Unmarshal(payload, &update))

	assert.Equal(t, "corr-1", update.CorrelationID)
	assert.Equal(t, models.TaskExecutionStatusSucceeded, update.Status)
	assert.Equal(t, map[string]string{"mask": "out/mask.dcm"}, OutputsMap(update.Outputs))
	assert.Equal(t, "2024-01-01T00:00:05Z", update.ExecutionStats["finishedAt"])
}
