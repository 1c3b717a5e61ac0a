package services

import (
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstances_Queries(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	instances := NewInstances(p)
	ctx := t.Context()

	seedInstance(t, p, "instance-1", models.WorkflowInstanceStatusCreated,
		taskExecution("exec-1", "router", models.TaskExecutionStatusDispatched))
	seedInstance(t, p, "instance-2", models.WorkflowInstanceStatusFailed,
		taskExecution("exec-2", "router", models.TaskExecutionStatusFailed))

	page, total, err := instances.List(ctx, persistence.InstanceListOptions{Status: models.WorkflowInstanceStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, "instance-2", page[0].ID)

	_, _, err = instances.List(ctx, persistence.InstanceListOptions{Status: "Exploded"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	byPayload, err := instances.GetByPayloadID(ctx, "payload-instance-1")
	require.NoError(t, err)
	require.Len(t, byPayload, 1)
	assert.Equal(t, "instance-1", byPayload[0].ID)

	task, err := instances.GetTask(ctx, "instance-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "router", task.TaskID)

	_, err = instances.GetTask(ctx, "instance-1", "exec-2")
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = instances.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrWorkflowInstanceNotFound)
}

func TestPayloads_Queries(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	payloads := NewPayloads(p)
	ctx := t.Context()

	for i, id := range []string{"payload-1", "payload-2", "payload-3"} {
		require.NoError(t, p.PayloadRepository().Upsert(ctx, &models.Payload{
			PayloadID:     id,
			Bucket:        "bucket",
			CalledAeTitle: "MONAI",
			Timestamp:     time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	page, total, err := payloads.List(ctx, persistence.NewPaging(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "payload-1", page[0].PayloadID)

	payload, err := payloads.Get(ctx, "payload-3")
	require.NoError(t, err)
	assert.Equal(t, "MONAI", payload.CalledAeTitle)

	_, err = payloads.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrPayloadNotFound)
}
