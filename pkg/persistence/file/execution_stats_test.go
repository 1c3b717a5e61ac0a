package file

import (
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionStatsRepository_Queries(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionStatsRepository()
	ctx := t.Context()

	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := []*models.ExecutionStats{
		{ExecutionID: "e1", Version: models.ExecutionStatsVersion, WorkflowID: "W1", TaskID: "router", StartedUTC: t0, Status: "Succeeded", DurationSeconds: 10, ExecutionTimeSeconds: 4},
		{ExecutionID: "e2", Version: models.ExecutionStatsVersion, WorkflowID: "W1", TaskID: "router", StartedUTC: t0.Add(time.Minute), Status: "Succeeded", DurationSeconds: 20, ExecutionTimeSeconds: 8},
		{ExecutionID: "e3", Version: models.ExecutionStatsVersion, WorkflowID: "W1", TaskID: "router", StartedUTC: t0.Add(2 * time.Minute), Status: "Failed", DurationSeconds: 100},
		{ExecutionID: "e4", Version: models.ExecutionStatsVersion, WorkflowID: "W2", TaskID: "router", StartedUTC: t0, Status: "Failed"},
	}
	for _, row := range rows {
		require.NoError(t, repo.Upsert(ctx, row))
	}

	filter := persistence.StatsFilter{Start: t0.Add(-time.Hour), End: t0.Add(time.Hour), WorkflowID: "W1", TaskID: "router"}

	counts, err := repo.CountByStatus(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, []models.StatusCount{{Status: "Failed", Count: 1}, {Status: "Succeeded", Count: 2}}, counts)

	total, err := repo.Count(ctx, persistence.StatsFilter{Start: t0.Add(-time.Hour), End: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	average, err := repo.Average(ctx, filter)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, average.AverageDurationSeconds, 1e-9)
	assert.InDelta(t, 6.0, average.AverageExecutionTimeSeconds, 1e-9)

	empty, err := repo.Average(ctx, persistence.StatsFilter{WorkflowID: "W3", TaskID: "router"})
	require.NoError(t, err)
	assert.Equal(t, models.AverageStats{}, empty)

	page, err := repo.List(ctx, filter, persistence.NewPaging(1, 2))
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "e3", page[0].ExecutionID)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrExecutionStatsNotFound)
}

func TestExecutionStatsRepository_ApplyInAnyOrder(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionStatsRepository()
	ctx := t.Context()

	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	finished := t0.Add(5 * time.Second)
	seconds := 3.0

	dispatched := func(executionID string) persistence.ExecutionStatsChange {
		return persistence.ExecutionStatsChange{
			ExecutionID: executionID, WorkflowID: "W1", TaskID: "router",
			StartedUTC: &t0, Status: "Dispatched", LastUpdatedUTC: &t0, DefaultStatus: true,
		}
	}
	succeeded := func(executionID string) persistence.ExecutionStatsChange {
		return persistence.ExecutionStatsChange{
			ExecutionID: executionID, WorkflowInstanceID: "wi-1", TaskID: "router",
			Status: "Succeeded", LastUpdatedUTC: &finished, CompletedAtUTC: &finished, ExecutionTimeSeconds: &seconds,
		}
	}

	require.NoError(t, repo.Apply(ctx, dispatched("dispatch-first")))
	require.NoError(t, repo.Apply(ctx, succeeded("dispatch-first")))
	require.NoError(t, repo.Apply(ctx, succeeded("update-first")))
	require.NoError(t, repo.Apply(ctx, dispatched("update-first")))

	for _, executionID := range []string{"dispatch-first", "update-first"} {
		row, err := repo.Get(ctx, executionID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatsVersion, row.Version)
		assert.Equal(t, "Succeeded", row.Status, executionID)
		assert.Equal(t, "W1", row.WorkflowID)
		assert.Equal(t, "wi-1", row.WorkflowInstanceID)
		assert.True(t, t0.Equal(row.StartedUTC))
		assert.True(t, finished.Equal(row.LastUpdatedUTC))
		require.NotNil(t, row.CompletedAtUTC)
		assert.InDelta(t, 5.0, row.DurationSeconds, 1e-9, executionID)
		assert.InDelta(t, 3.0, row.ExecutionTimeSeconds, 1e-9)
	}
}

func TestPayloadRepository_UpsertKeepsInstanceIDs(t *testing.T) {
	repo := NewPersistence(t.TempDir()).PayloadRepository()
	ctx := t.Context()

	require.NoError(t, repo.Upsert(ctx, &models.Payload{PayloadID: "payload-1", Bucket: "bucket", Timestamp: time.Now().UTC()}))
	require.NoError(t, repo.AddWorkflowInstanceID(ctx, "payload-1", "wi-1"))
	require.NoError(t, repo.AddWorkflowInstanceID(ctx, "payload-1", "wi-1"))
	require.NoError(t, repo.Upsert(ctx, &models.Payload{PayloadID: "payload-1", Bucket: "other"}))

	payload, err := repo.GetByID(ctx, "payload-1")
	require.NoError(t, err)
	assert.Equal(t, "bucket", payload.Bucket)
	assert.Equal(t, []string{"wi-1"}, payload.WorkflowInstanceIDs)

	err = repo.AddWorkflowInstanceID(ctx, "missing", "wi-1")
	require.ErrorIs(t, err, persistence.ErrPayloadNotFound)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestArtifactReceivedRepository_ListByInstanceTask(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ArtifactReceivedRepository()
	ctx := t.Context()

	t0 := time.Now().UTC()
	require.NoError(t, repo.Add(ctx, &models.ArtifactReceivedItem{ID: "a2", WorkflowInstanceID: "wi-1", TaskID: "review", Received: t0.Add(time.Second)}))
	require.NoError(t, repo.Add(ctx, &models.ArtifactReceivedItem{ID: "a1", WorkflowInstanceID: "wi-1", TaskID: "review", Received: t0}))
	require.NoError(t, repo.Add(ctx, &models.ArtifactReceivedItem{ID: "a3", WorkflowInstanceID: "wi-1", TaskID: "router", Received: t0}))

	items, err := repo.ListByInstanceTask(ctx, "wi-1", "review")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a1", items[0].ID)
	assert.Equal(t, "a2", items[1].ID)
}
