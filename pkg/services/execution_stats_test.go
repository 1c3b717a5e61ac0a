package services

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/dukex/workflow-manager/pkg/mocks"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/persistence/file"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var statsStart = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestExecutionStats(t *testing.T) (*ExecutionStats, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	stats := NewExecutionStats(p, slog.New(slog.DiscardHandler), nil)

	return stats, p
}

func dispatchEvent(executionID, workflowID, taskID string, at time.Time) *events.TaskDispatch {
	dispatch := &events.TaskDispatch{
		BaseEvent:          events.NewBaseEvent(events.TaskDispatchEvent, "corr-1"),
		WorkflowInstanceID: "instance-1",
		WorkflowID:         workflowID,
		TaskID:             taskID,
		ExecutionID:        executionID,
	}
	dispatch.Timestamp = at

	return dispatch
}

func updateEvent(executionID string, status models.TaskExecutionStatus, at time.Time, stats map[string]string) *events.TaskUpdate {
	update := &events.TaskUpdate{
		BaseEvent:          events.NewBaseEvent(events.TaskUpdateEvent, "corr-1"),
		WorkflowInstanceID: "instance-1",
		TaskID:             "segmentation",
		ExecutionID:        executionID,
		Status:             status,
		ExecutionStats:     stats,
	}
	update.Timestamp = at

	return update
}

func TestExecutionStats_DispatchThenSucceeded(t *testing.T) {
	stats, p := newTestExecutionStats(t)
	ctx := t.Context()

	stats.RecordDispatch(ctx, dispatchEvent("exec-1", "wf-1", "segmentation", statsStart))

	row, err := p.ExecutionStatsRepository().Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskExecutionStatusDispatched), row.Status)
	assert.Equal(t, "wf-1", row.WorkflowID)
	assert.Equal(t, models.ExecutionStatsVersion, row.Version)
	assert.Nil(t, row.CompletedAtUTC)

	stats.RecordUpdate(ctx, updateEvent("exec-1", models.TaskExecutionStatusSucceeded, statsStart.Add(2*time.Minute), map[string]string{
		StatsFinishedAt:              statsStart.Add(90 * time.Second).Format(time.RFC3339),
		StatsPodStartPrefix + "-a":   statsStart.Add(10 * time.Second).Format(time.RFC3339),
		StatsPodStartPrefix + "-b":   statsStart.Add(20 * time.Second).Format(time.RFC3339),
		StatsPodFinishPrefix + "-a":  statsStart.Add(50 * time.Second).Format(time.RFC3339),
		StatsPodFinishPrefix + "-b":  statsStart.Add(70 * time.Second).Format(time.RFC3339),
		StatsPodFinishPrefix + "-na": "not a time",
	}))

	row, err = p.ExecutionStatsRepository().Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskExecutionStatusSucceeded), row.Status)
	require.NotNil(t, row.CompletedAtUTC)
	assert.InDelta(t, 90, row.DurationSeconds, 0.001)
	assert.InDelta(t, 60, row.ExecutionTimeSeconds, 0.001)
	assert.Equal(t, statsStart.Add(2*time.Minute), row.LastUpdatedUTC)
}

func TestExecutionStats_UpdateBeforeDispatch(t *testing.T) {
	stats, p := newTestExecutionStats(t)
	ctx := t.Context()

	stats.RecordUpdate(ctx, updateEvent("exec-1", models.TaskExecutionStatusAccepted, statsStart.Add(time.Minute), nil))
	stats.RecordDispatch(ctx, dispatchEvent("exec-1", "wf-1", "segmentation", statsStart))

	row, err := p.ExecutionStatsRepository().Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskExecutionStatusAccepted), row.Status, "a late dispatch keeps the reported status")
	assert.Equal(t, statsStart, row.StartedUTC)
	assert.Equal(t, "instance-1", row.WorkflowInstanceID)
}

func TestExecutionStats_ConcurrentDispatchAndUpdate(t *testing.T) {
	for range 20 {
		stats, p := newTestExecutionStats(t)
		ctx := t.Context()

		var (
			start = make(chan struct{})
			wg    sync.WaitGroup
		)

		wg.Add(2)

		go func() {
			defer wg.Done()
			<-start
			stats.RecordDispatch(ctx, dispatchEvent("exec-1", "wf-1", "segmentation", statsStart))
		}()

		go func() {
			defer wg.Done()
			<-start
			stats.RecordUpdate(ctx, updateEvent("exec-1", models.TaskExecutionStatusSucceeded, statsStart.Add(10*time.Second), map[string]string{
				StatsFinishedAt: statsStart.Add(5 * time.Second).Format(time.RFC3339),
			}))
		}()

		close(start)
		wg.Wait()

		row, err := p.ExecutionStatsRepository().Get(ctx, "exec-1")
		require.NoError(t, err)
		assert.Equal(t, string(models.TaskExecutionStatusSucceeded), row.Status)
		assert.Equal(t, "wf-1", row.WorkflowID)
		require.NotNil(t, row.CompletedAtUTC)
		assert.InDelta(t, 5.0, row.DurationSeconds, 0.001)
	}
}

func TestExecutionStats_RecordCancellation(t *testing.T) {
	stats, p := newTestExecutionStats(t)
	ctx := t.Context()

	stats.RecordDispatch(ctx, dispatchEvent("exec-1", "wf-1", "segmentation", statsStart))

	cancellation := &events.TaskCancellation{
		BaseEvent:          events.NewBaseEvent(events.TaskCancellationEvent, "corr-1"),
		WorkflowInstanceID: "instance-1",
		TaskID:             "segmentation",
		ExecutionID:        "exec-1",
	}
	cancellation.Timestamp = statsStart.Add(30 * time.Second)

	stats.RecordCancellation(ctx, cancellation)

	row, err := p.ExecutionStatsRepository().Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskExecutionStatusCanceled), row.Status)
	assert.Equal(t, string(models.FailureReasonCancelled), row.Reason)
	assert.InDelta(t, 30, row.DurationSeconds, 0.001)
}

func TestExecutionStats_WriteFailureIsSwallowed(t *testing.T) {
	p := mocks.NewMockPersistence()
	repo := p.GetMockExecutionStatsRepository()
	repo.On("Apply", mock.Anything, mock.MatchedBy(func(change persistence.ExecutionStatsChange) bool {
		return change.ExecutionID == "exec-1" && change.DefaultStatus
	})).Return(errors.New("connection reset"))

	m := metrics.NewUnregistered()
	stats := NewExecutionStats(p, slog.New(slog.DiscardHandler), m)

	assert.NotPanics(t, func() {
		stats.RecordDispatch(t.Context(), dispatchEvent("exec-1", "wf-1", "segmentation", statsStart))
	})

	assert.InDelta(t, 1, promtest.ToFloat64(m.ExecutionStatsFailures), 0)
	repo.AssertExpectations(t)
}

func TestExecutionStats_Queries(t *testing.T) {
	stats, _ := newTestExecutionStats(t)
	ctx := t.Context()

	for i, executionID := range []string{"exec-1", "exec-2", "exec-3"} {
		started := statsStart.Add(time.Duration(i) * time.Hour)
		stats.RecordDispatch(ctx, dispatchEvent(executionID, "wf-1", "segmentation", started))
	}

	stats.RecordUpdate(ctx, updateEvent("exec-1", models.TaskExecutionStatusSucceeded, statsStart.Add(time.Minute), map[string]string{
		StatsFinishedAt: statsStart.Add(60 * time.Second).Format(time.RFC3339),
	}))
	stats.RecordUpdate(ctx, updateEvent("exec-2", models.TaskExecutionStatusSucceeded, statsStart.Add(time.Hour+time.Minute), map[string]string{
		StatsFinishedAt: statsStart.Add(time.Hour + 120*time.Second).Format(time.RFC3339),
	}))
	stats.RecordUpdate(ctx, updateEvent("exec-3", models.TaskExecutionStatusFailed, statsStart.Add(2*time.Hour+time.Minute), nil))

	filter := persistence.StatsFilter{
		Start:      statsStart.Add(-time.Minute),
		End:        statsStart.Add(3 * time.Hour),
		WorkflowID: "wf-1",
		TaskID:     "segmentation",
	}

	rows, err := stats.GetStats(ctx, filter, persistence.NewPaging(1, 2))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	total, err := stats.GetStatsCount(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	counts, err := stats.GetStatsStatusCount(ctx, filter)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.StatusCount{
		{Status: string(models.TaskExecutionStatusSucceeded), Count: 2},
		{Status: string(models.TaskExecutionStatusFailed), Count: 1},
	}, counts)

	average, err := stats.GetAverageStats(ctx, filter)
	require.NoError(t, err)
	assert.InDelta(t, 90, average.AverageDurationSeconds, 0.001)

	empty, err := stats.GetAverageStats(ctx, persistence.StatsFilter{WorkflowID: "other", TaskID: "segmentation"})
	require.NoError(t, err)
	assert.Equal(t, models.AverageStats{}, empty)
}

func TestExecutionStats_InvalidFilter(t *testing.T) {
	stats, _ := newTestExecutionStats(t)

	tests := []struct {
		name   string
		filter persistence.StatsFilter
	}{
		{"workflow without task", persistence.StatsFilter{WorkflowID: "wf-1"}},
		{"task without workflow", persistence.StatsFilter{TaskID: "segmentation"}},
		{"end before start", persistence.StatsFilter{Start: statsStart, End: statsStart.Add(-time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stats.GetStatsCount(t.Context(), tt.filter)
			require.ErrorIs(t, err, ErrInvalidStatsFilter)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestParseStatsTime(t *testing.T) {
	tests := []struct {
		value string
		want  time.Time
		ok    bool
	}{
		{"2024-03-01T10:00:00Z", statsStart, true},
		{"2024-03-01T12:00:00+02:00", statsStart, true},
		{"2024-03-01 10:00:00", statsStart, true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseStatsTime(tt.value)
		assert.Equal(t, tt.ok, ok, tt.value)
		assert.True(t, tt.want.Equal(got), tt.value)
	}
}
