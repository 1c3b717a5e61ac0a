package timeouts

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/mocks"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var checkTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedPendingInstance(t *testing.T, p persistence.Persistence) {
	t.Helper()

	task := func(executionID, taskID string, status models.TaskExecutionStatus, started time.Time, timeout int) models.TaskExecution {
		return models.TaskExecution{
			ExecutionID:    executionID,
			TaskID:         taskID,
			Status:         status,
			TaskStartTime:  started,
			TimeoutMinutes: timeout,
		}
	}

	require.NoError(t, p.WorkflowInstanceRepository().Create(t.Context(), &models.WorkflowInstance{
		ID:            "instance-1",
		WorkflowID:    "wf-1",
		PayloadID:     "payload-1",
		CorrelationID: "corr-1",
		StartTime:     checkTime.Add(-3 * time.Hour),
		Status:        models.WorkflowInstanceStatusCreated,
		Tasks: []models.TaskExecution{
			task("exec-done", "router", models.TaskExecutionStatusSucceeded, checkTime.Add(-3*time.Hour), 0),
			task("exec-late", "segmentation", models.TaskExecutionStatusDispatched, checkTime.Add(-45*time.Minute), 30),
			task("exec-running", "report", models.TaskExecutionStatusAccepted, checkTime.Add(-45*time.Minute), 0),
			task("exec-stuck", "export", models.TaskExecutionStatusCreated, checkTime.Add(-2*time.Hour), 0),
		},
	}))
}

func newTestMonitor(t *testing.T, bus *mocks.MockEventBus) *Monitor {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	seedPendingInstance(t, p)

	monitor, err := NewMonitor(p, bus, slog.New(slog.DiscardHandler), DefaultSchedule, DefaultTaskTimeout)
	require.NoError(t, err)

	monitor.now = func() time.Time { return checkTime }

	return monitor
}

func TestMonitor_Check(t *testing.T) {
	bus := mocks.NewPublishingEventBus()
	monitor := newTestMonitor(t, bus)

	reported, err := monitor.Check(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, reported)

	published := bus.Published()
	require.Len(t, published, 2)

	update, ok := published[0].(*events.TaskUpdate)
	require.True(t, ok)
	assert.Equal(t, "exec-late", update.ExecutionID)
	assert.Equal(t, models.TaskExecutionStatusFailed, update.Status)
	assert.Equal(t, models.FailureReasonTimedOut, update.Reason)
	assert.Equal(t, "corr-1", update.CorrelationID)

	cancellation, ok := published[1].(*events.TaskCancellation)
	require.True(t, ok)
	assert.Equal(t, "exec-stuck", cancellation.ExecutionID)
	assert.Equal(t, models.FailureReasonTimedOut, cancellation.Reason)

	bus.AssertCalled(t, "Publish", mock.Anything, "exec-late", mock.Anything)
}

func TestMonitor_CheckPublishFailure(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "exec-late", mock.Anything).Return(errors.New("broker unavailable"))
	bus.On("Publish", mock.Anything, "exec-stuck", mock.Anything).Return(nil)

	monitor := newTestMonitor(t, bus)

	reported, err := monitor.Check(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec-late")
	assert.Equal(t, 1, reported)
}

func TestNewMonitor_InvalidSchedule(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)

	_, err := NewMonitor(p, mocks.NewPublishingEventBus(), logger, "invalid cron", DefaultTaskTimeout)
	require.Error(t, err)

	_, err = NewMonitor(p, mocks.NewPublishingEventBus(), logger, "", DefaultTaskTimeout)
	require.Error(t, err)
}

func TestMonitor_StartStop(t *testing.T) {
	published := make(chan struct{}, 16)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		published <- struct{}{}
	})

	p := file.NewPersistence(t.TempDir())
	seedPendingInstance(t, p)

	monitor, err := NewMonitor(p, bus, slog.New(slog.DiscardHandler), "@every 1s", DefaultTaskTimeout)
	require.NoError(t, err)

	monitor.now = func() time.Time { return checkTime }

	require.NoError(t, monitor.Start(t.Context()))

	for range 2 {
		select {
		case <-published:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout monitor did not report")
		}
	}

	require.NoError(t, monitor.Stop(t.Context()))
}
