package persistence

import (
	"testing"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestNewPaging(t *testing.T) {
	tests := []struct {
		name       string
		pageNumber int
		pageSize   int
		wantSkip   int64
		wantLimit  int64
	}{
		{"first page", 1, 10, 0, 10},
		{"third page", 3, 20, 40, 20},
		{"page below one", 0, 10, 0, 10},
		{"size above max", 2, 1000, MaxPageSize, MaxPageSize},
		{"size below one", 1, 0, 0, DefaultPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPaging(tt.pageNumber, tt.pageSize)

			assert.Equal(t, tt.wantSkip, p.Skip())
			assert.Equal(t, tt.wantLimit, p.Limit())
		})
	}
}

func TestApply(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{3, 4}, Apply(items, NewPaging(2, 2)))
	assert.Equal(t, []int{5}, Apply(items, NewPaging(3, 2)))
	assert.Empty(t, Apply(items, NewPaging(4, 2)))
	assert.Equal(t, items, Apply(items, Paging{}))
}

func TestStatsFilter_Matches(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	stats := &models.ExecutionStats{WorkflowID: "W1", TaskID: "router", StartedUTC: t0, Status: "Succeeded"}

	offset := time.FixedZone("UTC+2", 2*60*60)

	assert.True(t, StatsFilter{Start: t0.Add(-time.Hour), End: t0.Add(time.Hour)}.Matches(stats))
	assert.True(t, StatsFilter{Start: t0.In(offset), End: t0.In(offset)}.Matches(stats))
	assert.False(t, StatsFilter{Start: t0.Add(time.Second), End: t0.Add(time.Hour)}.Matches(stats))
	assert.False(t, StatsFilter{Start: t0.Add(-time.Hour), End: t0.Add(time.Hour), WorkflowID: "W2", TaskID: "router"}.Matches(stats))
	assert.True(t, StatsFilter{WorkflowID: "W1", TaskID: "router", Status: "Succeeded"}.Matches(stats))
	assert.False(t, StatsFilter{Status: "Failed"}.Matches(stats))
}

func TestTaskStatusUpdate_ApplyTo(t *testing.T) {
	end := time.Now().UTC()
	task := models.TaskExecution{
		Status:          models.TaskExecutionStatusAccepted,
		OutputArtifacts: map[string]string{"report": "out/report.pdf"},
	}

	TaskStatusUpdate{
		Status:      models.TaskExecutionStatusSucceeded,
		Reason:      models.FailureReasonNone,
		TaskEndTime: &end,
	}.ApplyTo(&task)

	assert.Equal(t, models.TaskExecutionStatusSucceeded, task.Status)
	assert.Equal(t, end, *task.TaskEndTime)
	assert.Equal(t, map[string]string{"report": "out/report.pdf"}, task.OutputArtifacts)
}
