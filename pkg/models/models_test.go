package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskExecutionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TaskExecutionStatus
		terminal bool
		failure  bool
	}{
		{TaskExecutionStatusCreated, false, false},
		{TaskExecutionStatusDispatched, false, false},
		{TaskExecutionStatusAccepted, false, false},
		{TaskExecutionStatusUnknown, false, false},
		{TaskExecutionStatusSucceeded, true, false},
		{TaskExecutionStatusFailed, true, true},
		{TaskExecutionStatusPartialFail, true, true},
		{TaskExecutionStatusCanceled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.failure, tt.status.IsFailure())
		})
	}

	assert.False(t, TaskExecutionStatus("Exploded").IsValid())
	assert.False(t, WorkflowInstanceStatus("Exploded").IsValid())
	assert.True(t, WorkflowInstanceStatusCanceled.IsValid())
}

func TestInformaticsGateway_AcceptsCaller(t *testing.T) {
	open := InformaticsGateway{AeTitle: "MONAI"}
	assert.True(t, open.AcceptsCaller("ANY"))
	assert.True(t, open.AcceptsCaller(""))

	restricted := InformaticsGateway{AeTitle: "MONAI", DataOrigins: []string{"PACS", "CT01"}}
	assert.True(t, restricted.AcceptsCaller("CT01"))
	assert.False(t, restricted.AcceptsCaller("SCANNER"))
}

func TestWorkflow_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := &Workflow{
		Name:               "segmentation",
		Version:            "1.0.0",
		InformaticsGateway: InformaticsGateway{AeTitle: "MONAI"},
		Tasks:              []TaskObject{{ID: "router", Type: "router"}},
	}
	require.NoError(t, validate.Struct(valid))

	noTasks := *valid
	noTasks.Tasks = nil

	err := validate.Struct(noTasks)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
	assert.Equal(t, "Tasks", validationErrors[0].Field())

	longTitle := *valid
	longTitle.InformaticsGateway.AeTitle = "THIS_AE_TITLE_IS_TOO_LONG"
	require.Error(t, validate.Struct(longTitle))
}

func TestTaskObject_MandatoryOutputs(t *testing.T) {
	task := TaskObject{
		ID:   "segmentation",
		Type: "argo",
		Artifacts: ArtifactMap{
			Output: []Artifact{
				{Name: "mask", Mandatory: true},
				{Name: "preview"},
				{Name: "report", Mandatory: true},
			},
		},
	}

	assert.Equal(t, []string{"mask", "report"}, task.MandatoryOutputs())
	assert.Empty(t, TaskObject{}.MandatoryOutputs())

	wf := &Workflow{Tasks: []TaskObject{task}}
	found, ok := wf.FindTask("segmentation")
	require.True(t, ok)
	assert.Equal(t, "argo", found.Type)

	_, ok = wf.FindTask("missing")
	assert.False(t, ok)
}

func TestTaskExecution_TimedOut(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		task     TaskExecution
		now      time.Time
		fallback time.Duration
		want     bool
	}{
		{
			name:     "within fallback",
			task:     TaskExecution{Status: TaskExecutionStatusAccepted, TaskStartTime: start},
			now:      start.Add(30 * time.Minute),
			fallback: time.Hour,
		},
		{
			name:     "past fallback",
			task:     TaskExecution{Status: TaskExecutionStatusAccepted, TaskStartTime: start},
			now:      start.Add(61 * time.Minute),
			fallback: time.Hour,
			want:     true,
		},
		{
			name:     "task timeout wins over fallback",
			task:     TaskExecution{Status: TaskExecutionStatusDispatched, TaskStartTime: start, TimeoutMinutes: 5},
			now:      start.Add(6 * time.Minute),
			fallback: time.Hour,
			want:     true,
		},
		{
			name:     "terminal task never times out",
			task:     TaskExecution{Status: TaskExecutionStatusFailed, TaskStartTime: start},
			now:      start.Add(48 * time.Hour),
			fallback: time.Hour,
		},
		{
			name: "no timeout configured",
			task: TaskExecution{Status: TaskExecutionStatusAccepted, TaskStartTime: start},
			now:  start.Add(48 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.TimedOut(tt.now, tt.fallback))
		})
	}
}

func TestWorkflowInstance_TaskLookup(t *testing.T) {
	instance := &WorkflowInstance{
		Tasks: []TaskExecution{
			{ExecutionID: "exec-1", TaskID: "router"},
			{ExecutionID: "exec-2", TaskID: "segmentation"},
			{ExecutionID: "exec-3", TaskID: "segmentation"},
		},
	}

	assert.Equal(t, 1, instance.TaskIndexByExecutionID("exec-2"))
	assert.Equal(t, -1, instance.TaskIndexByExecutionID("exec-9"))

	assert.Equal(t, 2, instance.TaskIndex("segmentation", ""), "empty execution id picks the latest attempt")
	assert.Equal(t, 1, instance.TaskIndex("segmentation", "exec-2"))
	assert.Equal(t, -1, instance.TaskIndex("router", "exec-2"))
	assert.Equal(t, -1, instance.TaskIndex("report", ""))

	assert.True(t, instance.HasTask("router"))
	assert.False(t, instance.HasTask("report"))
}

func TestWorkflowInstance_NeedsAttention(t *testing.T) {
	acknowledged := time.Now().UTC()

	failed := &WorkflowInstance{Status: WorkflowInstanceStatusFailed}
	assert.True(t, failed.NeedsAttention())

	partial := &WorkflowInstance{
		Status: WorkflowInstanceStatusCreated,
		Tasks:  []TaskExecution{{Status: TaskExecutionStatusPartialFail}},
	}
	assert.True(t, partial.NeedsAttention())
	assert.False(t, partial.AllFailuresAcknowledged())

	partial.Tasks[0].AcknowledgedTaskErrors = &acknowledged
	assert.True(t, partial.AllFailuresAcknowledged())

	partial.AcknowledgedWorkflowErrors = &acknowledged
	assert.False(t, partial.NeedsAttention())

	healthy := &WorkflowInstance{
		Status: WorkflowInstanceStatusSucceeded,
		Tasks:  []TaskExecution{{Status: TaskExecutionStatusSucceeded}},
	}
	assert.False(t, healthy.NeedsAttention())
	assert.True(t, healthy.AllFailuresAcknowledged())
}
