package models

import "time"

// WorkflowInstance is one execution of a workflow revision for one payload.
// Tasks are embedded and only addressable through their parent instance.
type WorkflowInstance struct {
	ID                         string                 `json:"id"                                     bson:"_id"`
	WorkflowID                 string                 `json:"workflow_id"                            bson:"workflow_id"`
	WorkflowName               string                 `json:"workflow_name"                          bson:"workflow_name"`
	Revision                   int                    `json:"revision"                               bson:"revision"`
	AeTitle                    string                 `json:"ae_title"                               bson:"ae_title"`
	PayloadID                  string                 `json:"payload_id"                             bson:"payload_id"`
	BucketID                   string                 `json:"bucket_id"                              bson:"bucket_id"`
	CorrelationID              string                 `json:"correlation_id"                         bson:"correlation_id"`
	StartTime                  time.Time              `json:"start_time"                             bson:"start_time"`
	Status                     WorkflowInstanceStatus `json:"status"                                 bson:"status"`
	InputMetadata              map[string]string      `json:"input_metadata,omitempty"               bson:"input_metadata,omitempty"`
	Tasks                      []TaskExecution        `json:"tasks"                                  bson:"tasks"`
	AcknowledgedWorkflowErrors *time.Time             `json:"acknowledged_workflow_errors,omitempty" bson:"acknowledged_workflow_errors,omitempty"`
}

// TaskExecution is one attempt of one task inside an instance.
type TaskExecution struct {
	ExecutionID            string              `json:"execution_id"                       bson:"execution_id"`
	TaskID                 string              `json:"task_id"                            bson:"task_id"`
	TaskType               string              `json:"task_type"                          bson:"task_type"`
	WorkflowInstanceID     string              `json:"workflow_instance_id"               bson:"workflow_instance_id"`
	PreviousTaskID         string              `json:"previous_task_id,omitempty"         bson:"previous_task_id,omitempty"`
	Status                 TaskExecutionStatus `json:"status"                             bson:"status"`
	Reason                 FailureReason       `json:"reason"                             bson:"reason"`
	OutputDirectory        string              `json:"output_directory"                   bson:"output_directory"`
	InputArtifacts         map[string]string   `json:"input_artifacts,omitempty"          bson:"input_artifacts,omitempty"`
	OutputArtifacts        map[string]string   `json:"output_artifacts,omitempty"         bson:"output_artifacts,omitempty"`
	ResultMetadata         map[string]any      `json:"result_metadata,omitempty"          bson:"result_metadata,omitempty"`
	ExecutionStats         map[string]string   `json:"execution_stats,omitempty"          bson:"execution_stats,omitempty"`
	TaskPluginArguments    map[string]string   `json:"task_plugin_arguments,omitempty"    bson:"task_plugin_arguments,omitempty"`
	TimeoutMinutes         int                 `json:"timeout_minutes,omitempty"          bson:"timeout_minutes,omitempty"`
	TaskStartTime          time.Time           `json:"task_start_time"                    bson:"task_start_time"`
	TaskEndTime            *time.Time          `json:"task_end_time,omitempty"            bson:"task_end_time,omitempty"`
	AcknowledgedTaskErrors *time.Time          `json:"acknowledged_task_errors,omitempty" bson:"acknowledged_task_errors,omitempty"`
}

// TimedOut reports whether a non-terminal task has exceeded its timeout at now.
func (t *TaskExecution) TimedOut(now time.Time, fallback time.Duration) bool {
	if t.Status.IsTerminal() {
		return false
	}

	timeout := fallback
	if t.TimeoutMinutes > 0 {
		timeout = time.Duration(t.TimeoutMinutes) * time.Minute
	}

	if timeout <= 0 {
		return false
	}

	return now.Sub(t.TaskStartTime) > timeout
}

// TaskIndexByExecutionID returns the index of the execution in Tasks, or -1.
func (w *WorkflowInstance) TaskIndexByExecutionID(executionID string) int {
	for i := range w.Tasks {
		if w.Tasks[i].ExecutionID == executionID {
			return i
		}
	}

	return -1
}

// TaskIndex returns the index of the (TaskID, ExecutionID) pair in Tasks, or -1.
// An empty executionID matches the latest attempt of taskID.
func (w *WorkflowInstance) TaskIndex(taskID, executionID string) int {
	found := -1

	for i := range w.Tasks {
		if w.Tasks[i].TaskID != taskID {
			continue
		}

		if executionID == "" {
			found = i

			continue
		}

		if w.Tasks[i].ExecutionID == executionID {
			return i
		}
	}

	if executionID != "" {
		return -1
	}

	return found
}

// HasTask reports whether any attempt of taskID was already added.
func (w *WorkflowInstance) HasTask(taskID string) bool {
	for i := range w.Tasks {
		if w.Tasks[i].TaskID == taskID {
			return true
		}
	}

	return false
}

// NeedsAttention reports whether the instance belongs to the failed set
// awaiting operator acknowledgement.
func (w *WorkflowInstance) NeedsAttention() bool {
	if w.AcknowledgedWorkflowErrors != nil {
		return false
	}

	if w.Status == WorkflowInstanceStatusFailed {
		return true
	}

	for i := range w.Tasks {
		if w.Tasks[i].Status == TaskExecutionStatusPartialFail {
			return true
		}
	}

	return false
}

// AllFailuresAcknowledged reports whether every failed task carries an
// acknowledgement timestamp.
func (w *WorkflowInstance) AllFailuresAcknowledged() bool {
	for i := range w.Tasks {
		if w.Tasks[i].Status.IsFailure() && w.Tasks[i].AcknowledgedTaskErrors == nil {
			return false
		}
	}

	return true
}
