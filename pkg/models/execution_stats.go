package models

import "time"

// ExecutionStatsVersion is the schema discriminator used when averaging stats.
const ExecutionStatsVersion = 1

// ExecutionStats is the reporting record of one task execution. It is keyed by
// ExecutionID, upserted on every event for that execution and never deleted.
type ExecutionStats struct {
	ExecutionID          string     `json:"execution_id"               bson:"_id"`
	Version              int        `json:"version"                    bson:"version"`
	CorrelationID        string     `json:"correlation_id"             bson:"correlation_id"`
	WorkflowInstanceID   string     `json:"workflow_instance_id"       bson:"workflow_instance_id"`
	WorkflowID           string     `json:"workflow_id"                bson:"workflow_id"`
	TaskID               string     `json:"task_id"                    bson:"task_id"`
	StartedUTC           time.Time  `json:"started_utc"                bson:"started_utc"`
	LastUpdatedUTC       time.Time  `json:"last_updated_utc"           bson:"last_updated_utc"`
	CompletedAtUTC       *time.Time `json:"completed_at_utc,omitempty" bson:"completed_at_utc,omitempty"`
	DurationSeconds      float64    `json:"duration_seconds"           bson:"duration_seconds"`
	ExecutionTimeSeconds float64    `json:"execution_time_seconds"     bson:"execution_time_seconds"`
	Status               string     `json:"status"                     bson:"status"`
	Reason               string     `json:"reason,omitempty"           bson:"reason,omitempty"`
}

// StatusCount is one bucket of a per-status count.
type StatusCount struct {
	Status string `json:"status" bson:"_id"`
	Count  int64  `json:"count"  bson:"count"`
}

// AverageStats holds averaged durations in seconds.
type AverageStats struct {
	AverageDurationSeconds      float64 `json:"average_duration_seconds"       bson:"avg_duration"`
	AverageExecutionTimeSeconds float64 `json:"average_execution_time_seconds" bson:"avg_execution_time"`
}
