package persistence

import (
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Paging selects one page of a sorted result. The zero value selects everything.
type Paging struct {
	PageNumber int
	PageSize   int
}

// NewPaging clamps the page number to at least 1 and the size to [1, MaxPageSize].
func NewPaging(pageNumber, pageSize int) Paging {
	if pageNumber < 1 {
		pageNumber = 1
	}

	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return Paging{PageNumber: pageNumber, PageSize: pageSize}
}

func (p Paging) Skip() int64 {
	if p.PageNumber < 1 || p.PageSize < 1 {
		return 0
	}

	return int64((p.PageNumber - 1) * p.PageSize)
}

// Limit returns 0 when the page is unbounded.
func (p Paging) Limit() int64 {
	if p.PageSize < 1 {
		return 0
	}

	return int64(p.PageSize)
}

// Apply slices an already sorted in-memory result.
func Apply[T any](items []T, p Paging) []T {
	skip := int(p.Skip())
	if skip >= len(items) {
		return []T{}
	}

	items = items[skip:]

	if limit := int(p.Limit()); limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

// InstanceListOptions filters instance listings, newest first.
type InstanceListOptions struct {
	Paging

	Status    models.WorkflowInstanceStatus
	PayloadID string
}

// Matches reports whether instance passes the filter.
func (o InstanceListOptions) Matches(instance *models.WorkflowInstance) bool {
	if o.Status != "" && instance.Status != o.Status {
		return false
	}

	if o.PayloadID != "" && instance.PayloadID != o.PayloadID {
		return false
	}

	return true
}

// StatsFilter selects execution stats started within [Start, End].
// WorkflowID and TaskID are validated as a pair by the caller.
type StatsFilter struct {
	Start      time.Time
	End        time.Time
	WorkflowID string
	TaskID     string
	Status     string
}

// UTC returns the filter with both bounds converted to UTC.
func (f StatsFilter) UTC() StatsFilter {
	f.Start = f.Start.UTC()
	f.End = f.End.UTC()

	return f
}

func (f StatsFilter) Matches(stats *models.ExecutionStats) bool {
	started := stats.StartedUTC.UTC()

	if !f.Start.IsZero() && started.Before(f.Start.UTC()) {
		return false
	}

	if !f.End.IsZero() && started.After(f.End.UTC()) {
		return false
	}

	if f.WorkflowID != "" && stats.WorkflowID != f.WorkflowID {
		return false
	}

	if f.TaskID != "" && stats.TaskID != f.TaskID {
		return false
	}

	if f.Status != "" && stats.Status != f.Status {
		return false
	}

	return true
}

// TaskStatusUpdate is the set of task fields written by one transition.
// Nil maps leave the stored value untouched.
type TaskStatusUpdate struct {
	ExecutionID     string
	ExpectedStatus  models.TaskExecutionStatus
	Status          models.TaskExecutionStatus
	Reason          models.FailureReason
	TaskEndTime     *time.Time
	OutputArtifacts map[string]string
	ResultMetadata  map[string]any
	ExecutionStats  map[string]string
}

// ApplyTo writes the update onto task.
func (u TaskStatusUpdate) ApplyTo(task *models.TaskExecution) {
	task.Status = u.Status
	task.Reason = u.Reason

	if u.TaskEndTime != nil {
		end := *u.TaskEndTime
		task.TaskEndTime = &end
	}

	if u.OutputArtifacts != nil {
		task.OutputArtifacts = u.OutputArtifacts
	}

	if u.ResultMetadata != nil {
		task.ResultMetadata = u.ResultMetadata
	}

	if u.ExecutionStats != nil {
		task.ExecutionStats = u.ExecutionStats
	}
}

// ExecutionStatsChange is a field level write to the stats record of one
// execution. Writes for one execution may arrive in any order: identity
// fields are only filled while empty and zero fields leave the stored value
// untouched. The store derives DurationSeconds from the stored start and
// completion times.
type ExecutionStatsChange struct {
	ExecutionID        string
	CorrelationID      string
	WorkflowInstanceID string
	WorkflowID         string
	TaskID             string
	StartedUTC         *time.Time

	// Status, Reason and LastUpdatedUTC are written together when Status is
	// set. With DefaultStatus they only fill a record without a status.
	Status         string
	Reason         string
	LastUpdatedUTC *time.Time
	DefaultStatus  bool

	CompletedAtUTC       *time.Time
	ExecutionTimeSeconds *float64
}

// ApplyTo writes the change onto stats.
func (c ExecutionStatsChange) ApplyTo(stats *models.ExecutionStats) {
	stats.ExecutionID = c.ExecutionID
	stats.Version = models.ExecutionStatsVersion

	fillEmpty(&stats.CorrelationID, c.CorrelationID)
	fillEmpty(&stats.WorkflowInstanceID, c.WorkflowInstanceID)
	fillEmpty(&stats.WorkflowID, c.WorkflowID)
	fillEmpty(&stats.TaskID, c.TaskID)

	if c.StartedUTC != nil {
		stats.StartedUTC = c.StartedUTC.UTC()
	}

	if c.Status != "" && (!c.DefaultStatus || stats.Status == "") {
		stats.Status = c.Status
		stats.Reason = c.Reason

		if c.LastUpdatedUTC != nil {
			stats.LastUpdatedUTC = c.LastUpdatedUTC.UTC()
		}
	}

	if c.CompletedAtUTC != nil {
		completed := c.CompletedAtUTC.UTC()
		stats.CompletedAtUTC = &completed
	}

	if c.ExecutionTimeSeconds != nil {
		stats.ExecutionTimeSeconds = *c.ExecutionTimeSeconds
	}

	stats.DurationSeconds = 0
	if !stats.StartedUTC.IsZero() && stats.CompletedAtUTC != nil {
		stats.DurationSeconds = max(0, stats.CompletedAtUTC.Sub(stats.StartedUTC).Seconds())
	}
}

func fillEmpty(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
