package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

// Keys of TaskUpdate.ExecutionStats read by the aggregator.
const (
	StatsFinishedAt      = "finishedAt"
	StatsPodStartPrefix  = "podStartTime"
	StatsPodFinishPrefix = "podFinishTime"
)

var statsTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ExecutionStats records one reporting row per task execution and answers the
// reporting queries. Writes are best effort: failures are logged and counted,
// never returned.
type ExecutionStats struct {
	persistence persistence.Persistence
	eventLog    log.EventLogger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewExecutionStats(p persistence.Persistence, logger *slog.Logger, m *metrics.Metrics) *ExecutionStats {
	if m == nil {
		m = metrics.NewUnregistered()
	}

	return &ExecutionStats{
		persistence: p,
		eventLog:    log.NewEventLogger(logger.With("module", "execution_stats")),
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RecordDispatch creates the row of a dispatched execution. A row already
// holding a reported status keeps it.
func (s *ExecutionStats) RecordDispatch(ctx context.Context, dispatch *events.TaskDispatch) {
	started := s.eventTime(dispatch.Timestamp)

	s.record(ctx, persistence.ExecutionStatsChange{
		ExecutionID:        dispatch.ExecutionID,
		CorrelationID:      dispatch.CorrelationID,
		WorkflowInstanceID: dispatch.WorkflowInstanceID,
		WorkflowID:         dispatch.WorkflowID,
		TaskID:             dispatch.TaskID,
		StartedUTC:         &started,
		Status:             string(models.TaskExecutionStatusDispatched),
		LastUpdatedUTC:     &started,
		DefaultStatus:      true,
	})
}

// RecordUpdate applies a task update to the row of its execution.
func (s *ExecutionStats) RecordUpdate(ctx context.Context, update *events.TaskUpdate) {
	updated := s.eventTime(update.Timestamp)

	change := persistence.ExecutionStatsChange{
		ExecutionID:        update.ExecutionID,
		CorrelationID:      update.CorrelationID,
		WorkflowInstanceID: update.WorkflowInstanceID,
		TaskID:             update.TaskID,
		Status:             string(update.Status),
		Reason:             string(update.Reason),
		LastUpdatedUTC:     &updated,
	}

	if finished, ok := parseStatsTime(update.ExecutionStats[StatsFinishedAt]); ok {
		change.CompletedAtUTC = &finished
	}

	if seconds, ok := executionTime(update.ExecutionStats); ok {
		change.ExecutionTimeSeconds = &seconds
	}

	s.record(ctx, change)
}

// RecordCancellation marks the row of an execution as canceled.
func (s *ExecutionStats) RecordCancellation(ctx context.Context, cancellation *events.TaskCancellation) {
	reason := cancellation.Reason
	if reason == "" || reason == models.FailureReasonNone {
		reason = models.FailureReasonCancelled
	}

	completed := s.eventTime(cancellation.Timestamp)

	s.record(ctx, persistence.ExecutionStatsChange{
		ExecutionID:        cancellation.ExecutionID,
		CorrelationID:      cancellation.CorrelationID,
		WorkflowInstanceID: cancellation.WorkflowInstanceID,
		TaskID:             cancellation.TaskID,
		Status:             string(models.TaskExecutionStatusCanceled),
		Reason:             string(reason),
		LastUpdatedUTC:     &completed,
		CompletedAtUTC:     &completed,
	})
}

func (s *ExecutionStats) record(ctx context.Context, change persistence.ExecutionStatsChange) {
	if change.ExecutionID == "" {
		return
	}

	err := s.persistence.ExecutionStatsRepository().Apply(ctx, change)
	if err != nil {
		s.writeFailed(ctx, change.ExecutionID, err)
	}
}

func (s *ExecutionStats) writeFailed(ctx context.Context, executionID string, err error) {
	s.eventLog.ExecutionStatsWriteFailed(ctx, executionID, err)
	s.metrics.StatsWriteFailed()
}

func (s *ExecutionStats) eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}

	return t.UTC()
}

// GetStats returns one page of the rows started within the filter window.
func (s *ExecutionStats) GetStats(ctx context.Context, filter persistence.StatsFilter, paging persistence.Paging) ([]*models.ExecutionStats, error) {
	filter, err := validateStatsFilter("GetStats", filter)
	if err != nil {
		return nil, err
	}

	return s.persistence.ExecutionStatsRepository().List(ctx, filter, paging)
}

func (s *ExecutionStats) GetStatsCount(ctx context.Context, filter persistence.StatsFilter) (int64, error) {
	filter, err := validateStatsFilter("GetStatsCount", filter)
	if err != nil {
		return 0, err
	}

	return s.persistence.ExecutionStatsRepository().Count(ctx, filter)
}

// GetStatsStatusCount counts the rows per status.
func (s *ExecutionStats) GetStatsStatusCount(ctx context.Context, filter persistence.StatsFilter) ([]models.StatusCount, error) {
	filter, err := validateStatsFilter("GetStatsStatusCount", filter)
	if err != nil {
		return nil, err
	}

	return s.persistence.ExecutionStatsRepository().CountByStatus(ctx, filter)
}

// GetAverageStats averages the durations of succeeded executions. No data
// yields zero values.
func (s *ExecutionStats) GetAverageStats(ctx context.Context, filter persistence.StatsFilter) (models.AverageStats, error) {
	filter, err := validateStatsFilter("GetAverageStats", filter)
	if err != nil {
		return models.AverageStats{}, err
	}

	return s.persistence.ExecutionStatsRepository().Average(ctx, filter)
}

func validateStatsFilter(op string, filter persistence.StatsFilter) (persistence.StatsFilter, error) {
	if (filter.WorkflowID == "") != (filter.TaskID == "") {
		return filter, NewValidationError(op, "INVALID_STATS_FILTER",
			"workflow_id and task_id must be provided together", ErrInvalidStatsFilter)
	}

	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return filter, NewValidationError(op, "INVALID_STATS_FILTER",
			"end time must not be before start time", ErrInvalidStatsFilter)
	}

	return filter.UTC(), nil
}

// executionTime returns the span between the earliest pod start and the
// latest pod finish reported in stats.
func executionTime(stats map[string]string) (float64, bool) {
	var start, finish time.Time

	for key, value := range stats {
		parsed, ok := parseStatsTime(value)
		if !ok {
			continue
		}

		switch {
		case strings.HasPrefix(key, StatsPodStartPrefix):
			if start.IsZero() || parsed.Before(start) {
				start = parsed
			}
		case strings.HasPrefix(key, StatsPodFinishPrefix):
			if finish.IsZero() || parsed.After(finish) {
				finish = parsed
			}
		}
	}

	if start.IsZero() || finish.IsZero() || finish.Before(start) {
		return 0, false
	}

	return finish.Sub(start).Seconds(), true
}

func parseStatsTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range statsTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}

	return time.Time{}, false
}
