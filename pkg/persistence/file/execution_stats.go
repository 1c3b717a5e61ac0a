package file

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

// ExecutionStatsRepository stores one file per execution id.
type ExecutionStatsRepository struct {
	mu   *sync.RWMutex
	docs collection[models.ExecutionStats]
}

func (sr *ExecutionStatsRepository) Upsert(_ context.Context, stats *models.ExecutionStats) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	return sr.docs.write(stats.ExecutionID, stats)
}

func (sr *ExecutionStatsRepository) Apply(_ context.Context, change persistence.ExecutionStatsChange) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stats, err := sr.docs.read(change.ExecutionID)
	if errors.Is(err, fs.ErrNotExist) {
		stats = &models.ExecutionStats{}
	} else if err != nil {
		return err
	}

	change.ApplyTo(stats)

	return sr.docs.write(change.ExecutionID, stats)
}

func (sr *ExecutionStatsRepository) Get(_ context.Context, executionID string) (*models.ExecutionStats, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	stats, err := sr.docs.read(executionID)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errInvalidID) {
		return nil, persistence.ErrExecutionStatsNotFound
	}

	return stats, err
}

func (sr *ExecutionStatsRepository) List(_ context.Context, filter persistence.StatsFilter, paging persistence.Paging) ([]*models.ExecutionStats, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	stats, err := sr.find(filter)
	if err != nil {
		return nil, err
	}

	return persistence.Apply(stats, paging), nil
}

func (sr *ExecutionStatsRepository) Count(_ context.Context, filter persistence.StatsFilter) (int64, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	stats, err := sr.find(filter)
	if err != nil {
		return 0, err
	}

	return int64(len(stats)), nil
}

func (sr *ExecutionStatsRepository) CountByStatus(_ context.Context, filter persistence.StatsFilter) ([]models.StatusCount, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	stats, err := sr.find(filter)
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	for _, s := range stats {
		counts[s.Status]++
	}

	result := make([]models.StatusCount, 0, len(counts))
	for status, count := range counts {
		result = append(result, models.StatusCount{Status: status, Count: count})
	}

	slices.SortFunc(result, func(a, b models.StatusCount) int {
		return strings.Compare(a.Status, b.Status)
	})

	return result, nil
}

func (sr *ExecutionStatsRepository) Average(_ context.Context, filter persistence.StatsFilter) (models.AverageStats, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	filter.Status = string(models.TaskExecutionStatusSucceeded)

	stats, err := sr.find(filter)
	if err != nil {
		return models.AverageStats{}, err
	}

	var (
		average models.AverageStats
		count   int
	)

	for _, s := range stats {
		if s.Version != models.ExecutionStatsVersion {
			continue
		}

		average.AverageDurationSeconds += s.DurationSeconds
		average.AverageExecutionTimeSeconds += s.ExecutionTimeSeconds
		count++
	}

	if count == 0 {
		return models.AverageStats{}, nil
	}

	average.AverageDurationSeconds /= float64(count)
	average.AverageExecutionTimeSeconds /= float64(count)

	return average, nil
}

// find returns matching stats, most recently started first.
func (sr *ExecutionStatsRepository) find(filter persistence.StatsFilter) ([]*models.ExecutionStats, error) {
	stats, err := sr.docs.filter(filter.Matches)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(stats, func(a, b *models.ExecutionStats) int {
		return b.StartedUTC.Compare(a.StartedUTC)
	})

	return stats, nil
}
