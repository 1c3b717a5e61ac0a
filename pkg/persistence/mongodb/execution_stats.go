package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExecutionStatsRepository stores one document per execution id.
type ExecutionStatsRepository struct {
	collection *mongo.Collection
}

func (r *ExecutionStatsRepository) Upsert(ctx context.Context, stats *models.ExecutionStats) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": stats.ExecutionID},
		stats,
		options.Replace().SetUpsert(true),
	)

	return err
}

// Apply runs change as an update pipeline so concurrent writes for one
// execution only touch the fields they own. The second stage derives the
// duration from whatever start and completion times are stored.
func (r *ExecutionStatsRepository) Apply(ctx context.Context, change persistence.ExecutionStatsChange) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": change.ExecutionID},
		mongo.Pipeline{
			{{Key: "$set", Value: statsChangeFields(change)}},
			{{Key: "$set", Value: bson.M{"duration_seconds": durationSeconds}}},
		},
		options.Update().SetUpsert(true),
	)

	return err
}

var durationSeconds = bson.M{"$cond": bson.A{
	bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$type": "$completed_at_utc"}, "date"}},
		bson.M{"$eq": bson.A{bson.M{"$type": "$started_utc"}, "date"}},
		bson.M{"$gt": bson.A{"$started_utc", time.Time{}}},
	}},
	bson.M{"$max": bson.A{0, bson.M{"$divide": bson.A{bson.M{"$subtract": bson.A{"$completed_at_utc", "$started_utc"}}, 1000}}}},
	0,
}}

func statsChangeFields(change persistence.ExecutionStatsChange) bson.M {
	set := bson.M{
		"version":                models.ExecutionStatsVersion,
		"status":                 bson.M{"$ifNull": bson.A{"$status", ""}},
		"execution_time_seconds": bson.M{"$ifNull": bson.A{"$execution_time_seconds", 0.0}},
	}

	for field, value := range map[string]string{
		"correlation_id":       change.CorrelationID,
		"workflow_instance_id": change.WorkflowInstanceID,
		"workflow_id":          change.WorkflowID,
		"task_id":              change.TaskID,
	} {
		if value != "" {
			set[field] = whenEmpty(field, literal(value), "$"+field)
		}
	}

	if change.StartedUTC != nil {
		set["started_utc"] = change.StartedUTC.UTC()
	}

	if change.Status != "" {
		status := bson.M{"status": literal(change.Status), "reason": literal(change.Reason)}
		if change.LastUpdatedUTC != nil {
			status["last_updated_utc"] = change.LastUpdatedUTC.UTC()
		}

		for field, value := range status {
			if change.DefaultStatus {
				value = whenEmpty("status", value, "$"+field)
			}

			set[field] = value
		}
	}

	if change.CompletedAtUTC != nil {
		set["completed_at_utc"] = change.CompletedAtUTC.UTC()
	}

	if change.ExecutionTimeSeconds != nil {
		set["execution_time_seconds"] = *change.ExecutionTimeSeconds
	}

	return set
}

// whenEmpty yields then while the stored string field is missing or empty.
func whenEmpty(field string, then, otherwise any) bson.M {
	return bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$" + field, ""}}, ""}},
		then,
		otherwise,
	}}
}

func literal(value string) bson.M {
	return bson.M{"$literal": value}
}

func (r *ExecutionStatsRepository) Get(ctx context.Context, executionID string) (*models.ExecutionStats, error) {
	var stats models.ExecutionStats

	err := r.collection.FindOne(ctx, bson.M{"_id": executionID}).Decode(&stats)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, persistence.ErrExecutionStatsNotFound
	}

	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func (r *ExecutionStatsRepository) List(ctx context.Context, filter persistence.StatsFilter, paging persistence.Paging) ([]*models.ExecutionStats, error) {
	cur, err := r.collection.Find(ctx, statsFilter(filter), findOptions(bson.D{{Key: "started_utc", Value: -1}}, paging))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	stats := []*models.ExecutionStats{}
	if err := cur.All(ctx, &stats); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *ExecutionStatsRepository) Count(ctx context.Context, filter persistence.StatsFilter) (int64, error) {
	return r.collection.CountDocuments(ctx, statsFilter(filter))
}

func (r *ExecutionStatsRepository) CountByStatus(ctx context.Context, filter persistence.StatsFilter) ([]models.StatusCount, error) {
	cur, err := r.collection.Aggregate(ctx, bson.A{
		bson.M{"$match": statsFilter(filter)},
		bson.M{"$group": bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}},
		bson.M{"$sort": bson.M{"_id": 1}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := []models.StatusCount{}
	if err := cur.All(ctx, &counts); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *ExecutionStatsRepository) Average(ctx context.Context, filter persistence.StatsFilter) (models.AverageStats, error) {
	filter.Status = string(models.TaskExecutionStatusSucceeded)

	match := statsFilter(filter)
	match["version"] = models.ExecutionStatsVersion

	cur, err := r.collection.Aggregate(ctx, bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id":                "$version",
			"avg_duration":       bson.M{"$avg": "$duration_seconds"},
			"avg_execution_time": bson.M{"$avg": "$execution_time_seconds"},
		}},
	})
	if err != nil {
		return models.AverageStats{}, err
	}
	defer cur.Close(ctx)

	results := []models.AverageStats{}
	if err := cur.All(ctx, &results); err != nil {
		return models.AverageStats{}, err
	}

	// no rows
	if len(results) == 0 {
		return models.AverageStats{}, nil
	}

	return results[0], nil
}

func statsFilter(filter persistence.StatsFilter) bson.M {
	query := bson.M{}

	started := bson.M{}
	if !filter.Start.IsZero() {
		started["$gte"] = filter.Start.UTC()
	}

	if !filter.End.IsZero() {
		started["$lte"] = filter.End.UTC()
	}

	if len(started) > 0 {
		query["started_utc"] = started
	}

	if filter.WorkflowID != "" {
		query["workflow_id"] = filter.WorkflowID
	}

	if filter.TaskID != "" {
		query["task_id"] = filter.TaskID
	}

	if filter.Status != "" {
		query["status"] = filter.Status
	}

	return query
}
