package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type namedIndex struct {
	collection string
	name       string
	keys       bson.D
	unique     bool
}

var indexes = []namedIndex{
	{WorkflowsCollection, "WorkflowIdDeletedIndex", bson.D{{Key: "workflow_id", Value: 1}, {Key: "deleted", Value: 1}}, false},
	{WorkflowsCollection, "AeTitleIndex", bson.D{{Key: "workflow.informatics_gateway.ae_title", Value: 1}}, false},
	{WorkflowInstancesCollection, "TasksStatusIndex", bson.D{{Key: "tasks.status", Value: 1}}, false},
	{WorkflowInstancesCollection, "PayloadIdIndex", bson.D{{Key: "payload_id", Value: 1}}, false},
	// one instance per workflow and payload
	{WorkflowInstancesCollection, "WorkflowIdPayloadIdIndex", bson.D{{Key: "workflow_id", Value: 1}, {Key: "payload_id", Value: 1}}, true},
	{WorkflowInstancesCollection, "StartTimeIndex", bson.D{{Key: "start_time", Value: -1}}, false},
	{ExecutionStatsCollection, "StartedUTCIndex", bson.D{{Key: "started_utc", Value: 1}}, false},
	{ExecutionStatsCollection, "WorkflowIdTaskIdIndex", bson.D{{Key: "workflow_id", Value: 1}, {Key: "task_id", Value: 1}}, false},
	{PayloadsCollection, "TimestampIndex", bson.D{{Key: "timestamp", Value: -1}}, false},
	{ArtifactReceivedItemsCollection, "WorkflowInstanceIdTaskIdIndex", bson.D{{Key: "workflow_instance_id", Value: 1}, {Key: "task_id", Value: 1}}, false},
}

// EnsureIndexes creates each named index that does not exist yet.
func (p *Persistence) EnsureIndexes(ctx context.Context) error {
	existing := map[string]map[string]bool{}

	for _, index := range indexes {
		names, ok := existing[index.collection]
		if !ok {
			var err error

			names, err = indexNames(ctx, p.db.Collection(index.collection))
			if err != nil {
				return fmt.Errorf("failed to list indexes of %s: %w", index.collection, err)
			}

			existing[index.collection] = names
		}

		if names[index.name] {
			continue
		}

		_, err := p.db.Collection(index.collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    index.keys,
			Options: options.Index().SetName(index.name).SetUnique(index.unique),
		})
		if err != nil {
			return fmt.Errorf("failed to create index %s on %s: %w", index.name, index.collection, err)
		}

		p.logger.Info("created index", "collection", index.collection, "index", index.name)
	}

	return nil
}

func indexNames(ctx context.Context, collection *mongo.Collection) (map[string]bool, error) {
	cur, err := collection.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var specs []bson.M
	if err := cur.All(ctx, &specs); err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if name, ok := spec["name"].(string); ok {
			names[name] = true
		}
	}

	return names, nil
}
