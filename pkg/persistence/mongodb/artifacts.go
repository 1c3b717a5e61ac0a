package mongodb

import (
	"context"

	"github.com/dukex/workflow-manager/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ArtifactReceivedRepository struct {
	collection *mongo.Collection
}

func (r *ArtifactReceivedRepository) Add(ctx context.Context, item *models.ArtifactReceivedItem) error {
	_, err := r.collection.InsertOne(ctx, item)

	return err
}

func (r *ArtifactReceivedRepository) ListByInstanceTask(ctx context.Context, instanceID, taskID string) ([]*models.ArtifactReceivedItem, error) {
	cur, err := r.collection.Find(ctx,
		bson.M{"workflow_instance_id": instanceID, "task_id": taskID},
		options.Find().SetSort(bson.D{{Key: "received", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := []*models.ArtifactReceivedItem{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}

	return items, nil
}
