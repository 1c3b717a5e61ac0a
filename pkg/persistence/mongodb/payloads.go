package mongodb

import (
	"context"
	"errors"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PayloadRepository struct {
	collection *mongo.Collection
}

func (r *PayloadRepository) Upsert(ctx context.Context, payload *models.Payload) error {
	instanceIDs := payload.WorkflowInstanceIDs
	if instanceIDs == nil {
		instanceIDs = []string{}
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": payload.PayloadID},
		bson.M{"$setOnInsert": bson.M{
			"bucket":                payload.Bucket,
			"called_ae_title":       payload.CalledAeTitle,
			"calling_ae_title":      payload.CallingAeTitle,
			"correlation_id":        payload.CorrelationID,
			"timestamp":             payload.Timestamp.UTC(),
			"workflow_instance_ids": instanceIDs,
		}},
		options.Update().SetUpsert(true),
	)

	return err
}

func (r *PayloadRepository) AddWorkflowInstanceID(ctx context.Context, payloadID, instanceID string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": payloadID},
		bson.M{"$addToSet": bson.M{"workflow_instance_ids": instanceID}},
	)
	if err != nil {
		return err
	}

	if result.MatchedCount == 0 {
		return persistence.ErrPayloadNotFound
	}

	return nil
}

func (r *PayloadRepository) GetByID(ctx context.Context, payloadID string) (*models.Payload, error) {
	var payload models.Payload

	err := r.collection.FindOne(ctx, bson.M{"_id": payloadID}).Decode(&payload)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, persistence.ErrPayloadNotFound
	}

	if err != nil {
		return nil, err
	}

	return &payload, nil
}

func (r *PayloadRepository) List(ctx context.Context, paging persistence.Paging) ([]*models.Payload, error) {
	cur, err := r.collection.Find(ctx, bson.M{}, findOptions(bson.D{{Key: "timestamp", Value: -1}}, paging))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	payloads := []*models.Payload{}
	if err := cur.All(ctx, &payloads); err != nil {
		return nil, err
	}

	return payloads, nil
}

func (r *PayloadRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
