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

// WorkflowRepository stores workflow revisions. A nil "deleted" marks the active one.
type WorkflowRepository struct {
	collection *mongo.Collection
}

func (r *WorkflowRepository) Create(ctx context.Context, revision *models.WorkflowRevision) error {
	_, err := r.collection.InsertOne(ctx, revision)
	if mongo.IsDuplicateKeyError(err) {
		return persistence.NewWorkflowError("Create", revision.WorkflowID, persistence.ErrWorkflowRevisionAlreadyExists)
	}

	return err
}

func (r *WorkflowRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRevision, error) {
	var revision models.WorkflowRevision

	err := r.collection.FindOne(ctx,
		bson.M{"workflow_id": workflowID, "deleted": nil},
		options.FindOne().SetSort(bson.D{{Key: "revision", Value: -1}}),
	).Decode(&revision)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, persistence.NewWorkflowError("GetByWorkflowID", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByWorkflowID", workflowID, err)
	}

	return &revision, nil
}

func (r *WorkflowRepository) GetByRevision(ctx context.Context, workflowID string, revision int) (*models.WorkflowRevision, error) {
	var found models.WorkflowRevision

	err := r.collection.FindOne(ctx, bson.M{"workflow_id": workflowID, "revision": revision}).Decode(&found)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, persistence.NewWorkflowError("GetByRevision", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByRevision", workflowID, err)
	}

	return &found, nil
}

func (r *WorkflowRepository) GetByWorkflowIDs(ctx context.Context, workflowIDs []string) ([]*models.WorkflowRevision, error) {
	return r.find(ctx, bson.M{"workflow_id": bson.M{"$in": workflowIDs}, "deleted": nil}, persistence.Paging{})
}

func (r *WorkflowRepository) GetByAeTitle(ctx context.Context, aeTitle string) ([]*models.WorkflowRevision, error) {
	return r.find(ctx, bson.M{"workflow.informatics_gateway.ae_title": aeTitle, "deleted": nil}, persistence.Paging{})
}

func (r *WorkflowRepository) List(ctx context.Context, paging persistence.Paging) ([]*models.WorkflowRevision, error) {
	return r.find(ctx, bson.M{"deleted": nil}, paging)
}

func (r *WorkflowRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"deleted": nil})
}

func (r *WorkflowRepository) SoftDeleteAll(ctx context.Context, workflowID, keepID string, at time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"workflow_id": workflowID, "deleted": nil, "_id": bson.M{"$ne": keepID}},
		bson.M{"$set": bson.M{"deleted": at.UTC()}},
	)
	if err != nil {
		return 0, persistence.NewWorkflowError("SoftDeleteAll", workflowID, err)
	}

	return result.ModifiedCount, nil
}

func (r *WorkflowRepository) find(ctx context.Context, filter bson.M, paging persistence.Paging) ([]*models.WorkflowRevision, error) {
	cur, err := r.collection.Find(ctx, filter, findOptions(bson.D{{Key: "created_at", Value: -1}}, paging))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	revisions := []*models.WorkflowRevision{}
	if err := cur.All(ctx, &revisions); err != nil {
		return nil, err
	}

	return revisions, nil
}
