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

var newestFirst = bson.D{{Key: "start_time", Value: -1}}

// WorkflowInstanceRepository stores instances with their tasks embedded.
// Task writes use the positional operator on the first matching element.
type WorkflowInstanceRepository struct {
	collection *mongo.Collection
}

func (r *WorkflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	_, err := r.collection.InsertOne(ctx, instance)
	if mongo.IsDuplicateKeyError(err) {
		return persistence.NewInstanceError("Create", instance.ID, persistence.ErrWorkflowInstanceAlreadyExists)
	}

	return err
}

func (r *WorkflowInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return r.findOne(ctx, "GetByID", id, bson.M{"_id": id})
}

func (r *WorkflowInstanceRepository) GetByPayloadID(ctx context.Context, payloadID string) ([]*models.WorkflowInstance, error) {
	return r.find(ctx, bson.M{"payload_id": payloadID}, persistence.Paging{})
}

func (r *WorkflowInstanceRepository) GetByWorkflowAndPayload(ctx context.Context, workflowID, payloadID string) (*models.WorkflowInstance, error) {
	return r.findOne(ctx, "GetByWorkflowAndPayload", "", bson.M{"workflow_id": workflowID, "payload_id": payloadID})
}

func (r *WorkflowInstanceRepository) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.WorkflowInstance, error) {
	return r.find(ctx, listFilter(opts), opts.Paging)
}

func (r *WorkflowInstanceRepository) Count(ctx context.Context, opts persistence.InstanceListOptions) (int64, error) {
	return r.collection.CountDocuments(ctx, listFilter(opts))
}

func (r *WorkflowInstanceRepository) AddTask(ctx context.Context, instanceID string, task models.TaskExecution) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": instanceID, "tasks.task_id": bson.M{"$ne": task.TaskID}},
		bson.M{"$push": bson.M{"tasks": task}},
	)
	if err != nil {
		return persistence.NewTaskError("AddTask", instanceID, task.ExecutionID, err)
	}

	if result.MatchedCount == 1 {
		return nil
	}

	_, err = r.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	return persistence.NewTaskError("AddTask", instanceID, task.ExecutionID, persistence.ErrTaskAlreadyExists)
}

func (r *WorkflowInstanceRepository) UpdateTaskStatus(ctx context.Context, instanceID string, update persistence.TaskStatusUpdate) error {
	set := bson.M{
		"tasks.$.status": update.Status,
		"tasks.$.reason": update.Reason,
	}

	if update.TaskEndTime != nil {
		set["tasks.$.task_end_time"] = update.TaskEndTime.UTC()
	}

	if update.OutputArtifacts != nil {
		set["tasks.$.output_artifacts"] = update.OutputArtifacts
	}

	if update.ResultMetadata != nil {
		set["tasks.$.result_metadata"] = update.ResultMetadata
	}

	if update.ExecutionStats != nil {
		set["tasks.$.execution_stats"] = update.ExecutionStats
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id": instanceID,
			"tasks": bson.M{"$elemMatch": bson.M{
				"execution_id": update.ExecutionID,
				"status":       update.ExpectedStatus,
			}},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return persistence.NewTaskError("UpdateTaskStatus", instanceID, update.ExecutionID, err)
	}

	if result.MatchedCount == 1 {
		return nil
	}

	err = r.taskExists(ctx, "UpdateTaskStatus", instanceID, update.ExecutionID)
	if err != nil {
		return err
	}

	return persistence.NewTaskError("UpdateTaskStatus", instanceID, update.ExecutionID, persistence.ErrConcurrentUpdate)
}

func (r *WorkflowInstanceRepository) UpdateTaskOutputs(ctx context.Context, instanceID, executionID string, outputs map[string]string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": instanceID, "tasks.execution_id": executionID},
		bson.M{"$set": bson.M{"tasks.$.output_artifacts": outputs}},
	)
	if err != nil {
		return persistence.NewTaskError("UpdateTaskOutputs", instanceID, executionID, err)
	}

	if result.MatchedCount == 1 {
		return nil
	}

	return r.taskExists(ctx, "UpdateTaskOutputs", instanceID, executionID)
}

func (r *WorkflowInstanceRepository) UpdateStatus(ctx context.Context, instanceID string, status models.WorkflowInstanceStatus) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": instanceID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return persistence.NewInstanceError("UpdateStatus", instanceID, err)
	}

	if result.MatchedCount == 0 {
		return persistence.NewInstanceError("UpdateStatus", instanceID, persistence.ErrWorkflowInstanceNotFound)
	}

	return nil
}

func (r *WorkflowInstanceRepository) AcknowledgeTaskError(ctx context.Context, instanceID, executionID string, at time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id": instanceID,
			"tasks": bson.M{"$elemMatch": bson.M{
				"execution_id": executionID,
				"status": bson.M{"$in": bson.A{
					models.TaskExecutionStatusFailed,
					models.TaskExecutionStatusPartialFail,
				}},
			}},
		},
		bson.M{"$set": bson.M{"tasks.$.acknowledged_task_errors": at.UTC()}},
	)
	if err != nil {
		return false, persistence.NewTaskError("AcknowledgeTaskError", instanceID, executionID, err)
	}

	if result.MatchedCount == 1 {
		return true, nil
	}

	return false, r.taskExists(ctx, "AcknowledgeTaskError", instanceID, executionID)
}

func (r *WorkflowInstanceRepository) AcknowledgeWorkflowErrors(ctx context.Context, instanceID string, at time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": instanceID},
		bson.M{"$set": bson.M{"acknowledged_workflow_errors": at.UTC()}},
	)
	if err != nil {
		return persistence.NewInstanceError("AcknowledgeWorkflowErrors", instanceID, err)
	}

	if result.MatchedCount == 0 {
		return persistence.NewInstanceError("AcknowledgeWorkflowErrors", instanceID, persistence.ErrWorkflowInstanceNotFound)
	}

	return nil
}

func (r *WorkflowInstanceRepository) ListFailed(ctx context.Context, paging persistence.Paging) ([]*models.WorkflowInstance, error) {
	return r.find(ctx, failedFilter(), paging)
}

func (r *WorkflowInstanceRepository) CountFailed(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, failedFilter())
}

func (r *WorkflowInstanceRepository) ListWithPendingTasks(ctx context.Context) ([]*models.WorkflowInstance, error) {
	statuses := make(bson.A, 0, len(models.NonTerminalTaskStatuses))
	for _, status := range models.NonTerminalTaskStatuses {
		statuses = append(statuses, status)
	}

	return r.find(ctx, bson.M{"tasks.status": bson.M{"$in": statuses}}, persistence.Paging{})
}

func (r *WorkflowInstanceRepository) findOne(ctx context.Context, op, id string, filter bson.M) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := r.collection.FindOne(ctx, filter, options.FindOne().SetSort(newestFirst)).Decode(&instance)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, persistence.NewInstanceError(op, id, persistence.ErrWorkflowInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError(op, id, err)
	}

	return &instance, nil
}

func (r *WorkflowInstanceRepository) find(ctx context.Context, filter bson.M, paging persistence.Paging) ([]*models.WorkflowInstance, error) {
	cur, err := r.collection.Find(ctx, filter, findOptions(newestFirst, paging))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	instances := []*models.WorkflowInstance{}
	if err := cur.All(ctx, &instances); err != nil {
		return nil, err
	}

	return instances, nil
}

// taskExists returns nil when the execution is present, else the matching not-found error.
func (r *WorkflowInstanceRepository) taskExists(ctx context.Context, op, instanceID, executionID string) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": instanceID, "tasks.execution_id": executionID})
	if err != nil {
		return persistence.NewTaskError(op, instanceID, executionID, err)
	}

	if count > 0 {
		return nil
	}

	_, err = r.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	return persistence.NewTaskError(op, instanceID, executionID, persistence.ErrTaskNotFound)
}

func listFilter(opts persistence.InstanceListOptions) bson.M {
	filter := bson.M{}

	if opts.Status != "" {
		filter["status"] = opts.Status
	}

	if opts.PayloadID != "" {
		filter["payload_id"] = opts.PayloadID
	}

	return filter
}

func failedFilter() bson.M {
	return bson.M{
		"acknowledged_workflow_errors": nil,
		"$or": bson.A{
			bson.M{"status": models.WorkflowInstanceStatusFailed},
			bson.M{"tasks.status": models.TaskExecutionStatusPartialFail},
		},
	}
}
