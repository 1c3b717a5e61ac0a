package file

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"sync"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

// WorkflowInstanceRepository stores one file per workflow instance.
type WorkflowInstanceRepository struct {
	mu   *sync.RWMutex
	docs collection[models.WorkflowInstance]
}

func (ir *WorkflowInstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	if ir.docs.exists(instance.ID) {
		return persistence.NewInstanceError("Create", instance.ID, persistence.ErrWorkflowInstanceAlreadyExists)
	}

	started, err := ir.find(func(i *models.WorkflowInstance) bool {
		return i.WorkflowID == instance.WorkflowID && i.PayloadID == instance.PayloadID
	})
	if err != nil {
		return err
	}

	if len(started) > 0 {
		return persistence.NewInstanceError("Create", instance.ID, persistence.ErrWorkflowInstanceAlreadyExists)
	}

	return ir.docs.write(instance.ID, instance)
}

func (ir *WorkflowInstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	return ir.get("GetByID", id)
}

func (ir *WorkflowInstanceRepository) GetByPayloadID(_ context.Context, payloadID string) ([]*models.WorkflowInstance, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	return ir.find(func(i *models.WorkflowInstance) bool { return i.PayloadID == payloadID })
}

func (ir *WorkflowInstanceRepository) GetByWorkflowAndPayload(_ context.Context, workflowID, payloadID string) (*models.WorkflowInstance, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	instances, err := ir.find(func(i *models.WorkflowInstance) bool {
		return i.WorkflowID == workflowID && i.PayloadID == payloadID
	})
	if err != nil {
		return nil, err
	}

	if len(instances) == 0 {
		return nil, persistence.NewInstanceError("GetByWorkflowAndPayload", "", persistence.ErrWorkflowInstanceNotFound)
	}

	return instances[0], nil
}

func (ir *WorkflowInstanceRepository) List(_ context.Context, opts persistence.InstanceListOptions) ([]*models.WorkflowInstance, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	instances, err := ir.find(opts.Matches)
	if err != nil {
		return nil, err
	}

	return persistence.Apply(instances, opts.Paging), nil
}

func (ir *WorkflowInstanceRepository) Count(_ context.Context, opts persistence.InstanceListOptions) (int64, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	instances, err := ir.find(opts.Matches)
	if err != nil {
		return 0, err
	}

	return int64(len(instances)), nil
}

func (ir *WorkflowInstanceRepository) AddTask(_ context.Context, instanceID string, task models.TaskExecution) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, err := ir.get("AddTask", instanceID)
	if err != nil {
		return err
	}

	if instance.HasTask(task.TaskID) {
		return persistence.NewTaskError("AddTask", instanceID, task.ExecutionID, persistence.ErrTaskAlreadyExists)
	}

	instance.Tasks = append(instance.Tasks, task)

	return ir.docs.write(instanceID, instance)
}

func (ir *WorkflowInstanceRepository) UpdateTaskStatus(_ context.Context, instanceID string, update persistence.TaskStatusUpdate) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, index, err := ir.task("UpdateTaskStatus", instanceID, update.ExecutionID)
	if err != nil {
		return err
	}

	if instance.Tasks[index].Status != update.ExpectedStatus {
		return persistence.NewTaskError("UpdateTaskStatus", instanceID, update.ExecutionID, persistence.ErrConcurrentUpdate)
	}

	update.ApplyTo(&instance.Tasks[index])

	return ir.docs.write(instanceID, instance)
}

func (ir *WorkflowInstanceRepository) UpdateTaskOutputs(_ context.Context, instanceID, executionID string, outputs map[string]string) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, index, err := ir.task("UpdateTaskOutputs", instanceID, executionID)
	if err != nil {
		return err
	}

	instance.Tasks[index].OutputArtifacts = outputs

	return ir.docs.write(instanceID, instance)
}

func (ir *WorkflowInstanceRepository) UpdateStatus(_ context.Context, instanceID string, status models.WorkflowInstanceStatus) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, err := ir.get("UpdateStatus", instanceID)
	if err != nil {
		return err
	}

	instance.Status = status

	return ir.docs.write(instanceID, instance)
}

func (ir *WorkflowInstanceRepository) AcknowledgeTaskError(_ context.Context, instanceID, executionID string, at time.Time) (bool, error) {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, index, err := ir.task("AcknowledgeTaskError", instanceID, executionID)
	if err != nil {
		return false, err
	}

	if !instance.Tasks[index].Status.IsFailure() {
		return false, nil
	}

	stamp := at.UTC()
	instance.Tasks[index].AcknowledgedTaskErrors = &stamp

	return true, ir.docs.write(instanceID, instance)
}

func (ir *WorkflowInstanceRepository) AcknowledgeWorkflowErrors(_ context.Context, instanceID string, at time.Time) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	instance, err := ir.get("AcknowledgeWorkflowErrors", instanceID)
	if err != nil {
		return err
	}

	stamp := at.UTC()
	instance.AcknowledgedWorkflowErrors = &stamp

	return ir.docs.write(instanceID, instance)
}

func (ir *WorkflowInstanceRepository) ListFailed(_ context.Context, paging persistence.Paging) ([]*models.WorkflowInstance, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	instances, err := ir.find((*models.WorkflowInstance).NeedsAttention)
	if err != nil {
		return nil, err
	}

	return persistence.Apply(instances, paging), nil
}

func (ir *WorkflowInstanceRepository) CountFailed(_ context.Context) (int64, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	instances, err := ir.find((*models.WorkflowInstance).NeedsAttention)
	if err != nil {
		return 0, err
	}

	return int64(len(instances)), nil
}

func (ir *WorkflowInstanceRepository) ListWithPendingTasks(_ context.Context) ([]*models.WorkflowInstance, error) {
	ir.mu.RLock()
	defer ir.mu.RUnlock()

	return ir.find(func(i *models.WorkflowInstance) bool {
		for _, task := range i.Tasks {
			if !task.Status.IsTerminal() {
				return true
			}
		}

		return false
	})
}

func (ir *WorkflowInstanceRepository) get(op, id string) (*models.WorkflowInstance, error) {
	instance, err := ir.docs.read(id)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errInvalidID) {
		return nil, persistence.NewInstanceError(op, id, persistence.ErrWorkflowInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError(op, id, err)
	}

	return instance, nil
}

func (ir *WorkflowInstanceRepository) task(op, instanceID, executionID string) (*models.WorkflowInstance, int, error) {
	instance, err := ir.get(op, instanceID)
	if err != nil {
		return nil, -1, err
	}

	index := instance.TaskIndexByExecutionID(executionID)
	if index < 0 {
		return nil, -1, persistence.NewTaskError(op, instanceID, executionID, persistence.ErrTaskNotFound)
	}

	return instance, index, nil
}

// find returns matching instances, newest first.
func (ir *WorkflowInstanceRepository) find(match func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	instances, err := ir.docs.filter(match)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(instances, func(a, b *models.WorkflowInstance) int {
		return b.StartTime.Compare(a.StartTime)
	})

	return instances, nil
}
