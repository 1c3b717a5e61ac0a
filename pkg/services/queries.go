package services

import (
	"context"
	"fmt"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

// Instances answers read-only queries over workflow instances and their tasks.
type Instances struct {
	persistence persistence.Persistence
}

func NewInstances(p persistence.Persistence) *Instances {
	return &Instances{persistence: p}
}

func (s *Instances) Get(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return s.persistence.WorkflowInstanceRepository().GetByID(ctx, instanceID)
}

// List returns one page of instances, newest first, and the filtered total.
func (s *Instances) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.WorkflowInstance, int64, error) {
	if opts.Status != "" && !opts.Status.IsValid() {
		return nil, 0, NewValidationError("List", "INVALID_STATUS",
			fmt.Sprintf("invalid workflow instance status '%s'", opts.Status), ErrInvalidRequest)
	}

	repo := s.persistence.WorkflowInstanceRepository()

	instances, err := repo.List(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workflow instances: %w", err)
	}

	total, err := repo.Count(ctx, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count workflow instances: %w", err)
	}

	return instances, total, nil
}

func (s *Instances) GetByPayloadID(ctx context.Context, payloadID string) ([]*models.WorkflowInstance, error) {
	return s.persistence.WorkflowInstanceRepository().GetByPayloadID(ctx, payloadID)
}

// GetTask returns one execution of the instance.
func (s *Instances) GetTask(ctx context.Context, instanceID, executionID string) (*models.TaskExecution, error) {
	instance, err := s.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	index := instance.TaskIndexByExecutionID(executionID)
	if index < 0 {
		return nil, persistence.NewTaskError("GetTask", instanceID, executionID, persistence.ErrTaskNotFound)
	}

	return &instance.Tasks[index], nil
}

// Payloads answers read-only queries over received payloads.
type Payloads struct {
	persistence persistence.Persistence
}

func NewPayloads(p persistence.Persistence) *Payloads {
	return &Payloads{persistence: p}
}

func (s *Payloads) Get(ctx context.Context, payloadID string) (*models.Payload, error) {
	return s.persistence.PayloadRepository().GetByID(ctx, payloadID)
}

func (s *Payloads) List(ctx context.Context, paging persistence.Paging) ([]*models.Payload, int64, error) {
	repo := s.persistence.PayloadRepository()

	payloads, err := repo.List(ctx, paging)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payloads: %w", err)
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count payloads: %w", err)
	}

	return payloads, total, nil
}
