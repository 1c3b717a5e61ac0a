package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

// Acknowledgements records operator acknowledgements of failed instances and
// tasks. An acknowledged instance leaves the needs-attention set for good.
type Acknowledgements struct {
	persistence persistence.Persistence
	eventLog    log.EventLogger
	now         func() time.Time
}

func NewAcknowledgements(p persistence.Persistence, logger *slog.Logger) *Acknowledgements {
	return &Acknowledgements{
		persistence: p,
		eventLog:    log.NewEventLogger(logger.With("module", "acknowledgements")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AcknowledgeTaskError stamps the execution when it is Failed or PartialFail
// and leaves it untouched otherwise. Once every failed task of the instance is
// acknowledged the instance itself is acknowledged too.
func (a *Acknowledgements) AcknowledgeTaskError(ctx context.Context, instanceID, executionID string) (*models.WorkflowInstance, error) {
	repo := a.persistence.WorkflowInstanceRepository()
	now := a.now()

	stamped, err := repo.AcknowledgeTaskError(ctx, instanceID, executionID, now)
	if err != nil {
		return nil, err
	}

	instance, err := repo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if !stamped {
		return instance, nil
	}

	a.eventLog.TaskErrorAcknowledged(ctx, instanceID, executionID)

	if instance.AcknowledgedWorkflowErrors != nil || !instance.AllFailuresAcknowledged() {
		return instance, nil
	}

	return a.acknowledgeInstance(ctx, instanceID, now)
}

// AcknowledgeWorkflowInstanceErrors stamps the instance whatever its status.
func (a *Acknowledgements) AcknowledgeWorkflowInstanceErrors(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return a.acknowledgeInstance(ctx, instanceID, a.now())
}

func (a *Acknowledgements) acknowledgeInstance(ctx context.Context, instanceID string, at time.Time) (*models.WorkflowInstance, error) {
	repo := a.persistence.WorkflowInstanceRepository()

	err := repo.AcknowledgeWorkflowErrors(ctx, instanceID, at)
	if err != nil {
		return nil, err
	}

	a.eventLog.WorkflowErrorsAcknowledged(ctx, instanceID)

	return repo.GetByID(ctx, instanceID)
}

// GetAllFailed returns one page of the instances awaiting acknowledgement and
// the size of the whole set.
func (a *Acknowledgements) GetAllFailed(ctx context.Context, paging persistence.Paging) ([]*models.WorkflowInstance, int64, error) {
	repo := a.persistence.WorkflowInstanceRepository()

	instances, err := repo.ListFailed(ctx, paging)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list failed workflow instances: %w", err)
	}

	total, err := repo.CountFailed(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count failed workflow instances: %w", err)
	}

	return instances, total, nil
}
