package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/validation"
	"github.com/google/uuid"
)

// Workflows manages workflow definitions. Every change is stored as a new
// revision and the previous ones are soft-deleted, so running instances keep
// the graph they started with.
type Workflows struct {
	persistence persistence.Persistence
	validator   *validation.Validator
	now         func() time.Time
}

// NewWorkflows creates a new workflow revision service.
func NewWorkflows(persistence persistence.Persistence) (*Workflows, error) {
	validator, err := validation.New()
	if err != nil {
		return nil, err
	}

	return &Workflows{
		persistence: persistence,
		validator:   validator,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflows) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates workflow and stores it as revision 1 of a new workflow id.
func (w *Workflows) Create(ctx context.Context, workflow *models.Workflow) (*models.WorkflowRevision, error) {
	if err := w.validate("Create", workflow); err != nil {
		return nil, err
	}

	revision := &models.WorkflowRevision{
		ID:         uuid.New().String(),
		WorkflowID: uuid.New().String(),
		Revision:   1,
		Workflow:   workflow,
		CreatedAt:  w.now(),
	}

	err := w.persistence.WorkflowRepository().Create(ctx, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return revision, nil
}

// Update stores workflow as the next revision of workflowID and soft-deletes
// every earlier revision.
func (w *Workflows) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.WorkflowRevision, error) {
	if err := w.validate("Update", workflow); err != nil {
		return nil, err
	}

	repo := w.persistence.WorkflowRepository()

	existing, err := repo.GetByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	now := w.now()
	revision := &models.WorkflowRevision{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Revision:   existing.Revision + 1,
		Workflow:   workflow,
		CreatedAt:  now,
	}

	err = repo.Create(ctx, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	_, err = repo.SoftDeleteAll(ctx, workflowID, revision.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to retire revisions of workflow %s: %w", workflowID, err)
	}

	return revision, nil
}

// Delete soft-deletes every revision of workflowID.
func (w *Workflows) Delete(ctx context.Context, workflowID string) error {
	repo := w.persistence.WorkflowRepository()

	_, err := repo.GetByWorkflowID(ctx, workflowID)
	if err != nil {
		return err
	}

	_, err = repo.SoftDeleteAll(ctx, workflowID, "", w.now())
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Get returns the active revision of workflowID.
func (w *Workflows) Get(ctx context.Context, workflowID string) (*models.WorkflowRevision, error) {
	return w.persistence.WorkflowRepository().GetByWorkflowID(ctx, workflowID)
}

// List returns one page of active revisions and the total count.
func (w *Workflows) List(ctx context.Context, paging persistence.Paging) ([]*models.WorkflowRevision, int64, error) {
	repo := w.persistence.WorkflowRepository()

	revisions, err := repo.List(ctx, paging)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workflows: %w", err)
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	return revisions, total, nil
}

// GetByAeTitle returns the active revisions routed to aeTitle. A non-empty
// callingAeTitle also has to be one of their data origins.
func (w *Workflows) GetByAeTitle(ctx context.Context, aeTitle, callingAeTitle string) ([]*models.WorkflowRevision, error) {
	revisions, err := w.persistence.WorkflowRepository().GetByAeTitle(ctx, aeTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflows by ae title: %w", err)
	}

	if callingAeTitle == "" {
		return revisions, nil
	}

	matched := make([]*models.WorkflowRevision, 0, len(revisions))
	for _, revision := range revisions {
		if revision.Workflow.InformaticsGateway.AcceptsCaller(callingAeTitle) {
			matched = append(matched, revision)
		}
	}

	return matched, nil
}

func (w *Workflows) validate(op string, workflow *models.Workflow) error {
	if workflow == nil {
		return NewValidationError(op, "WORKFLOW_NIL", "workflow is required", ErrWorkflowNil)
	}

	err := w.validator.Validate(workflow)
	if err == nil {
		return nil
	}

	var problems *validation.Error
	if errors.As(err, &problems) {
		return NewValidationError(op, "INVALID_WORKFLOW", problems.Error(), err)
	}

	return err
}
