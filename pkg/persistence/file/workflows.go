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

// WorkflowRepository stores workflow revisions, one file per revision.
type WorkflowRepository struct {
	mu   *sync.RWMutex
	docs collection[models.WorkflowRevision]
}

func (wr *WorkflowRepository) Create(_ context.Context, revision *models.WorkflowRevision) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.docs.exists(revision.ID) {
		return persistence.NewWorkflowError("Create", revision.WorkflowID, persistence.ErrWorkflowRevisionAlreadyExists)
	}

	return wr.docs.write(revision.ID, revision)
}

func (wr *WorkflowRepository) GetByWorkflowID(_ context.Context, workflowID string) (*models.WorkflowRevision, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	revisions, err := wr.active(func(r *models.WorkflowRevision) bool { return r.WorkflowID == workflowID })
	if err != nil {
		return nil, err
	}

	if len(revisions) == 0 {
		return nil, persistence.NewWorkflowError("GetByWorkflowID", workflowID, persistence.ErrWorkflowNotFound)
	}

	latest := revisions[0]
	for _, revision := range revisions[1:] {
		if revision.Revision > latest.Revision {
			latest = revision
		}
	}

	return latest, nil
}

func (wr *WorkflowRepository) GetByRevision(_ context.Context, workflowID string, revision int) (*models.WorkflowRevision, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	revisions, err := wr.docs.filter(func(r *models.WorkflowRevision) bool {
		return r.WorkflowID == workflowID && r.Revision == revision
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if len(revisions) == 0 {
		return nil, persistence.NewWorkflowError("GetByRevision", workflowID, persistence.ErrWorkflowNotFound)
	}

	return revisions[0], nil
}

func (wr *WorkflowRepository) GetByWorkflowIDs(_ context.Context, workflowIDs []string) ([]*models.WorkflowRevision, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.active(func(r *models.WorkflowRevision) bool { return slices.Contains(workflowIDs, r.WorkflowID) })
}

func (wr *WorkflowRepository) GetByAeTitle(_ context.Context, aeTitle string) ([]*models.WorkflowRevision, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.active(func(r *models.WorkflowRevision) bool {
		return r.Workflow != nil && r.Workflow.InformaticsGateway.AeTitle == aeTitle
	})
}

func (wr *WorkflowRepository) List(_ context.Context, paging persistence.Paging) ([]*models.WorkflowRevision, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	revisions, err := wr.active(func(*models.WorkflowRevision) bool { return true })
	if err != nil {
		return nil, err
	}

	return persistence.Apply(revisions, paging), nil
}

func (wr *WorkflowRepository) Count(_ context.Context) (int64, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	revisions, err := wr.active(func(*models.WorkflowRevision) bool { return true })
	if err != nil {
		return 0, err
	}

	return int64(len(revisions)), nil
}

func (wr *WorkflowRepository) SoftDeleteAll(_ context.Context, workflowID, keepID string, at time.Time) (int64, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	revisions, err := wr.active(func(r *models.WorkflowRevision) bool {
		return r.WorkflowID == workflowID && r.ID != keepID
	})
	if err != nil {
		return 0, err
	}

	var deleted int64

	for _, revision := range revisions {
		stamp := at.UTC()
		revision.Deleted = &stamp

		err = wr.docs.write(revision.ID, revision)
		if err != nil {
			return deleted, err
		}

		deleted++
	}

	return deleted, nil
}

// active returns matching revisions without a Deleted stamp, newest first.
func (wr *WorkflowRepository) active(match func(*models.WorkflowRevision) bool) ([]*models.WorkflowRevision, error) {
	revisions, err := wr.docs.filter(func(r *models.WorkflowRevision) bool {
		return !r.IsDeleted() && match(r)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []*models.WorkflowRevision{}, nil
	}

	if err != nil {
		return nil, err
	}

	slices.SortFunc(revisions, func(a, b *models.WorkflowRevision) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return revisions, nil
}
