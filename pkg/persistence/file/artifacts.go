package file

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/workflow-manager/pkg/models"
)

type ArtifactReceivedRepository struct {
	mu   *sync.RWMutex
	docs collection[models.ArtifactReceivedItem]
}

func (ar *ArtifactReceivedRepository) Add(_ context.Context, item *models.ArtifactReceivedItem) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	return ar.docs.write(item.ID, item)
}

// ListByInstanceTask returns the items of one task in arrival order.
func (ar *ArtifactReceivedRepository) ListByInstanceTask(_ context.Context, instanceID, taskID string) ([]*models.ArtifactReceivedItem, error) {
	ar.mu.RLock()
	defer ar.mu.RUnlock()

	items, err := ar.docs.filter(func(i *models.ArtifactReceivedItem) bool {
		return i.WorkflowInstanceID == instanceID && i.TaskID == taskID
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(items, func(a, b *models.ArtifactReceivedItem) int {
		return a.Received.Compare(b.Received)
	})

	return items, nil
}
