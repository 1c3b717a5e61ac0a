package file

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"sync"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

type PayloadRepository struct {
	mu   *sync.RWMutex
	docs collection[models.Payload]
}

func (pr *PayloadRepository) Upsert(_ context.Context, payload *models.Payload) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.docs.exists(payload.PayloadID) {
		return nil
	}

	if payload.WorkflowInstanceIDs == nil {
		payload.WorkflowInstanceIDs = []string{}
	}

	return pr.docs.write(payload.PayloadID, payload)
}

func (pr *PayloadRepository) AddWorkflowInstanceID(_ context.Context, payloadID, instanceID string) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	payload, err := pr.get(payloadID)
	if err != nil {
		return err
	}

	if slices.Contains(payload.WorkflowInstanceIDs, instanceID) {
		return nil
	}

	payload.WorkflowInstanceIDs = append(payload.WorkflowInstanceIDs, instanceID)

	return pr.docs.write(payloadID, payload)
}

func (pr *PayloadRepository) GetByID(_ context.Context, payloadID string) (*models.Payload, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	return pr.get(payloadID)
}

func (pr *PayloadRepository) List(_ context.Context, paging persistence.Paging) ([]*models.Payload, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	payloads, err := pr.sorted()
	if err != nil {
		return nil, err
	}

	return persistence.Apply(payloads, paging), nil
}

func (pr *PayloadRepository) Count(_ context.Context) (int64, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	payloads, err := pr.docs.all()
	if err != nil {
		return 0, err
	}

	return int64(len(payloads)), nil
}

func (pr *PayloadRepository) get(payloadID string) (*models.Payload, error) {
	payload, err := pr.docs.read(payloadID)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errInvalidID) {
		return nil, persistence.ErrPayloadNotFound
	}

	return payload, err
}

func (pr *PayloadRepository) sorted() ([]*models.Payload, error) {
	payloads, err := pr.docs.all()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(payloads, func(a, b *models.Payload) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	return payloads, nil
}
