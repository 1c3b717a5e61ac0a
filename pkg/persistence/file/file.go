// Package file provides a file-backed document store for local development and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
)

const (
	workflowsCollection             = "workflows"
	workflowInstancesCollection     = "workflow_instances"
	executionStatsCollection        = "execution_stats"
	payloadsCollection              = "payloads"
	artifactReceivedItemsCollection = "artifact_received_items"
)

// Persistence implements persistence.Persistence on the file system. A single
// lock serialises writers, which makes conditional element updates atomic.
type Persistence struct {
	root string
	mu   *sync.RWMutex

	workflows *WorkflowRepository
	instances *WorkflowInstanceRepository
	stats     *ExecutionStatsRepository
	payloads  *PayloadRepository
	artifacts *ArtifactReceivedRepository
}

// NewPersistence creates a store rooted at root. A file:// prefix is accepted.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.RWMutex{}

	return &Persistence{
		root: cleanRoot,
		mu:   mu,
		workflows: &WorkflowRepository{
			mu:   mu,
			docs: newCollection[models.WorkflowRevision](cleanRoot, workflowsCollection),
		},
		instances: &WorkflowInstanceRepository{
			mu:   mu,
			docs: newCollection[models.WorkflowInstance](cleanRoot, workflowInstancesCollection),
		},
		stats: &ExecutionStatsRepository{
			mu:   mu,
			docs: newCollection[models.ExecutionStats](cleanRoot, executionStatsCollection),
		},
		payloads: &PayloadRepository{
			mu:   mu,
			docs: newCollection[models.Payload](cleanRoot, payloadsCollection),
		},
		artifacts: &ArtifactReceivedRepository{
			mu:   mu,
			docs: newCollection[models.ArtifactReceivedItem](cleanRoot, artifactReceivedItemsCollection),
		},
	}
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflows
}

func (fp *Persistence) WorkflowInstanceRepository() persistence.WorkflowInstanceRepository {
	return fp.instances
}

func (fp *Persistence) ExecutionStatsRepository() persistence.ExecutionStatsRepository {
	return fp.stats
}

func (fp *Persistence) PayloadRepository() persistence.PayloadRepository {
	return fp.payloads
}

func (fp *Persistence) ArtifactReceivedRepository() persistence.ArtifactReceivedRepository {
	return fp.artifacts
}

// EnsureIndexes creates the collection directories; the file store has no indexes.
func (fp *Persistence) EnsureIndexes(_ context.Context) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	for _, dir := range []string{
		fp.workflows.docs.dir,
		fp.instances.docs.dir,
		fp.stats.docs.dir,
		fp.payloads.docs.dir,
		fp.artifacts.docs.dir,
	} {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return err
		}
	}

	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
