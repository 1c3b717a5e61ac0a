// Package persistence defines the document store used by the workflow manager.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
)

// Persistence groups the repositories of every persisted collection.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	WorkflowInstanceRepository() WorkflowInstanceRepository
	ExecutionStatsRepository() ExecutionStatsRepository
	PayloadRepository() PayloadRepository
	ArtifactReceivedRepository() ArtifactReceivedRepository

	// EnsureIndexes creates missing secondary indexes. Safe to call on every start.
	EnsureIndexes(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow revisions. Only revisions without a
// Deleted timestamp are returned by the read methods.
type WorkflowRepository interface {
	Create(ctx context.Context, revision *models.WorkflowRevision) error
	GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRevision, error)
	// GetByRevision returns one revision of workflowID, deleted or not, so
	// running instances keep resolving the graph they started with.
	GetByRevision(ctx context.Context, workflowID string, revision int) (*models.WorkflowRevision, error)
	GetByWorkflowIDs(ctx context.Context, workflowIDs []string) ([]*models.WorkflowRevision, error)
	GetByAeTitle(ctx context.Context, aeTitle string) ([]*models.WorkflowRevision, error)
	List(ctx context.Context, paging Paging) ([]*models.WorkflowRevision, error)
	Count(ctx context.Context) (int64, error)
	// SoftDeleteAll stamps Deleted on every active revision of workflowID except
	// the revision with id keepID, and returns how many were stamped.
	SoftDeleteAll(ctx context.Context, workflowID, keepID string, at time.Time) (int64, error)
}

// WorkflowInstanceRepository stores workflow instances and their embedded
// task executions. Task level writes target one element of the task list.
type WorkflowInstanceRepository interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	GetByPayloadID(ctx context.Context, payloadID string) ([]*models.WorkflowInstance, error)
	GetByWorkflowAndPayload(ctx context.Context, workflowID, payloadID string) (*models.WorkflowInstance, error)
	List(ctx context.Context, opts InstanceListOptions) ([]*models.WorkflowInstance, error)
	Count(ctx context.Context, opts InstanceListOptions) (int64, error)

	// AddTask appends task unless an attempt of the same TaskID already exists,
	// in which case ErrTaskAlreadyExists is returned.
	AddTask(ctx context.Context, instanceID string, task models.TaskExecution) error
	// UpdateTaskStatus applies update to the task matching its ExecutionID only
	// while that task still holds update.ExpectedStatus. ErrConcurrentUpdate
	// is returned when the task moved on in between.
	UpdateTaskStatus(ctx context.Context, instanceID string, update TaskStatusUpdate) error
	UpdateTaskOutputs(ctx context.Context, instanceID, executionID string, outputs map[string]string) error
	UpdateStatus(ctx context.Context, instanceID string, status models.WorkflowInstanceStatus) error

	// AcknowledgeTaskError stamps the task only while it is Failed or
	// PartialFail and reports whether it did.
	AcknowledgeTaskError(ctx context.Context, instanceID, executionID string, at time.Time) (bool, error)
	AcknowledgeWorkflowErrors(ctx context.Context, instanceID string, at time.Time) error
	// ListFailed returns unacknowledged instances that are Failed or hold a PartialFail task.
	ListFailed(ctx context.Context, paging Paging) ([]*models.WorkflowInstance, error)
	CountFailed(ctx context.Context) (int64, error)
	ListWithPendingTasks(ctx context.Context) ([]*models.WorkflowInstance, error)
}

// ExecutionStatsRepository stores one reporting record per execution id.
type ExecutionStatsRepository interface {
	Upsert(ctx context.Context, stats *models.ExecutionStats) error
	// Apply writes change atomically, creating the record when missing.
	Apply(ctx context.Context, change ExecutionStatsChange) error
	Get(ctx context.Context, executionID string) (*models.ExecutionStats, error)
	List(ctx context.Context, filter StatsFilter, paging Paging) ([]*models.ExecutionStats, error)
	Count(ctx context.Context, filter StatsFilter) (int64, error)
	CountByStatus(ctx context.Context, filter StatsFilter) ([]models.StatusCount, error)
	// Average averages Succeeded rows of the current stats version. An empty
	// match yields zero values.
	Average(ctx context.Context, filter StatsFilter) (models.AverageStats, error)
}

type PayloadRepository interface {
	// Upsert inserts the payload when missing and leaves an existing one untouched.
	Upsert(ctx context.Context, payload *models.Payload) error
	AddWorkflowInstanceID(ctx context.Context, payloadID, instanceID string) error
	GetByID(ctx context.Context, payloadID string) (*models.Payload, error)
	List(ctx context.Context, paging Paging) ([]*models.Payload, error)
	Count(ctx context.Context) (int64, error)
}

type ArtifactReceivedRepository interface {
	Add(ctx context.Context, item *models.ArtifactReceivedItem) error
	ListByInstanceTask(ctx context.Context, instanceID, taskID string) ([]*models.ArtifactReceivedItem, error)
}
