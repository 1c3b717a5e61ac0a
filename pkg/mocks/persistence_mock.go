package mocks

import (
	"context"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo       *MockWorkflowRepository
	instanceRepo       *MockWorkflowInstanceRepository
	executionStatsRepo *MockExecutionStatsRepository
	payloadRepo        *MockPayloadRepository
	artifactRepo       *MockArtifactReceivedRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:       &MockWorkflowRepository{},
		instanceRepo:       &MockWorkflowInstanceRepository{},
		executionStatsRepo: &MockExecutionStatsRepository{},
		payloadRepo:        &MockPayloadRepository{},
		artifactRepo:       &MockArtifactReceivedRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) GetMockWorkflowInstanceRepository() *MockWorkflowInstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) GetMockExecutionStatsRepository() *MockExecutionStatsRepository {
	return m.executionStatsRepo
}

func (m *MockPersistence) GetMockPayloadRepository() *MockPayloadRepository {
	return m.payloadRepo
}

func (m *MockPersistence) GetMockArtifactReceivedRepository() *MockArtifactReceivedRepository {
	return m.artifactRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) WorkflowInstanceRepository() persistence.WorkflowInstanceRepository {
	return m.instanceRepo
}

func (m *MockPersistence) ExecutionStatsRepository() persistence.ExecutionStatsRepository {
	return m.executionStatsRepo
}

func (m *MockPersistence) PayloadRepository() persistence.PayloadRepository {
	return m.payloadRepo
}

func (m *MockPersistence) ArtifactReceivedRepository() persistence.ArtifactReceivedRepository {
	return m.artifactRepo
}

func (m *MockPersistence) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (wr *MockWorkflowRepository) Create(ctx context.Context, revision *models.WorkflowRevision) error {
	args := wr.Called(ctx, revision)

	return args.Error(0)
}

func (wr *MockWorkflowRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*models.WorkflowRevision, error) {
	args := wr.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRevision), args.Error(1)
}

func (wr *MockWorkflowRepository) GetByRevision(ctx context.Context, workflowID string, revision int) (*models.WorkflowRevision, error) {
	args := wr.Called(ctx, workflowID, revision)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRevision), args.Error(1)
}

func (wr *MockWorkflowRepository) GetByWorkflowIDs(ctx context.Context, workflowIDs []string) ([]*models.WorkflowRevision, error) {
	args := wr.Called(ctx, workflowIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRevision), args.Error(1)
}

func (wr *MockWorkflowRepository) GetByAeTitle(ctx context.Context, aeTitle string) ([]*models.WorkflowRevision, error) {
	args := wr.Called(ctx, aeTitle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRevision), args.Error(1)
}

func (wr *MockWorkflowRepository) List(ctx context.Context, paging persistence.Paging) ([]*models.WorkflowRevision, error) {
	args := wr.Called(ctx, paging)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRevision), args.Error(1)
}

func (wr *MockWorkflowRepository) Count(ctx context.Context) (int64, error) {
	args := wr.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

func (wr *MockWorkflowRepository) SoftDeleteAll(ctx context.Context, workflowID string, keepID string, at time.Time) (int64, error) {
	args := wr.Called(ctx, workflowID, keepID, at)

	return args.Get(0).(int64), args.Error(1)
}

// MockWorkflowInstanceRepository is a mock implementation of persistence.WorkflowInstanceRepository interface.
type MockWorkflowInstanceRepository struct {
	mock.Mock
}

func (ir *MockWorkflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	args := ir.Called(ctx, instance)

	return args.Error(0)
}

func (ir *MockWorkflowInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	args := ir.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) GetByPayloadID(ctx context.Context, payloadID string) ([]*models.WorkflowInstance, error) {
	args := ir.Called(ctx, payloadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) GetByWorkflowAndPayload(ctx context.Context, workflowID string, payloadID string) (*models.WorkflowInstance, error) {
	args := ir.Called(ctx, workflowID, payloadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowInstance), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.WorkflowInstance, error) {
	args := ir.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) Count(ctx context.Context, opts persistence.InstanceListOptions) (int64, error) {
	args := ir.Called(ctx, opts)

	return args.Get(0).(int64), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) AddTask(ctx context.Context, instanceID string, task models.TaskExecution) error {
	args := ir.Called(ctx, instanceID, task)

	return args.Error(0)
}

func (ir *MockWorkflowInstanceRepository) UpdateTaskStatus(ctx context.Context, instanceID string, update persistence.TaskStatusUpdate) error {
	args := ir.Called(ctx, instanceID, update)

	return args.Error(0)
}

func (ir *MockWorkflowInstanceRepository) UpdateTaskOutputs(ctx context.Context, instanceID string, executionID string, outputs map[string]string) error {
	args := ir.Called(ctx, instanceID, executionID, outputs)

	return args.Error(0)
}

func (ir *MockWorkflowInstanceRepository) UpdateStatus(ctx context.Context, instanceID string, status models.WorkflowInstanceStatus) error {
	args := ir.Called(ctx, instanceID, status)

	return args.Error(0)
}

func (ir *MockWorkflowInstanceRepository) AcknowledgeTaskError(ctx context.Context, instanceID string, executionID string, at time.Time) (bool, error) {
	args := ir.Called(ctx, instanceID, executionID, at)

	return args.Bool(0), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) AcknowledgeWorkflowErrors(ctx context.Context, instanceID string, at time.Time) error {
	args := ir.Called(ctx, instanceID, at)

	return args.Error(0)
}

func (ir *MockWorkflowInstanceRepository) ListFailed(ctx context.Context, paging persistence.Paging) ([]*models.WorkflowInstance, error) {
	args := ir.Called(ctx, paging)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) CountFailed(ctx context.Context) (int64, error) {
	args := ir.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

func (ir *MockWorkflowInstanceRepository) ListWithPendingTasks(ctx context.Context) ([]*models.WorkflowInstance, error) {
	args := ir.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowInstance), args.Error(1)
}

// MockExecutionStatsRepository is a mock implementation of persistence.ExecutionStatsRepository interface.
type MockExecutionStatsRepository struct {
	mock.Mock
}

func (sr *MockExecutionStatsRepository) Upsert(ctx context.Context, stats *models.ExecutionStats) error {
	args := sr.Called(ctx, stats)

	return args.Error(0)
}

func (sr *MockExecutionStatsRepository) Apply(ctx context.Context, change persistence.ExecutionStatsChange) error {
	args := sr.Called(ctx, change)

	return args.Error(0)
}

func (sr *MockExecutionStatsRepository) Get(ctx context.Context, executionID string) (*models.ExecutionStats, error) {
	args := sr.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionStats), args.Error(1)
}

func (sr *MockExecutionStatsRepository) List(ctx context.Context, filter persistence.StatsFilter, paging persistence.Paging) ([]*models.ExecutionStats, error) {
	args := sr.Called(ctx, filter, paging)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionStats), args.Error(1)
}

func (sr *MockExecutionStatsRepository) Count(ctx context.Context, filter persistence.StatsFilter) (int64, error) {
	args := sr.Called(ctx, filter)

	return args.Get(0).(int64), args.Error(1)
}

func (sr *MockExecutionStatsRepository) CountByStatus(ctx context.Context, filter persistence.StatsFilter) ([]models.StatusCount, error) {
	args := sr.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.StatusCount), args.Error(1)
}

func (sr *MockExecutionStatsRepository) Average(ctx context.Context, filter persistence.StatsFilter) (models.AverageStats, error) {
	args := sr.Called(ctx, filter)

	return args.Get(0).(models.AverageStats), args.Error(1)
}

// MockPayloadRepository is a mock implementation of persistence.PayloadRepository interface.
type MockPayloadRepository struct {
	mock.Mock
}

func (pr *MockPayloadRepository) Upsert(ctx context.Context, payload *models.Payload) error {
	args := pr.Called(ctx, payload)

	return args.Error(0)
}

func (pr *MockPayloadRepository) AddWorkflowInstanceID(ctx context.Context, payloadID string, instanceID string) error {
	args := pr.Called(ctx, payloadID, instanceID)

	return args.Error(0)
}

func (pr *MockPayloadRepository) GetByID(ctx context.Context, payloadID string) (*models.Payload, error) {
	args := pr.Called(ctx, payloadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Payload), args.Error(1)
}

func (pr *MockPayloadRepository) List(ctx context.Context, paging persistence.Paging) ([]*models.Payload, error) {
	args := pr.Called(ctx, paging)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Payload), args.Error(1)
}

func (pr *MockPayloadRepository) Count(ctx context.Context) (int64, error) {
	args := pr.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

// MockArtifactReceivedRepository is a mock implementation of persistence.ArtifactReceivedRepository interface.
type MockArtifactReceivedRepository struct {
	mock.Mock
}

func (ar *MockArtifactReceivedRepository) Add(ctx context.Context, item *models.ArtifactReceivedItem) error {
	args := ar.Called(ctx, item)

	return args.Error(0)
}

func (ar *MockArtifactReceivedRepository) ListByInstanceTask(ctx context.Context, instanceID string, taskID string) ([]*models.ArtifactReceivedItem, error) {
	args := ar.Called(ctx, instanceID, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ArtifactReceivedItem), args.Error(1)
}
