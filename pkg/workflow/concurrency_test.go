package workflow_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/services"
	"github.com/dukex/workflow-manager/pkg/testutil"
	"github.com/dukex/workflow-manager/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// barrier holds the first n callers of wait until all of them arrived.
type barrier struct {
	n       int32
	calls   atomic.Int32
	arrived sync.WaitGroup
}

func newBarrier(n int) *barrier {
	b := &barrier{n: int32(n)}
	b.arrived.Add(n)

	return b
}

func (b *barrier) wait() {
	if b == nil || b.calls.Add(1) > b.n {
		return
	}

	b.arrived.Done()
	b.arrived.Wait()
}

// interleavedInstances lines up concurrent handlers on their first read so
// every handler reads before any of them writes.
type interleavedInstances struct {
	persistence.WorkflowInstanceRepository

	byID                 *barrier
	byWorkflowAndPayload *barrier
}

func (r *interleavedInstances) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	r.byID.wait()

	return r.WorkflowInstanceRepository.GetByID(ctx, id)
}

func (r *interleavedInstances) GetByWorkflowAndPayload(ctx context.Context, workflowID, payloadID string) (*models.WorkflowInstance, error) {
	r.byWorkflowAndPayload.wait()

	return r.WorkflowInstanceRepository.GetByWorkflowAndPayload(ctx, workflowID, payloadID)
}

type interleavedPersistence struct {
	persistence.Persistence

	instances *interleavedInstances
}

func (p *interleavedPersistence) WorkflowInstanceRepository() persistence.WorkflowInstanceRepository {
	return p.instances
}

func interleaved(f *fixture, instances *interleavedInstances) *workflow.Reconciler {
	instances.WorkflowInstanceRepository = f.persistence.WorkflowInstanceRepository()

	return workflow.NewReconciler(&interleavedPersistence{Persistence: f.persistence, instances: instances}, f.bus, slog.New(slog.DiscardHandler))
}

// runConcurrently starts every fn at once and waits for all of them.
func runConcurrently(fns ...func()) {
	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
	)

	for _, fn := range fns {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start
			fn()
		}()
	}

	close(start)
	wg.Wait()
}

func TestHandleTaskUpdate_ConcurrentSiblingCompletions(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	testutil.SeedRevision(t, f.persistence, testutil.CreateTestRevision(fanOutWorkflow()))

	started, err := f.reconciler.HandleWorkflowRequest(ctx, request("payload-1", "MONAI"))
	require.NoError(t, err)

	instanceID := started.Instances[0]

	_, err = f.reconciler.HandleTaskUpdate(ctx, update(f.instance(t, instanceID), "router", models.TaskExecutionStatusSucceeded))
	require.NoError(t, err)

	instance := f.instance(t, instanceID)
	require.Len(t, instance.Tasks, 3)

	reconciler := interleaved(f, &interleavedInstances{byID: newBarrier(2)})

	var outcomes [2]workflow.Outcome

	runConcurrently(
		func() {
			result, err := reconciler.HandleTaskUpdate(ctx, update(instance, "segmentation", models.TaskExecutionStatusSucceeded))
			assert.NoError(t, err)
			outcomes[0] = result.Outcome
		},
		func() {
			result, err := reconciler.HandleTaskUpdate(ctx, update(instance, "report", models.TaskExecutionStatusSucceeded))
			assert.NoError(t, err)
			outcomes[1] = result.Outcome
		},
	)

	assert.Equal(t, [2]workflow.Outcome{workflow.OutcomeApplied, workflow.OutcomeApplied}, outcomes)

	stored := f.instance(t, instanceID)
	for _, task := range stored.Tasks {
		assert.Equal(t, models.TaskExecutionStatusSucceeded, task.Status, task.TaskID)
	}

	assert.Equal(t, models.WorkflowInstanceStatusSucceeded, stored.Status)
}

func TestHandleWorkflowRequest_ConcurrentDuplicatesStartOneInstance(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	testutil.SeedRevision(t, f.persistence, testutil.CreateTestRevision(fanOutWorkflow()))

	reconciler := interleaved(f, &interleavedInstances{byWorkflowAndPayload: newBarrier(2)})

	var results [2]workflow.Result

	runConcurrently(
		func() {
			result, err := reconciler.HandleWorkflowRequest(ctx, request("payload-1", "MONAI"))
			assert.NoError(t, err)
			results[0] = result
		},
		func() {
			result, err := reconciler.HandleWorkflowRequest(ctx, request("payload-1", "MONAI"))
			assert.NoError(t, err)
			results[1] = result
		},
	)

	assert.ElementsMatch(t, []workflow.Outcome{workflow.OutcomeApplied, workflow.OutcomeDuplicate},
		[]workflow.Outcome{results[0].Outcome, results[1].Outcome})

	count, err := f.persistence.WorkflowInstanceRepository().Count(ctx, persistence.InstanceListOptions{PayloadID: "payload-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.bus.Dispatched(), 1)

	payload, err := f.persistence.PayloadRepository().GetByID(ctx, "payload-1")
	require.NoError(t, err)
	assert.Len(t, payload.WorkflowInstanceIDs, 1)
}

func TestHandleTaskUpdate_LateEventsKeepStatsOutcome(t *testing.T) {
	f := newFixture(t)
	stats := services.NewExecutionStats(f.persistence, slog.New(slog.DiscardHandler), nil)
	reconciler := workflow.NewReconciler(f.persistence, f.bus, slog.New(slog.DiscardHandler), workflow.WithStatsRecorder(stats))
	ctx := t.Context()
	testutil.SeedRevision(t, f.persistence, testutil.CreateTestRevision(fanOutWorkflow()))

	started, err := reconciler.HandleWorkflowRequest(ctx, request("payload-1", "MONAI"))
	require.NoError(t, err)

	instance := f.instance(t, started.Instances[0])
	executionID := instance.Tasks[0].ExecutionID

	_, err = reconciler.HandleTaskUpdate(ctx, update(instance, "router", models.TaskExecutionStatusSucceeded))
	require.NoError(t, err)

	late, err := reconciler.HandleTaskUpdate(ctx, update(instance, "router", models.TaskExecutionStatusFailed))
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeRejected, late.Outcome)

	canceled, err := reconciler.HandleTaskCancellation(ctx, &events.TaskCancellation{
		BaseEvent:          events.NewBaseEvent(events.TaskCancellationEvent, instance.CorrelationID),
		WorkflowInstanceID: instance.ID,
		TaskID:             "router",
		ExecutionID:        executionID,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.OutcomeRejected, canceled.Outcome)

	row, err := f.persistence.ExecutionStatsRepository().Get(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskExecutionStatusSucceeded), row.Status)
	assert.Empty(t, row.Reason)
	assert.Nil(t, row.CompletedAtUTC)
}
