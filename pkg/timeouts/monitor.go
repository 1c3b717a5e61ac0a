// Package timeouts reports task executions that exceeded their timeout.
package timeouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/workflow-manager/pkg/eventbus"
	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule    = "*/1 * * * *"
	DefaultTaskTimeout = 60 * time.Minute
)

// Monitor periodically looks for non-terminal tasks past their timeout and
// reports them on the bus. The resulting state change goes through the
// worker like any other task event.
type Monitor struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	eventLog    log.EventLogger
	logger      *slog.Logger
	schedule    string
	fallback    time.Duration
	now         func() time.Time
	cron        *cron.Cron
}

// NewMonitor checks schedule and returns a stopped monitor. fallback applies to
// tasks whose definition sets no timeout.
func NewMonitor(
	p persistence.Persistence,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	schedule string,
	fallback time.Duration,
) (*Monitor, error) {
	if schedule == "" {
		return nil, errors.New("timeout monitor schedule is required")
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	logger = logger.With("module", "timeout_monitor", "schedule", schedule)

	return &Monitor{
		persistence: p,
		publisher:   publisher,
		eventLog:    log.NewEventLogger(logger),
		logger:      logger,
		schedule:    schedule,
		fallback:    fallback,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Check reports every timed out task once and returns how many were reported.
// A failed publish does not stop the remaining reports.
func (m *Monitor) Check(ctx context.Context) (int, error) {
	instances, err := m.persistence.WorkflowInstanceRepository().ListWithPendingTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list workflow instances with pending tasks: %w", err)
	}

	now := m.now()
	reported := 0

	var errs []error

	for _, instance := range instances {
		for i := range instance.Tasks {
			task := &instance.Tasks[i]
			if !task.TimedOut(now, m.fallback) {
				continue
			}

			m.eventLog.TaskTimedOut(ctx, instance.ID, task.TaskID, task.ExecutionID)

			err := m.publisher.Publish(ctx, task.ExecutionID, timeoutEvent(instance, task))
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to report timeout of task %s: %w", task.ExecutionID, err))

				continue
			}

			reported++
		}
	}

	return reported, errors.Join(errs...)
}

// timeoutEvent fails a running task. A task that was never dispatched cannot
// be failed, so it is canceled instead.
func timeoutEvent(instance *models.WorkflowInstance, task *models.TaskExecution) eventbus.Event {
	message := fmt.Sprintf("task exceeded its timeout after starting at %s", task.TaskStartTime.Format(time.RFC3339))

	if task.Status == models.TaskExecutionStatusCreated {
		return &events.TaskCancellation{
			BaseEvent:          events.NewBaseEvent(events.TaskCancellationEvent, instance.CorrelationID),
			WorkflowInstanceID: instance.ID,
			TaskID:             task.TaskID,
			ExecutionID:        task.ExecutionID,
			Reason:             models.FailureReasonTimedOut,
			Identity:           "timeout-monitor",
			Message:            message,
		}
	}

	return &events.TaskUpdate{
		BaseEvent:          events.NewBaseEvent(events.TaskUpdateEvent, instance.CorrelationID),
		WorkflowInstanceID: instance.ID,
		TaskID:             task.TaskID,
		ExecutionID:        task.ExecutionID,
		Status:             models.TaskExecutionStatusFailed,
		Reason:             models.FailureReasonTimedOut,
		Message:            message,
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("Starting timeout monitor")

	m.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := m.cron.AddFunc(m.schedule, func() { m.run(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for timeout monitor: %w", err)
	}

	m.logger.Info("Adding cron job for timeout monitor", "id", id)
	m.cron.Start()

	return nil
}

func (m *Monitor) run(ctx context.Context) {
	reported, err := m.Check(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Timeout check failed", "error", err, "reported", reported)

		return
	}

	if reported > 0 {
		m.logger.InfoContext(ctx, "Reported timed out tasks", "reported", reported)
	}
}

// Stop waits for a running check to finish or ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.logger.Info("Stopping timeout monitor")

	if m.cron == nil {
		return nil
	}

	select {
	case <-m.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
