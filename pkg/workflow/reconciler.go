// Package workflow reconciles workflow instances with the events published by
// the intake services and the task plugins.
//
// The Reconciler owns every write to a workflow instance: it starts instances
// for incoming requests, applies task status reports through the task state
// machine and dispatches the downstream tasks whose conditions hold.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/workflow-manager/pkg/eventbus"
	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/dukex/workflow-manager/pkg/otelhelper"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/statemachine"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// StatsRecorder receives every task event on a write path separate from the
// instance. Implementations swallow their own failures.
type StatsRecorder interface {
	RecordDispatch(ctx context.Context, dispatch *events.TaskDispatch)
	RecordUpdate(ctx context.Context, update *events.TaskUpdate)
	RecordCancellation(ctx context.Context, cancellation *events.TaskCancellation)
}

// RequestGuard is a fast path in front of the instance lookup used to drop
// duplicate workflow requests.
type RequestGuard interface {
	// Claim reports whether the caller is the first to start workflowID for payloadID.
	Claim(ctx context.Context, payloadID, workflowID string) (bool, error)
	// Release forgets a claim whose processing failed.
	Release(ctx context.Context, payloadID, workflowID string) error
}

// Outcome classifies how an event was handled.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result describes the effect of one handled event.
type Result struct {
	Outcome Outcome
	// Transition is set when a task status changed.
	Transition *statemachine.Transition
	// Instances lists the workflow instances created by a request.
	Instances []string
	// Dispatched lists the execution ids of the tasks dispatched while handling the event.
	Dispatched []string
}

type Reconciler struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	stats       StatsRecorder
	guard       RequestGuard
	eventLog    log.EventLogger
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	validate    *validator.Validate
	now         func() time.Time
	newID       func() string
}

type Option func(*Reconciler)

func WithStatsRecorder(stats StatsRecorder) Option {
	return func(r *Reconciler) { r.stats = stats }
}

func WithRequestGuard(guard RequestGuard) Option {
	return func(r *Reconciler) { r.guard = guard }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger, opts ...Option) *Reconciler {
	logger = logger.With("module", "reconciler")

	r := &Reconciler{
		persistence: p,
		publisher:   publisher,
		eventLog:    log.NewEventLogger(logger),
		logger:      logger,
		tracer:      otelhelper.Tracer("workflow-manager/reconciler"),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = metrics.NewUnregistered()
	}

	return r
}

func (r *Reconciler) recordDispatch(ctx context.Context, dispatch *events.TaskDispatch) {
	if r.stats != nil {
		r.stats.RecordDispatch(ctx, dispatch)
	}
}

func (r *Reconciler) recordUpdate(ctx context.Context, update *events.TaskUpdate) {
	if r.stats != nil {
		r.stats.RecordUpdate(ctx, update)
	}
}

func (r *Reconciler) recordCancellation(ctx context.Context, cancellation *events.TaskCancellation) {
	if r.stats != nil {
		r.stats.RecordCancellation(ctx, cancellation)
	}
}
