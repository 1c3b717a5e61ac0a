// Package statemachine holds the task lifecycle transition table and the rule
// deriving a workflow instance status from its tasks.
//
// Every legal move is listed in one table keyed by current status and event
// kind. Anything missing from the table is rejected with
// ErrTaskStatusUpdateNotValid, which is how duplicate and out-of-order
// deliveries are dropped.
package statemachine

import (
	"errors"
	"fmt"

	"github.com/dukex/workflow-manager/pkg/models"
)

// EventKind classifies an inbound task event.
type EventKind string

const (
	EventDispatch     EventKind = "dispatch"
	EventStatusUpdate EventKind = "status_update"
	EventCallback     EventKind = "callback"
	EventCancel       EventKind = "cancel"
)

// ErrTaskStatusUpdateNotValid is returned for events the current status does not accept.
var ErrTaskStatusUpdateNotValid = errors.New("task status update not valid")

// Event is the input of one transition.
type Event struct {
	Kind EventKind
	// Status is the target reported by status updates and callbacks.
	Status models.TaskExecutionStatus
	Reason models.FailureReason
	// MissingOutputs lists mandatory output artifacts absent from a success report.
	MissingOutputs []string
}

// Transition is the outcome of a legal event.
type Transition struct {
	From   models.TaskExecutionStatus
	To     models.TaskExecutionStatus
	Reason models.FailureReason
	// Terminal is set when To is terminal; TaskEndTime must be stamped.
	Terminal bool
	// DispatchDownstream is set when downstream destinations must be evaluated.
	DispatchDownstream bool
	// NeedsAcknowledgement flags failures that wait for an operator.
	NeedsAcknowledgement bool
}

// InvalidTransitionError describes a rejected event.
type InvalidTransitionError struct {
	From   models.TaskExecutionStatus
	Kind   EventKind
	Target models.TaskExecutionStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s event not accepted in status %s", e.Kind, e.From)
	}

	return fmt.Sprintf("%s event to %s not accepted in status %s", e.Kind, e.Target, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrTaskStatusUpdateNotValid
}

var reportedOutcomes = []models.TaskExecutionStatus{
	models.TaskExecutionStatusSucceeded,
	models.TaskExecutionStatusFailed,
	models.TaskExecutionStatusPartialFail,
	models.TaskExecutionStatusCanceled,
}

// transitions lists, per current status and event kind, the statuses the task may move to.
// Terminal statuses have no entry.
var transitions = map[models.TaskExecutionStatus]map[EventKind][]models.TaskExecutionStatus{
	models.TaskExecutionStatusCreated: {
		EventDispatch: {models.TaskExecutionStatusDispatched},
		EventCancel:   {models.TaskExecutionStatusCanceled},
	},
	models.TaskExecutionStatusDispatched: {
		EventStatusUpdate: append([]models.TaskExecutionStatus{models.TaskExecutionStatusAccepted}, reportedOutcomes...),
		EventCallback:     append([]models.TaskExecutionStatus{models.TaskExecutionStatusAccepted}, reportedOutcomes...),
		EventCancel:       {models.TaskExecutionStatusCanceled},
	},
	models.TaskExecutionStatusAccepted: {
		EventStatusUpdate: reportedOutcomes,
		EventCallback:     reportedOutcomes,
		EventCancel:       {models.TaskExecutionStatusCanceled},
	},
	models.TaskExecutionStatusUnknown: {
		EventStatusUpdate: reportedOutcomes,
		EventCallback:     reportedOutcomes,
		EventCancel:       {models.TaskExecutionStatusCanceled},
	},
}

// Apply computes the transition of a task in status current for ev.
func Apply(current models.TaskExecutionStatus, ev Event) (Transition, error) {
	target := targetOf(ev)

	if !allowed(current, ev.Kind, target) {
		return Transition{}, &InvalidTransitionError{From: current, Kind: ev.Kind, Target: target}
	}

	reason := ev.Reason
	if reason == "" {
		reason = models.FailureReasonNone
	}

	if ev.Kind == EventCancel && (ev.Reason == "" || ev.Reason == models.FailureReasonNone) {
		reason = models.FailureReasonCancelled
	}

	if target == models.TaskExecutionStatusSucceeded && len(ev.MissingOutputs) > 0 {
		target = models.TaskExecutionStatusPartialFail
		reason = models.FailureReasonMandatoryOutputsMissing
	}

	return Transition{
		From:                 current,
		To:                   target,
		Reason:               reason,
		Terminal:             target.IsTerminal(),
		DispatchDownstream:   target == models.TaskExecutionStatusSucceeded,
		NeedsAcknowledgement: target.IsFailure(),
	}, nil
}

// CanTransition reports whether Apply would accept ev in status current.
func CanTransition(current models.TaskExecutionStatus, ev Event) bool {
	return allowed(current, ev.Kind, targetOf(ev))
}

func targetOf(ev Event) models.TaskExecutionStatus {
	switch ev.Kind {
	case EventDispatch:
		return models.TaskExecutionStatusDispatched
	case EventCancel:
		return models.TaskExecutionStatusCanceled
	default:
		return ev.Status
	}
}

func allowed(current models.TaskExecutionStatus, kind EventKind, target models.TaskExecutionStatus) bool {
	byKind, ok := transitions[current]
	if !ok {
		return false
	}

	for _, to := range byKind[kind] {
		if to == target {
			return true
		}
	}

	return false
}
