// Package eventbus provides the event-driven transport between the workflow manager and task plugins.
package eventbus

import (
	"context"

	"github.com/dukex/workflow-manager/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// Correlated is implemented by events carrying a correlation id.
type Correlated interface {
	GetCorrelationID() string
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event. A nil return acknowledges the
// message, an error asks the transport for redelivery.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
