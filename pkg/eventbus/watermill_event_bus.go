package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/dukex/workflow-manager/pkg/otelhelper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var ErrAlreadySubscribed = errors.New("event bus already subscribed")

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	logger        *slog.Logger
	tracer        trace.Tracer
	mu            sync.Mutex
	subscribed    bool
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "event_bus"),
		tracer:        otelhelper.Tracer("workflow-manager/eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	if correlated, ok := event.(Correlated); ok {
		msg.Metadata.Set(events.CorrelationIDMetadataKey, correlated.GetCorrelationID())
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))

	return eb.publisher.Publish(event.GetType().Topic(), msg)
}

// Subscribe starts one consumer loop per registered event type. Messages of a
// topic are handled one at a time in delivery order.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribed {
		return ErrAlreadySubscribed
	}

	for eventType, handler := range eb.subscriptions {
		messages, err := eb.subscriber.Subscribe(ctx, eventType.Topic())
		if err != nil {
			return err
		}

		go eb.consume(ctx, eventType, handler, messages)
	}

	eb.subscribed = true

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, eventType events.EventType, handler EventHandler, messages <-chan *message.Message) {
	logger := eb.logger.With("event_type", eventType)

	for msg := range messages {
		eb.process(ctx, logger, eventType, handler, msg)
	}
}

func (eb *WatermillEventBus) process(ctx context.Context, logger *slog.Logger, eventType events.EventType, handler EventHandler, msg *message.Message) {
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))

	msgCtx, span := otelhelper.StartSpan(msgCtx, eb.tracer, "eventbus.handle",
		attribute.String(otelhelper.EventTypeKey, string(eventType)),
		attribute.String(otelhelper.MessageIDKey, msg.UUID),
		attribute.String(otelhelper.CorrelationIDKey, msg.Metadata.Get(events.CorrelationIDMetadataKey)),
	)
	defer span.End()

	event, ok := events.New(eventType)
	if !ok {
		logger.Warn("no decoder for event type, dropping message", "message_id", msg.UUID)
		msg.Ack()

		return
	}

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		// A malformed message will never decode, redelivering it would block the topic.
		logger.Error("failed to decode message, dropping", "message_id", msg.UUID, "error", err)
		otelhelper.SetError(span, err)
		msg.Ack()

		return
	}

	err = handler(msgCtx, event)
	if err != nil {
		logger.Error("failed to handle message", "message_id", msg.UUID, "error", err)
		otelhelper.SetError(span, err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribed {
		return ErrAlreadySubscribed
	}

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
