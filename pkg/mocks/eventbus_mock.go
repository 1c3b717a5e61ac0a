package mocks

import (
	"context"

	"github.com/dukex/workflow-manager/pkg/eventbus"
	"github.com/dukex/workflow-manager/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

// NewPublishingEventBus returns a MockEventBus accepting every Publish call.
func NewPublishingEventBus() *MockEventBus {
	m := &MockEventBus{}
	m.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return m
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// Published returns the events passed to Publish, in call order.
func (m *MockEventBus) Published() []eventbus.Event {
	var published []eventbus.Event

	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}

		if event, ok := call.Arguments.Get(2).(eventbus.Event); ok {
			published = append(published, event)
		}
	}

	return published
}

// Dispatched returns the TaskDispatch events passed to Publish, in call order.
func (m *MockEventBus) Dispatched() []*events.TaskDispatch {
	var dispatched []*events.TaskDispatch

	for _, event := range m.Published() {
		if dispatch, ok := event.(*events.TaskDispatch); ok {
			dispatched = append(dispatched, dispatch)
		}
	}

	return dispatched
}
