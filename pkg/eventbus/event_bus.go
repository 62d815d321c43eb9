// Package eventbus provides event-driven communication between the API,
// scheduler, and worker processes.
package eventbus

import (
	"context"

	"github.com/cadencehq/cadence/pkg/events"
)

// Event is anything the bus can carry. All sequence lifecycle and step
// events in pkg/events satisfy it.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes one event under a partition key. Events for the
// same sequence share a key so they stay ordered on partitioned transports.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber registers handlers per event type and then consumes until
// the context is cancelled. Register all handlers before calling Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
