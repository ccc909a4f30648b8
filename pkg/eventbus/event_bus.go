// Package eventbus provides event publication infrastructure for
// orchestration lifecycle notifications.
package eventbus

import (
	"context"

	"github.com/0rca-network/conductor/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher

	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	Close() error
	GenerateID() string
}
