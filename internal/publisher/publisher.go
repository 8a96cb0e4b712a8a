// Package publisher defines the notifications emitted when catalog rows change.
package publisher

import (
	"context"
	"time"
)

// EventModelUpserted is the event_type attribute of ModelUpserted messages.
const EventModelUpserted = "model.upserted"

// Publisher sends a payload to a topic and returns the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ModelUpserted announces that the loader wrote a model row.
type ModelUpserted struct {
	ModelID   string    `json:"model_id"`
	UpdatedAt time.Time `json:"updated_at"`
	RunID     string    `json:"run_id"`
}

// EventType names the event for message attributes.
func (ModelUpserted) EventType() string { return EventModelUpserted }

// Typed is implemented by payloads that carry an event type.
type Typed interface {
	EventType() string
}
