package history

import (
	"context"
	"time"

	"github.com/brewkit/brewmon/internal/store"
)

// EventType defines the kind of delivery lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event represents a delivery lifecycle event exported to external
// analytics systems.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Record     store.Record `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout sends each event to every sink, returning the first error seen.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, e Event) error {
	var firstErr error
	for _, s := range f {
		if err := s.Send(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
