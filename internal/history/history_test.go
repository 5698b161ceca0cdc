package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brewkit/brewmon/internal/store"
)

type captureSink struct {
	events []Event
	err    error
}

func (c *captureSink) Send(_ context.Context, e Event) error {
	c.events = append(c.events, e)
	return c.err
}

func TestFanoutSendsToAllSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	f := Fanout{a, b}

	e := Event{
		Type:       EventStarted,
		OccurredAt: time.Now(),
		Record:     store.Record{ID: 1, CoffeeType: "single_short"},
	}
	if err := f.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event: %d %d", len(a.events), len(b.events))
	}
}

func TestFanoutContinuesPastFailure(t *testing.T) {
	boom := errors.New("boom")
	a := &captureSink{err: boom}
	b := &captureSink{}
	f := Fanout{a, b}

	err := f.Send(context.Background(), Event{Type: EventFailed})
	if !errors.Is(err, boom) {
		t.Fatalf("expected first error returned, got %v", err)
	}
	if len(b.events) != 1 {
		t.Fatalf("second sink must still receive the event")
	}
}
