package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brewkit/brewmon/internal/history"
	"github.com/brewkit/brewmon/internal/metrics"
	"github.com/brewkit/brewmon/internal/store"
)

// hardware read failures close open records with this message
const readFailureMessage = "hardware unavailable"

// unknownCoffeeType records a delivery whose selection bits could not be
// mapped to a known type. The record is still created so the lifecycle
// invariant (one record per manual delivery) holds.
const unknownCoffeeType = "unknown"

// Tracker reconciles transition events into persisted delivery records and
// exports lifecycle events to history sinks. Sink failures never block the
// record store; store failures are returned to the caller.
type Tracker struct {
	store  store.Store
	sink   history.Sink
	logger *slog.Logger
}

func NewTracker(st store.Store, sink history.Sink, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: st, sink: sink, logger: logger}
}

// Apply reconciles one event. NoChange events are ignored.
func (t *Tracker) Apply(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case PressStarted:
		return t.applyStarted(ctx, ev)
	case PressCompleted:
		return t.applyCompleted(ctx, ev)
	case ReadFailed:
		return t.applyReadFailed(ctx, ev)
	}
	return nil
}

func (t *Tracker) applyStarted(ctx context.Context, ev Event) error {
	open, err := t.store.FindOpen(ctx, ev.Group)
	if err != nil {
		return fmt.Errorf("find open record: %w", err)
	}
	if open != nil {
		// A start while a record is already open means we missed the
		// completion of the previous delivery. Absorb rather than
		// double-open; the eventual idle transition closes this record.
		t.logger.Warn("delivery start with open record, absorbing",
			"group", ev.Group, "open_id", open.ID)
		return nil
	}

	ct := ev.CoffeeType
	if ct == "" {
		ct = unknownCoffeeType
	}
	rec, err := t.store.Create(ctx, store.Record{
		CoffeeType:  ct,
		GroupNumber: ev.Group,
		Status:      store.StatusStarted,
		TriggerType: store.TriggerManual,
		StartedAt:   ev.At,
	})
	if err != nil {
		return fmt.Errorf("create delivery record: %w", err)
	}
	t.logger.Info("delivery started", "group", ev.Group, "coffee_type", ct, "id", rec.ID)
	metrics.IncDeliveryStarted(string(store.TriggerManual))
	metrics.SetOpenDelivery(ev.Group, true)
	t.emit(ctx, history.EventStarted, rec, ev)
	return nil
}

func (t *Tracker) applyCompleted(ctx context.Context, ev Event) error {
	open, err := t.store.FindOpen(ctx, ev.Group)
	if err != nil {
		return fmt.Errorf("find open record: %w", err)
	}

	if open == nil {
		// The start was never observed (activity shorter than the poll
		// interval, or in flight when monitoring began). Record the
		// delivery retroactively as completed.
		ct := ev.CoffeeType
		if ct == "" {
			ct = unknownCoffeeType
		}
		at := ev.At
		rec, err := t.store.Create(ctx, store.Record{
			CoffeeType:  ct,
			GroupNumber: ev.Group,
			Status:      store.StatusCompleted,
			TriggerType: store.TriggerManual,
			StartedAt:   at,
			CompletedAt: &at,
			Retroactive: true,
		})
		if err != nil {
			return fmt.Errorf("create retroactive record: %w", err)
		}
		t.logger.Info("delivery completed retroactively",
			"group", ev.Group, "coffee_type", ct, "id", rec.ID)
		metrics.IncDeliveryCompleted(string(store.TriggerManual))
		t.emit(ctx, history.EventCompleted, rec, ev)
		return nil
	}

	if err := t.store.MarkCompleted(ctx, open.ID, ev.At); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	t.logger.Info("delivery completed",
		"group", ev.Group, "coffee_type", open.CoffeeType, "id", open.ID,
		"duration", ev.At.Sub(open.StartedAt))
	metrics.IncDeliveryCompleted(string(open.TriggerType))
	metrics.SetOpenDelivery(ev.Group, false)

	done := *open
	done.Status = store.StatusCompleted
	at := ev.At
	done.CompletedAt = &at
	t.emit(ctx, history.EventCompleted, done, ev)
	return nil
}

func (t *Tracker) applyReadFailed(ctx context.Context, ev Event) error {
	if err := t.store.AppendMaintenance(ctx, store.MaintenanceEntry{
		LogType:     store.LogConnectionIssue,
		GroupNumber: ev.Group,
		Message:     fmt.Sprintf("status read failed: %v", ev.Err),
		Timestamp:   ev.At,
	}); err != nil {
		t.logger.Warn("maintenance log write failed", "error", err)
	}

	open, err := t.store.FindOpen(ctx, ev.Group)
	if err != nil {
		return fmt.Errorf("find open record: %w", err)
	}
	if open == nil {
		return nil
	}

	if err := t.store.MarkFailed(ctx, open.ID, readFailureMessage); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	t.logger.Warn("open delivery failed on read error",
		"group", ev.Group, "id", open.ID, "error", ev.Err)
	metrics.IncDeliveryFailed(string(open.TriggerType))
	metrics.SetOpenDelivery(ev.Group, false)

	failed := *open
	failed.Status = store.StatusFailed
	msg := readFailureMessage
	failed.ErrorMessage = &msg
	t.emit(ctx, history.EventFailed, failed, ev)
	return nil
}

func (t *Tracker) emit(ctx context.Context, typ history.EventType, rec store.Record, ev Event) {
	if t.sink == nil {
		return
	}
	if err := t.sink.Send(ctx, history.Event{Type: typ, OccurredAt: ev.At, Record: rec}); err != nil {
		t.logger.Warn("history sink send failed", "type", typ, "error", err)
	}
}
