package memory

import (
	"context"
	"testing"
	"time"

	"github.com/brewkit/brewmon/internal/store"
)

func TestMemoryOpenRecordTracking(t *testing.T) {
	db := New()
	ctx := context.Background()

	now := time.Now()
	rec, err := db.Create(ctx, store.Record{
		CoffeeType:  "single_medium",
		GroupNumber: 1,
		Status:      store.StatusStarted,
		TriggerType: store.TriggerManual,
		StartedAt:   now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	open, err := db.FindOpen(ctx, 1)
	if err != nil || open == nil || open.ID != rec.ID {
		t.Fatalf("find open: %+v err=%v", open, err)
	}

	if err := db.MarkCompleted(ctx, rec.ID, now.Add(20*time.Second)); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	open, err = db.FindOpen(ctx, 1)
	if err != nil || open != nil {
		t.Fatalf("completed record still open: %+v", open)
	}
}

func TestMemoryHistoryAndCounts(t *testing.T) {
	db := New()
	ctx := context.Background()

	base := time.Now()
	for i, trig := range []store.Trigger{store.TriggerManual, store.TriggerAPI, store.TriggerManual} {
		if _, err := db.Create(ctx, store.Record{
			CoffeeType:  "single_short",
			GroupNumber: i%2 + 1,
			Status:      store.StatusCompleted,
			TriggerType: trig,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	hist, err := db.History(ctx, store.HistoryQuery{Trigger: store.TriggerManual})
	if err != nil || len(hist) != 2 {
		t.Fatalf("manual history: %+v err=%v", hist, err)
	}
	if !hist[0].StartedAt.After(hist[1].StartedAt) {
		t.Fatalf("expected newest first: %+v", hist)
	}
	if n, _ := db.CountByTrigger(ctx, store.TriggerAPI); n != 1 {
		t.Fatalf("api count: %d", n)
	}
}

func TestMemoryMarkUnknownID(t *testing.T) {
	db := New()
	if err := db.MarkFailed(context.Background(), 42, "nope"); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}
