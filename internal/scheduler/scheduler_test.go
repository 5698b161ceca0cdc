package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseEvery(t *testing.T) {
	d, err := parseEvery("@every 5s")
	if err != nil || d != 5*time.Second {
		t.Fatalf("parse: d=%v err=%v", d, err)
	}
	if _, err := parseEvery("*/5 * * * *"); err == nil {
		t.Fatalf("cron expressions must be rejected")
	}
	if _, err := parseEvery("@every -1s"); err == nil {
		t.Fatalf("non-positive duration must be rejected")
	}
	if _, err := parseEvery("@every nope"); err == nil {
		t.Fatalf("invalid duration must be rejected")
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	var runs atomic.Int32
	s := New()
	err := s.Add(&Job{
		Name:      "tick",
		Schedule:  "@every 10ms",
		Singleton: true,
		Run:       func(context.Context) { runs.Add(1) },
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times, expected at least 3", runs.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSchedulerSingletonSkipsOverlap(t *testing.T) {
	var concurrent atomic.Int32
	var max atomic.Int32
	s := New()
	_ = s.Add(&Job{
		Name:      "slow",
		Schedule:  "@every 5ms",
		Singleton: true,
		Run: func(context.Context) {
			n := concurrent.Add(1)
			if n > max.Load() {
				max.Store(n)
			}
			time.Sleep(50 * time.Millisecond)
			concurrent.Add(-1)
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	time.Sleep(200 * time.Millisecond)
	if max.Load() > 1 {
		t.Fatalf("singleton job overlapped: max concurrency %d", max.Load())
	}
}

func TestSchedulerAddValidation(t *testing.T) {
	s := New()
	if err := s.Add(&Job{Schedule: "@every 1s", Run: func(context.Context) {}}); err == nil {
		t.Fatalf("missing name must be rejected")
	}
	if err := s.Add(&Job{Name: "a", Run: func(context.Context) {}}); err == nil {
		t.Fatalf("missing schedule must be rejected")
	}
	if err := s.Add(&Job{Name: "a", Schedule: "@every 1s"}); err == nil {
		t.Fatalf("missing run func must be rejected")
	}
	if err := s.Add(&Job{Name: "a", Schedule: "@every 1s", Run: func(context.Context) {}}); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}
	if err := s.Add(&Job{Name: "a", Schedule: "@every 2s", Run: func(context.Context) {}}); err == nil {
		t.Fatalf("duplicate name must be rejected")
	}
}

func TestSchedulerStopTerminatesLoops(t *testing.T) {
	var runs atomic.Int32
	s := New()
	_ = s.Add(&Job{
		Name:     "tick",
		Schedule: "@every 10ms",
		Run:      func(context.Context) { runs.Add(1) },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	s.Stop() // idempotent
	after := runs.Load()
	time.Sleep(60 * time.Millisecond)
	// allow one in-flight tick
	if runs.Load() > after+1 {
		t.Fatalf("jobs still running after stop")
	}
}
