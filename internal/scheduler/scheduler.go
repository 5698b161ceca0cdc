package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Job defines a scheduled function run.
// Schedule supports only the form "@every <duration>" (e.g., "@every 5s").
// Non-overlap: when Singleton is set and the previous run of the same job
// is still running, the tick is skipped rather than queued.
//
// Name must be unique across jobs inside the same Scheduler.

type Job struct {
	Name      string
	Schedule  string
	Singleton bool
	Run       func(ctx context.Context)

	// internal (guarded via atomic)
	running atomic.Bool
}

// parseEvery parses schedules of the form "@every <duration>".
func parseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "@every ") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
	}
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("@every duration must be > 0")
	}
	return d, nil
}

func (j *Job) validate() error {
	if j.Name == "" {
		return errors.New("job requires a name")
	}
	if j.Schedule == "" {
		return errors.New("job requires a schedule")
	}
	if j.Run == nil {
		return errors.New("job requires a run function")
	}
	return nil
}

// Scheduler runs jobs on their tickers.
// Use Start to launch the background loops, and Stop to cancel them.

type Scheduler struct {
	jobs []*Job
	quit chan struct{}
}

func New() *Scheduler { return &Scheduler{} }

func (s *Scheduler) Add(job *Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("duplicate job name: %s", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches all job loops. Call Stop to cancel.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.quit != nil {
		return errors.New("scheduler already started")
	}
	s.quit = make(chan struct{})
	for _, j := range s.jobs {
		d, err := parseEvery(j.Schedule)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		go s.runJob(ctx, j, d)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, j *Job, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if j.Singleton {
				// attempt to mark running; if already true, skip this tick
				if !j.running.CompareAndSwap(false, true) {
					continue
				}
			} else {
				j.running.Store(true)
			}
			// run off the ticker goroutine so a slow job cannot stall
			// other jobs' ticks
			go func(j *Job) {
				defer j.running.Store(false)
				j.Run(ctx)
			}(j)
		}
	}
}

// Stop cancels all jobs.
func (s *Scheduler) Stop() {
	if s.quit == nil {
		return
	}
	select {
	case <-s.quit:
		// already closed
	default:
		close(s.quit)
	}
}
