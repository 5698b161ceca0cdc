package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brewkit/brewmon/internal/metrics"
)

// SnapshotReader reads the current delivery status of one group head.
// Implementations talk to the machine hardware; tests substitute fakes.
type SnapshotReader interface {
	ReadGroup(group int) (Snapshot, error)
}

// Config holds monitor settings.
type Config struct {
	// Groups is the number of group heads to scan each cycle.
	Groups int
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Enabled     bool      `json:"enabled"`
	LastCycleAt time.Time `json:"last_cycle_at"`
	KnownGroups []int     `json:"known_groups"`
}

// Monitor owns the poll loop state: one detector, one tracker, and the
// enabled/busy gates. RunCycle is safe to invoke from overlapping ticks;
// only one cycle runs at a time and late ticks are skipped, not queued.
type Monitor struct {
	reader  SnapshotReader
	tracker *Tracker
	logger  *slog.Logger
	groups  int

	detector     *Detector
	enabled      atomic.Bool
	busy         atomic.Bool
	resetPending atomic.Bool

	mu          sync.Mutex
	lastCycleAt time.Time
	knownGroups []int
}

func New(cfg Config, reader SnapshotReader, tracker *Tracker, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	groups := cfg.Groups
	if groups <= 0 {
		groups = 3
	}
	return &Monitor{
		reader:   reader,
		tracker:  tracker,
		logger:   logger,
		groups:   groups,
		detector: NewDetector(),
	}
}

// Start enables monitoring. Baselines are discarded so the first cycle
// after enabling observes fresh state and cannot replay transitions from
// before the monitor was stopped.
func (m *Monitor) Start() {
	if m.enabled.CompareAndSwap(false, true) {
		m.resetPending.Store(true)
		m.logger.Info("monitoring enabled", "groups", m.groups)
	}
}

// Stop disables monitoring. A cycle already in flight finishes.
func (m *Monitor) Stop() {
	if m.enabled.CompareAndSwap(true, false) {
		m.logger.Info("monitoring disabled")
	}
}

func (m *Monitor) Enabled() bool { return m.enabled.Load() }

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := make([]int, len(m.knownGroups))
	copy(groups, m.knownGroups)
	return Status{
		Enabled:     m.enabled.Load(),
		LastCycleAt: m.lastCycleAt,
		KnownGroups: groups,
	}
}

// RunCycle scans every group once. When disabled it does nothing; when a
// previous cycle is still running the tick is skipped.
func (m *Monitor) RunCycle(ctx context.Context) {
	if !m.enabled.Load() {
		return
	}
	if !m.busy.CompareAndSwap(false, true) {
		metrics.IncCycleSkipped()
		m.logger.Debug("cycle still running, skipping tick")
		return
	}
	defer m.busy.Store(false)

	start := time.Now()
	if m.resetPending.Swap(false) {
		m.detector.Reset()
	}

	for g := 1; g <= m.groups; g++ {
		snap, err := m.reader.ReadGroup(g)
		if err != nil {
			metrics.IncReadFailure(g)
			ev := Event{Kind: ReadFailed, Group: g, At: time.Now(), Err: err}
			if aerr := m.tracker.Apply(ctx, ev); aerr != nil {
				m.logger.Warn("read failure handling failed", "group", g, "error", aerr)
			}
			// prior snapshot is kept; the next successful read classifies
			// against pre-failure state
			continue
		}
		ev := m.detector.Observe(snap)
		if ev.Kind == NoChange {
			continue
		}
		if err := m.tracker.Apply(ctx, ev); err != nil {
			// snapshot already advanced: a store outage must not replay
			// the same transition every subsequent cycle
			m.logger.Warn("event reconciliation failed",
				"group", g, "kind", ev.Kind, "error", err)
		}
	}

	groups := m.detector.Groups()
	sort.Ints(groups)
	m.mu.Lock()
	m.lastCycleAt = time.Now()
	m.knownGroups = groups
	m.mu.Unlock()

	metrics.IncCycle()
	metrics.ObserveCycleDuration(time.Since(start).Seconds())
}
