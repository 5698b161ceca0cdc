package monitor

// Detector classifies group snapshots into transition events by comparing
// each observation against the last accepted snapshot of the same group.
// It is not safe for concurrent use; the Monitor serializes access.
type Detector struct {
	last map[int]Snapshot
}

func NewDetector() *Detector {
	return &Detector{last: make(map[int]Snapshot)}
}

// Observe classifies snap against the previous snapshot of the group and
// advances the stored state. The first observation of a group establishes
// the baseline and never produces a transition, so activity already in
// flight when monitoring begins surfaces later as a retroactive completion.
func (d *Detector) Observe(snap Snapshot) Event {
	prev, seen := d.last[snap.Group]
	d.last[snap.Group] = snap

	if !seen {
		return Event{Kind: NoChange, Group: snap.Group, At: snap.TakenAt}
	}

	switch {
	case !prev.Active && snap.Active:
		return Event{Kind: PressStarted, Group: snap.Group, CoffeeType: snap.CoffeeType, At: snap.TakenAt}
	case prev.Active && !snap.Active:
		return Event{Kind: PressCompleted, Group: snap.Group, CoffeeType: prev.CoffeeType, At: snap.TakenAt}
	}
	return Event{Kind: NoChange, Group: snap.Group, At: snap.TakenAt}
}

// Last returns the last accepted snapshot for a group.
func (d *Detector) Last(group int) (Snapshot, bool) {
	s, ok := d.last[group]
	return s, ok
}

// Groups returns the group numbers a baseline exists for.
func (d *Detector) Groups() []int {
	out := make([]int, 0, len(d.last))
	for g := range d.last {
		out = append(out, g)
	}
	return out
}

// Reset drops all baselines. The next observation per group is baseline
// only, which keeps re-enabling the monitor from replaying stale
// transitions.
func (d *Detector) Reset() {
	d.last = make(map[int]Snapshot)
}
