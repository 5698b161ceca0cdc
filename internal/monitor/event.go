package monitor

import "time"

// EventKind classifies what a single group observation means relative to
// the previous one.
type EventKind string

const (
	// PressStarted marks an idle-to-active transition: a barista pressed a
	// selection button on the group head.
	PressStarted EventKind = "press_started"
	// PressCompleted marks an active-to-idle transition: the delivery on the
	// group head finished.
	PressCompleted EventKind = "press_completed"
	// ReadFailed means the status register could not be read this cycle.
	ReadFailed EventKind = "read_failed"
	// NoChange means the group stayed in the same state.
	NoChange EventKind = "no_change"
)

// Snapshot is one observed status of a group head.
type Snapshot struct {
	Group      int       `json:"group"`
	Active     bool      `json:"active"`
	CoffeeType string    `json:"coffee_type,omitempty"`
	TakenAt    time.Time `json:"taken_at"`
}

// Event is the classified outcome of observing one group during a cycle.
// CoffeeType carries the selection seen when the transition began; for
// PressCompleted it is taken from the snapshot that opened the delivery.
type Event struct {
	Kind       EventKind `json:"kind"`
	Group      int       `json:"group"`
	CoffeeType string    `json:"coffee_type,omitempty"`
	At         time.Time `json:"at"`
	Err        error     `json:"-"`
}
