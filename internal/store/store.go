package store

import (
	"context"
	"time"
)

// Status is the lifecycle state of a delivery record.
type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Open reports whether the status counts as an open (not yet settled) delivery.
func (s Status) Open() bool { return s == StatusStarted || s == StatusInProgress }

// Trigger records how a delivery was initiated.
type Trigger string

const (
	TriggerAPI       Trigger = "api"
	TriggerManual    Trigger = "manual"
	TriggerAutomatic Trigger = "automatic"
)

// Record is one delivery occurrence on a group head. Field names are stable;
// downstream reporting depends on them.
type Record struct {
	ID           int64      `json:"id"`
	CoffeeType   string     `json:"coffee_type"`
	GroupNumber  int        `json:"group_number"`
	Status       Status     `json:"status"`
	TriggerType  Trigger    `json:"trigger_type"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	// Retroactive marks records created from a completion whose start was
	// never observed; started_at is best-effort in that case.
	Retroactive bool `json:"retroactive,omitempty"`
}

// MaintenanceEntry is one line of the machine maintenance log.
type MaintenanceEntry struct {
	ID          int64     `json:"id"`
	LogType     string    `json:"log_type"`
	GroupNumber int       `json:"group_number,omitempty"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Resolved    bool      `json:"resolved"`
}

// Maintenance log types.
const (
	LogManualDelivery  = "manual_delivery"
	LogPurge           = "purge"
	LogManualStop      = "manual_stop"
	LogHealthCheck     = "health_check"
	LogConnectionIssue = "connection_issue"
)

// HistoryQuery filters delivery history listings. Zero values mean "any".
type HistoryQuery struct {
	Trigger Trigger
	Group   int
	Limit   int
}

// Store persists delivery records and maintenance log entries.
// FindOpen returns (nil, nil) when no open record exists for the group; the
// caller enforces the at-most-one-open-record invariant through
// FindOpen before Create, never by blind insert.
type Store interface {
	EnsureSchema(ctx context.Context) error

	FindOpen(ctx context.Context, group int) (*Record, error)
	Create(ctx context.Context, rec Record) (Record, error)
	MarkInProgress(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, msg string) error

	History(ctx context.Context, q HistoryQuery) ([]Record, error)
	CountByTrigger(ctx context.Context, trigger Trigger) (int, error)

	AppendMaintenance(ctx context.Context, e MaintenanceEntry) error
	Maintenance(ctx context.Context, limit int) ([]MaintenanceEntry, error)

	Close() error
}
