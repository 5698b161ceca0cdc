package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/brewkit/brewmon/internal/store"
)

// DB is an in-memory store.Store for tests and embedding.

type DB struct {
	mu          sync.Mutex
	nextID      int64
	records     []store.Record
	maintenance []store.MaintenanceEntry
	maintID     int64
}

func New() *DB { return &DB{nextID: 1, maintID: 1} }

func (s *DB) EnsureSchema(context.Context) error { return nil }

func (s *DB) Close() error { return nil }

func (s *DB) FindOpen(_ context.Context, group int) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *store.Record
	for i := range s.records {
		r := s.records[i]
		if r.GroupNumber != group || !r.Status.Open() {
			continue
		}
		if found == nil || r.StartedAt.After(found.StartedAt) {
			cp := r
			found = &cp
		}
	}
	return found, nil
}

func (s *DB) Create(_ context.Context, rec store.Record) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *DB) MarkInProgress(_ context.Context, id int64) error {
	return s.update(id, func(r *store.Record) {
		r.Status = store.StatusInProgress
	})
}

func (s *DB) MarkCompleted(_ context.Context, id int64, at time.Time) error {
	return s.update(id, func(r *store.Record) {
		r.Status = store.StatusCompleted
		t := at
		r.CompletedAt = &t
	})
}

func (s *DB) MarkFailed(_ context.Context, id int64, msg string) error {
	return s.update(id, func(r *store.Record) {
		r.Status = store.StatusFailed
		m := msg
		r.ErrorMessage = &m
	})
}

func (s *DB) update(id int64, fn func(*store.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			fn(&s.records[i])
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *DB) History(_ context.Context, q store.HistoryQuery) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Record
	for _, r := range s.records {
		if q.Trigger != "" && r.TriggerType != q.Trigger {
			continue
		}
		if q.Group > 0 && r.GroupNumber != q.Group {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *DB) CountByTrigger(_ context.Context, trigger store.Trigger) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.TriggerType == trigger {
			n++
		}
	}
	return n, nil
}

func (s *DB) AppendMaintenance(_ context.Context, e store.MaintenanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.maintID
	s.maintID++
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.maintenance = append(s.maintenance, e)
	return nil
}

func (s *DB) Maintenance(_ context.Context, limit int) ([]store.MaintenanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.MaintenanceEntry, len(s.maintenance))
	copy(out, s.maintenance)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
