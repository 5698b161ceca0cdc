package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brewkit/brewmon/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(strings.ToLower(p), "sqlite://") {
		p = strings.TrimPrefix(p, "sqlite://")
	}
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coffee_deliveries(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			coffee_type TEXT NOT NULL,
			group_number INTEGER NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NULL,
			error_message TEXT NULL,
			retroactive BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_group_status ON coffee_deliveries(group_number, status);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_trigger ON coffee_deliveries(trigger_type);`,
		`CREATE TABLE IF NOT EXISTS maintenance_log(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			log_type TEXT NOT NULL,
			group_number INTEGER NULL,
			message TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT 0
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) FindOpen(ctx context.Context, group int) (*store.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, coffee_type, group_number, status, trigger_type, started_at, completed_at, error_message, retroactive
		FROM coffee_deliveries
		WHERE group_number = ? AND status IN (?, ?)
		ORDER BY started_at DESC LIMIT 1;`,
		group, store.StatusStarted, store.StatusInProgress)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *DB) Create(ctx context.Context, rec store.Record) (store.Record, error) {
	var completed interface{}
	if rec.CompletedAt != nil {
		completed = rec.CompletedAt.UTC()
	}
	var errMsg interface{}
	if rec.ErrorMessage != nil {
		errMsg = *rec.ErrorMessage
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coffee_deliveries(coffee_type, group_number, status, trigger_type, started_at, completed_at, error_message, retroactive)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.CoffeeType, rec.GroupNumber, rec.Status, rec.TriggerType,
		rec.StartedAt.UTC(), completed, errMsg, rec.Retroactive)
	if err != nil {
		return store.Record{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Record{}, err
	}
	rec.ID = id
	return rec, nil
}

func (s *DB) MarkInProgress(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, `UPDATE coffee_deliveries SET status=? WHERE id=?;`, store.StatusInProgress)
}

func (s *DB) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coffee_deliveries SET status=?, completed_at=? WHERE id=?;`,
		store.StatusCompleted, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *DB) MarkFailed(ctx context.Context, id int64, msg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE coffee_deliveries SET status=?, error_message=? WHERE id=?;`,
		store.StatusFailed, msg, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *DB) setStatus(ctx context.Context, id int64, query string, status store.Status) error {
	res, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *DB) History(ctx context.Context, q store.HistoryQuery) ([]store.Record, error) {
	query := `SELECT id, coffee_type, group_number, status, trigger_type, started_at, completed_at, error_message, retroactive
		FROM coffee_deliveries`
	var conds []string
	var args []interface{}
	if q.Trigger != "" {
		conds = append(conds, "trigger_type = ?")
		args = append(args, q.Trigger)
	}
	if q.Group > 0 {
		conds = append(conds, "group_number = ?")
		args = append(args, q.Group)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DB) CountByTrigger(ctx context.Context, trigger store.Trigger) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coffee_deliveries WHERE trigger_type = ?;`, trigger).Scan(&n)
	return n, err
}

func (s *DB) AppendMaintenance(ctx context.Context, e store.MaintenanceEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_log(log_type, group_number, message, timestamp, resolved)
		VALUES(?, ?, ?, ?, ?);`,
		e.LogType, e.GroupNumber, e.Message, ts.UTC(), e.Resolved)
	return err
}

func (s *DB) Maintenance(ctx context.Context, limit int) ([]store.MaintenanceEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log_type, group_number, message, timestamp, resolved
		FROM maintenance_log ORDER BY timestamp DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []store.MaintenanceEntry
	for rows.Next() {
		var e store.MaintenanceEntry
		var group sql.NullInt64
		if err := rows.Scan(&e.ID, &e.LogType, &group, &e.Message, &e.Timestamp, &e.Resolved); err != nil {
			return nil, err
		}
		if group.Valid {
			e.GroupNumber = int(group.Int64)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (store.Record, error) {
	var rec store.Record
	var completed sql.NullTime
	var errMsg sql.NullString
	err := row.Scan(&rec.ID, &rec.CoffeeType, &rec.GroupNumber, &rec.Status, &rec.TriggerType,
		&rec.StartedAt, &completed, &errMsg, &rec.Retroactive)
	if err != nil {
		return store.Record{}, err
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	if errMsg.Valid {
		m := errMsg.String
		rec.ErrorMessage = &m
	}
	return rec, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	_ = id
	return nil
}
