package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/brewkit/brewmon/internal/store"
)

// DB implements store.Store on PostgreSQL via the pgx stdlib driver.

type DB struct {
	db *sql.DB
}

// New opens a PostgreSQL connection from a postgres:// DSN.
func New(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty postgres dsn")
	}
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coffee_deliveries(
			id BIGSERIAL PRIMARY KEY,
			coffee_type TEXT NOT NULL,
			group_number INTEGER NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NULL,
			error_message TEXT NULL,
			retroactive BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_group_status ON coffee_deliveries(group_number, status);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_trigger ON coffee_deliveries(trigger_type);`,
		`CREATE TABLE IF NOT EXISTS maintenance_log(
			id BIGSERIAL PRIMARY KEY,
			log_type TEXT NOT NULL,
			group_number INTEGER NULL,
			message TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE
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
		WHERE group_number = $1 AND status IN ($2, $3)
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
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO coffee_deliveries(coffee_type, group_number, status, trigger_type, started_at, completed_at, error_message, retroactive)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id;`,
		rec.CoffeeType, rec.GroupNumber, rec.Status, rec.TriggerType,
		rec.StartedAt.UTC(), completed, errMsg, rec.Retroactive).Scan(&rec.ID)
	if err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (s *DB) MarkInProgress(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coffee_deliveries SET status=$1 WHERE id=$2;`, store.StatusInProgress, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *DB) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coffee_deliveries SET status=$1, completed_at=$2 WHERE id=$3;`,
		store.StatusCompleted, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *DB) MarkFailed(ctx context.Context, id int64, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE coffee_deliveries SET status=$1, error_message=$2 WHERE id=$3;`,
		store.StatusFailed, msg, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *DB) History(ctx context.Context, q store.HistoryQuery) ([]store.Record, error) {
	query := `SELECT id, coffee_type, group_number, status, trigger_type, started_at, completed_at, error_message, retroactive
		FROM coffee_deliveries`
	var conds []string
	var args []interface{}
	if q.Trigger != "" {
		args = append(args, q.Trigger)
		conds = append(conds, fmt.Sprintf("trigger_type = $%d", len(args)))
	}
	if q.Group > 0 {
		args = append(args, q.Group)
		conds = append(conds, fmt.Sprintf("group_number = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
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
		`SELECT COUNT(*) FROM coffee_deliveries WHERE trigger_type = $1;`, trigger).Scan(&n)
	return n, err
}

func (s *DB) AppendMaintenance(ctx context.Context, e store.MaintenanceEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_log(log_type, group_number, message, timestamp, resolved)
		VALUES($1, $2, $3, $4, $5);`,
		e.LogType, e.GroupNumber, e.Message, ts.UTC(), e.Resolved)
	return err
}

func (s *DB) Maintenance(ctx context.Context, limit int) ([]store.MaintenanceEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log_type, group_number, message, timestamp, resolved
		FROM maintenance_log ORDER BY timestamp DESC LIMIT $1;`, limit)
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

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
