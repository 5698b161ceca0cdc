package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/brewkit/brewmon/internal/history"
)

// Sink sends delivery events to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// EnsureTable creates the history table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		type String,
		occurred_at DateTime64(3),
		record_id Int64,
		coffee_type String,
		group_number Int32,
		status String,
		trigger_type String,
		started_at DateTime64(3),
		completed_at Nullable(DateTime64(3)),
		error_message Nullable(String),
		retroactive UInt8
	) ENGINE = MergeTree() ORDER BY (occurred_at)`, s.table)
	return s.conn.Exec(ctx, query)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, record_id, coffee_type, group_number, status, trigger_type, started_at, completed_at, error_message, retroactive) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var retro uint8
	if e.Record.Retroactive {
		retro = 1
	}
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		e.Record.ID,
		e.Record.CoffeeType,
		int32(e.Record.GroupNumber),
		string(e.Record.Status),
		string(e.Record.TriggerType),
		e.Record.StartedAt,
		e.Record.CompletedAt,
		e.Record.ErrorMessage,
		retro,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
