package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/brewkit/brewmon/internal/history"
	"github.com/brewkit/brewmon/internal/store"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
// It skips the test when Docker is unavailable.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
		return nil, ""
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		_ = clickHouseContainer.Terminate(ctx)
		t.Skipf("Failed to get container host: %v", err)
		return nil, ""
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		_ = clickHouseContainer.Terminate(ctx)
		t.Skipf("Failed to get mapped port: %v", err)
		return nil, ""
	}

	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(addr, "delivery_history")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	if err := sink.EnsureTable(ctx); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	started := time.Now().Add(-30 * time.Second).UTC()
	rec := store.Record{
		ID:          7,
		CoffeeType:  "double_short",
		GroupNumber: 2,
		Status:      store.StatusStarted,
		TriggerType: store.TriggerManual,
		StartedAt:   started,
	}

	if err := sink.Send(ctx, history.Event{
		Type:       history.EventStarted,
		OccurredAt: started,
		Record:     rec,
	}); err != nil {
		t.Fatalf("Failed to send started event: %v", err)
	}

	completed := time.Now().UTC()
	rec.Status = store.StatusCompleted
	rec.CompletedAt = &completed

	if err := sink.Send(ctx, history.Event{
		Type:       history.EventCompleted,
		OccurredAt: completed,
		Record:     rec,
	}); err != nil {
		t.Fatalf("Failed to send completed event: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM delivery_history WHERE record_id = ?", rec.ID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	if _, err := New("invalid-host:9000", "delivery_history"); err == nil {
		t.Error("Expected error with invalid connection, got nil")
	}
}
