// Package sqlite provides SQLite-backed persistence for trade history and
// engine telemetry events.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/arcana.cards/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/arcana.cards/internal/telemetry"
	"github.com/louisbranch/arcana.cards/internal/trade/history"
	"github.com/louisbranch/arcana.cards/internal/trade/history/sqlite/migrations"
)

// Store provides SQLite-backed trade history and telemetry persistence.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a history SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendTradeRecord persists one trade history row.
func (s *Store) AppendTradeRecord(ctx context.Context, record history.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.UserID) == "" {
		return fmt.Errorf("history user id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO trade_history (user_id, counterparty, card_given, card_received, outcome, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		record.UserID,
		record.Counterparty,
		record.CardGiven,
		record.CardReceived,
		string(record.Outcome),
		toMillis(record.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert trade history: %w", err)
	}
	return nil
}

// ListByUser fetches a user's trade history, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]history.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, counterparty, card_given, card_received, outcome, created_at
FROM trade_history
WHERE user_id = ?
ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var record history.Record
		var outcome string
		var createdAt int64
		if err := rows.Scan(&record.UserID, &record.Counterparty, &record.CardGiven, &record.CardReceived, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trade history: %w", err)
		}
		record.Outcome = history.Outcome(outcome)
		record.Timestamp = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade history: %w", err)
	}
	return records, nil
}

// AppendTelemetryEvent persists one telemetry event row.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event telemetry.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attrs, err := json.Marshal(event.Attrs)
	if err != nil {
		return fmt.Errorf("marshal telemetry attrs: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (severity, name, attrs, created_at)
VALUES (?, ?, ?, ?)`,
		string(event.Severity),
		event.Name,
		string(attrs),
		toMillis(event.Timestamp),
	); err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}

// CountTelemetryEvents reports how many events with name were recorded.
func (s *Store) CountTelemetryEvents(ctx context.Context, name string) (int, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM telemetry_events WHERE name = ?", name).Scan(&count); err != nil {
		return 0, fmt.Errorf("count telemetry events: %w", err)
	}
	return count, nil
}
