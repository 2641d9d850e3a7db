package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// Failure is one side-channel task that did not complete.
type Failure struct {
	ID            int64     `json:"id"`
	TaskID        string    `json:"task_id"`
	Kind          string    `json:"kind"`
	ReservationID int64     `json:"reservation_id"`
	RoomID        int       `json:"room_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	Error         string    `json:"error"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FailureLog is the durable record of side-channel failures.
type FailureLog struct {
	db *sql.DB
}

// OpenFailureLog opens or creates the SQLite failure log at path.
func OpenFailureLog(path string) (*FailureLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create failure log directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to failure log: %w", err)
	}

	l := &FailureLog{db: db}
	if err := l.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

func (l *FailureLog) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS calendar_failures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			reservation_id INTEGER NOT NULL DEFAULT 0,
			room_id INTEGER NOT NULL DEFAULT 0,
			date TEXT,
			start_time TEXT,
			error TEXT NOT NULL,
			occurred_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_failures_occurred ON calendar_failures(occurred_at)`,
	}
	for _, q := range queries {
		if _, err := l.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Record appends f.
func (l *FailureLog) Record(ctx context.Context, f Failure) error {
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO calendar_failures (task_id, kind, reservation_id, room_id, date, start_time, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.TaskID, f.Kind, f.ReservationID, f.RoomID, f.Date, f.StartTime, f.Error, f.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Recent returns up to limit failures, newest first.
func (l *FailureLog) Recent(ctx context.Context, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, task_id, kind, reservation_id, room_id, COALESCE(date, ''), COALESCE(start_time, ''), error, occurred_at
		FROM calendar_failures
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.TaskID, &f.Kind, &f.ReservationID, &f.RoomID, &f.Date, &f.StartTime, &f.Error, &f.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Ping checks the database.
func (l *FailureLog) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close closes the database.
func (l *FailureLog) Close() error {
	return l.db.Close()
}
