// Package journal keeps an optional SQLite log of delivery outcomes for
// later inspection with "mightyhooks history". It is an audit trail only:
// nothing is ever redelivered from it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mightyhooks/internal/dispatch"
	"mightyhooks/pkg/fileutil"
)

// Journal manages delivery outcomes in SQLite
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the journal database at dbPath
func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	if dir := filepath.Dir(dbPath); !fileutil.DirExists(dir) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db, logger: logger}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			route_key TEXT NOT NULL,
			destination TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			status_code INTEGER,
			duration_ms INTEGER NOT NULL,
			error TEXT,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_route_created
		ON deliveries(route_key, id DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordDelivery stores o. Storage errors are logged and otherwise ignored
// so that the journal never affects delivery.
func (j *Journal) RecordDelivery(ctx context.Context, o dispatch.Outcome) {
	if _, err := j.Insert(ctx, FromOutcome(o)); err != nil {
		j.logger.Error("Failed to record delivery in journal", "error", err, "hook", o.RouteKey, "event_id", o.EventID)
	}
}

// FromOutcome converts a dispatcher outcome into a journal record.
func FromOutcome(o dispatch.Outcome) *Record {
	record := &Record{
		EventID:     o.EventID,
		RouteKey:    o.RouteKey,
		Destination: o.Destination,
		Stage:       o.Stage,
		Status:      o.Result(),
		DurationMs:  o.Duration.Milliseconds(),
	}
	if o.StatusCode != 0 {
		code := o.StatusCode
		record.StatusCode = &code
	}
	if o.Err != nil {
		msg := o.Err.Error()
		record.Error = &msg
	}
	return record
}

// Insert stores a record and returns its ID
func (j *Journal) Insert(ctx context.Context, record *Record) (int64, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := j.db.ExecContext(ctx, `
		INSERT INTO deliveries
		(event_id, route_key, destination, stage, status, status_code,
		 duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.EventID,
		record.RouteKey,
		record.Destination,
		record.Stage,
		record.Status,
		record.StatusCode,
		record.DurationMs,
		record.Error,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert delivery record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// Recent returns the newest records, optionally restricted to one route
// key, newest first.
func (j *Journal) Recent(ctx context.Context, routeKey string, limit int) ([]Record, error) {
	query := `
		SELECT id, event_id, route_key, destination, stage, status,
		       status_code, duration_ms, error, created_at
		FROM deliveries`
	args := []any{}
	if routeKey != "" {
		query += ` WHERE route_key = ?`
		args = append(args, routeKey)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var record Record
	var statusCode sql.NullInt64
	var errMsg sql.NullString
	var createdAt string

	err := s.Scan(
		&record.ID,
		&record.EventID,
		&record.RouteKey,
		&record.Destination,
		&record.Stage,
		&record.Status,
		&statusCode,
		&record.DurationMs,
		&errMsg,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if statusCode.Valid {
		code := int(statusCode.Int64)
		record.StatusCode = &code
	}
	if errMsg.Valid {
		record.Error = &errMsg.String
	}

	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}

	return &record, nil
}
