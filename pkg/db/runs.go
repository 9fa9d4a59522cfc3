package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// Run records one render or stream command.
type Run struct {
	RunID        int64         `yaml:"run_id"`
	CreatedAt    time.Time     `yaml:"created_at"`
	Command      string        `yaml:"command"`
	Source       string        `yaml:"source"`
	Status       string        `yaml:"status"`
	ErrorMessage string        `yaml:"error_message,omitempty"`
	Regions      int           `yaml:"regions"`
	Transformed  int           `yaml:"transformed"`
	Unchanged    int           `yaml:"unchanged"`
	Skipped      int           `yaml:"skipped"`
	Dropped      int           `yaml:"dropped"`
	Failed       int           `yaml:"failed"`
	Frames       int           `yaml:"frames"`
	Duration     time.Duration `yaml:"duration"`
}

// InsertRun stores a run and returns its run_id.
func (db *DB) InsertRun(ctx context.Context, r Run) (int64, error) {
	if r.Status == "" {
		r.Status = RunStatusOK
	}
	result, err := db.ExecContext(ctx, `
		INSERT INTO runs (command, source, status, error_message, regions, transformed,
		                  unchanged, skipped, dropped, failed, frames, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Command, r.Source, r.Status, NewNullString(r.ErrorMessage), r.Regions, r.Transformed,
		r.Unchanged, r.Skipped, r.Dropped, r.Failed, r.Frames, r.Duration.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return runID, nil
}

const runColumns = `run_id, created_at, command, source, status, error_message, regions,
		       transformed, unchanged, skipped, dropped, failed, frames, duration_ms`

// GetRunByID retrieves a single run.
func (db *DB) GetRunByID(ctx context.Context, runID int64) (*Run, error) {
	row := db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns retrieves runs ordered by most recent first. command filters by
// command name when not empty.
func (db *DB) ListRuns(ctx context.Context, command string, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	var args []any
	if command != "" {
		query += " WHERE command = ?"
		args = append(args, command)
	}
	query += " ORDER BY created_at DESC, run_id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var errorMessage sql.NullString
	var durationMs int64
	err := s.Scan(&r.RunID, &r.CreatedAt, &r.Command, &r.Source, &r.Status, &errorMessage,
		&r.Regions, &r.Transformed, &r.Unchanged, &r.Skipped, &r.Dropped, &r.Failed,
		&r.Frames, &durationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if errorMessage.Valid {
		r.ErrorMessage = errorMessage.String
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}
