package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neboloop/architect/internal/agenthub"
	"github.com/neboloop/architect/internal/logging"
)

// Task run statuses as stored in task_runs.status
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

// ErrRunNotFound is returned by GetRun for unknown IDs
var ErrRunNotFound = errors.New("task run not found")

// TaskRun is one journal row
type TaskRun struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Instruction string     `json:"instruction"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
}

// TaskJournal records scheduler events in task_runs. Events can arrive out
// of order; a row never moves back to an earlier lifecycle stage.
type TaskJournal struct {
	store   *Store
	timeout time.Duration
}

// NewTaskJournal creates a journal on store
func NewTaskJournal(store *Store) *TaskJournal {
	return &TaskJournal{store: store, timeout: 5 * time.Second}
}

const upsertRunSQL = `
INSERT INTO task_runs (
    id, title, instruction, priority, status, stage,
    result, error, enqueued_at, started_at, finished_at, duration_ms, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status      = CASE WHEN excluded.stage >= task_runs.stage THEN excluded.status ELSE task_runs.status END,
    stage       = MAX(task_runs.stage, excluded.stage),
    result      = COALESCE(excluded.result, task_runs.result),
    error       = COALESCE(excluded.error, task_runs.error),
    started_at  = COALESCE(task_runs.started_at, excluded.started_at),
    finished_at = COALESCE(excluded.finished_at, task_runs.finished_at),
    duration_ms = COALESCE(excluded.duration_ms, task_runs.duration_ms),
    updated_at  = excluded.updated_at`

// OnTaskEvent implements agenthub.Observer
func (j *TaskJournal) OnTaskEvent(ev agenthub.TaskEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.Record(ctx, ev); err != nil {
		logging.Warnf("[TaskJournal] Failed to record %s for %s: %v", ev.Type, ev.Task.ID, err)
	}
}

// Record writes one event
func (j *TaskJournal) Record(ctx context.Context, ev agenthub.TaskEvent) error {
	var (
		status                string
		result, errText       any
		startedAt, finishedAt any
		durationMs            any
	)
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Type {
	case agenthub.EventSubmitted:
		status = StatusQueued
	case agenthub.EventStarted:
		status = StatusRunning
		startedAt = at.UnixMilli()
	case agenthub.EventCompleted:
		status = StatusCompleted
		result = ev.Result
		finishedAt = at.UnixMilli()
		durationMs = ev.Duration.Milliseconds()
		startedAt = at.Add(-ev.Duration).UnixMilli()
	case agenthub.EventFailed:
		status = StatusFailed
		errText = ev.Error
		finishedAt = at.UnixMilli()
		durationMs = ev.Duration.Milliseconds()
		startedAt = at.Add(-ev.Duration).UnixMilli()
	case agenthub.EventDropped:
		status = StatusDropped
		finishedAt = at.UnixMilli()
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	enqueued := ev.Task.EnqueuedAt
	if enqueued.IsZero() {
		enqueued = at
	}

	_, err := j.store.db.ExecContext(ctx, upsertRunSQL,
		ev.Task.ID, ev.Task.Title, ev.Task.Instruction, ev.Task.Priority, status, ev.Type.Rank(),
		result, errText, enqueued.UnixMilli(), startedAt, finishedAt, durationMs, time.Now().UnixMilli(),
	)
	return err
}

const selectRunColumns = `SELECT id, title, instruction, priority, status, result, error,
    enqueued_at, started_at, finished_at, duration_ms FROM task_runs`

// ListRuns returns the most recently enqueued runs first. limit <= 0 means 50.
func (j *TaskJournal) ListRuns(ctx context.Context, limit int) ([]TaskRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.store.db.QueryContext(ctx, selectRunColumns+` ORDER BY enqueued_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	runs := []TaskRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by task ID
func (j *TaskJournal) GetRun(ctx context.Context, id string) (TaskRun, error) {
	row := j.store.db.QueryRowContext(ctx, selectRunColumns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (TaskRun, error) {
	var (
		run                   TaskRun
		result, errText       sql.NullString
		enqueued              int64
		startedAt, finishedAt sql.NullInt64
		duration              sql.NullInt64
	)
	err := s.Scan(&run.ID, &run.Title, &run.Instruction, &run.Priority, &run.Status,
		&result, &errText, &enqueued, &startedAt, &finishedAt, &duration)
	if err != nil {
		return TaskRun{}, err
	}
	run.Result = result.String
	run.Error = errText.String
	run.EnqueuedAt = time.UnixMilli(enqueued)
	if startedAt.Valid {
		t := time.UnixMilli(startedAt.Int64)
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		run.FinishedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		run.DurationMs = &d
	}
	return run, nil
}
