/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements timeline.Store and timeline.RunStore using SQLite. The same
  schema ports to PostgreSQL with only minor dialect differences.

INTERFACES IMPLEMENTED:
  timeline.Store:    Schedules (with occurrence statuses) and tasks
  timeline.RunStore: Reconciliation sweep history

KEY TABLES:
  schedules:           One row per schedule; frequency stored as JSON
  occurrence_statuses: One row per (schedule, period); seq keeps order
  tasks:               Standalone tasks with an end date
  sweep_runs:          History of reconciliation sweeps

SAVE SEMANTICS:
  SaveSchedule replaces the schedule row and its whole status collection
  in one SQL transaction, so a reader never sees a half-written set.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus a single open connection so
  ":memory:" databases are shared by every caller. Read-modify-write
  cycles on one entity are serialised by the Service, not here.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/timeline.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := timeline.NewService(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - timeline/store.go: Interface definitions
  - timeline/store/memory.go: In-memory implementation for testing
  - factory/frequency.go: Frequency JSON codec
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/timeline-engine/factory"
	"github.com/warp/timeline-engine/timeline"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" is per-connection, and SQLite has one writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Schedules (timeline records)
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		frequency_json TEXT NOT NULL,
		range_start TEXT,
		range_end TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_status
		ON schedules(status);

	-- Occurrence statuses, replaced as a set on every save
	CREATE TABLE IF NOT EXISTS occurrence_statuses (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		period TEXT NOT NULL,
		seq INTEGER NOT NULL,
		due_at TEXT NOT NULL,
		status TEXT NOT NULL,
		completed_at TEXT,
		notes TEXT,
		PRIMARY KEY (schedule_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_occurrences_schedule_seq
		ON occurrence_statuses(schedule_id, seq);

	-- Tasks
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status
		ON tasks(status);

	-- Reconciliation sweep history
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		trigger TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		report_json TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULES (timeline.Store)
// =============================================================================

// SaveSchedule inserts or replaces a schedule and its occurrence statuses.
func (s *Store) SaveSchedule(ctx context.Context, sched timeline.Schedule) error {
	freqJSON, err := factory.Marshal(sched.Frequency)
	if err != nil {
		return fmt.Errorf("encode frequency: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (id, name, frequency_json, range_start, range_end, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			frequency_json = excluded.frequency_json,
			range_start = excluded.range_start,
			range_end = excluded.range_end,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		sched.ID, sched.Name, string(freqJSON),
		nullString(formatDate(sched.Range.Start)), nullString(formatDate(sched.Range.End)),
		string(sched.Status),
		formatTime(sched.CreatedAt), formatTime(sched.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM occurrence_statuses WHERE schedule_id = ?`, sched.ID); err != nil {
		return fmt.Errorf("failed to clear occurrence statuses: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO occurrence_statuses (schedule_id, period, seq, due_at, status, completed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, st := range sched.Occurrences {
		var completedAt sql.NullString
		if st.CompletedAt != nil {
			completedAt = nullString(formatTime(*st.CompletedAt))
		}
		if _, err := stmt.ExecContext(ctx,
			sched.ID, st.Period, i, formatTime(st.DueAt), string(st.Status), completedAt, nullString(st.Notes),
		); err != nil {
			return fmt.Errorf("failed to save occurrence %s: %w", st.Period, err)
		}
	}

	return tx.Commit()
}

// GetSchedule retrieves a schedule with its occurrence statuses.
func (s *Store) GetSchedule(ctx context.Context, id string) (*timeline.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, frequency_json, range_start, range_end, status, created_at, updated_at
		FROM schedules WHERE id = ?
	`, id)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, timeline.ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}

	if sched.Occurrences, err = s.loadOccurrences(ctx, sched.ID); err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListSchedules returns all schedules, oldest first.
func (s *Store) ListSchedules(ctx context.Context) ([]timeline.Schedule, error) {
	return s.querySchedules(ctx, `
		SELECT id, name, frequency_json, range_start, range_end, status, created_at, updated_at
		FROM schedules ORDER BY created_at, id
	`)
}

// LoadActiveSchedules returns schedules whose aggregate status is not completed.
func (s *Store) LoadActiveSchedules(ctx context.Context) ([]timeline.Schedule, error) {
	return s.querySchedules(ctx, `
		SELECT id, name, frequency_json, range_start, range_end, status, created_at, updated_at
		FROM schedules WHERE status NOT IN ('completed', 'cancelled') ORDER BY created_at, id
	`)
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]timeline.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var out []timeline.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, sched)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before the per-schedule queries: there is only one connection.
	rows.Close()

	for i := range out {
		if out[i].Occurrences, err = s.loadOccurrences(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadOccurrences(ctx context.Context, scheduleID string) (timeline.StatusSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, due_at, status, completed_at, notes
		FROM occurrence_statuses WHERE schedule_id = ? ORDER BY seq
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := timeline.StatusSet{}
	for rows.Next() {
		var st timeline.OccurrenceStatus
		var dueAt, status string
		var completedAt, notes sql.NullString
		if err := rows.Scan(&st.Period, &dueAt, &status, &completedAt, &notes); err != nil {
			return nil, err
		}
		st.DueAt = parseTime(dueAt)
		st.Status = timeline.Status(status)
		st.Notes = notes.String
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			st.CompletedAt = &t
		}
		set = append(set, st)
	}
	return set, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (timeline.Schedule, error) {
	var sched timeline.Schedule
	var freqJSON, status, createdAt, updatedAt string
	var rangeStart, rangeEnd sql.NullString
	if err := row.Scan(&sched.ID, &sched.Name, &freqJSON, &rangeStart, &rangeEnd, &status, &createdAt, &updatedAt); err != nil {
		return timeline.Schedule{}, err
	}

	freq, err := factory.ParseFrequency(freqJSON)
	if err != nil {
		return timeline.Schedule{}, fmt.Errorf("schedule %s: decode frequency: %w", sched.ID, err)
	}
	sched.Frequency = freq
	sched.Range = timeline.DateRange{Start: parseDate(rangeStart.String), End: parseDate(rangeEnd.String)}
	sched.Status = timeline.Status(status)
	sched.CreatedAt = parseTime(createdAt)
	sched.UpdatedAt = parseTime(updatedAt)
	return sched, nil
}

// =============================================================================
// TASKS (timeline.Store)
// =============================================================================

// SaveTask inserts or replaces a task.
func (s *Store) SaveTask(ctx context.Context, t timeline.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		t.ID, t.Title,
		nullString(formatOptionalTime(t.StartDate)), formatTime(t.EndDate),
		string(t.Status),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*timeline.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, start_date, end_date, status, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, timeline.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns all tasks, oldest first.
func (s *Store) ListTasks(ctx context.Context) ([]timeline.Task, error) {
	return s.queryTasks(ctx, `
		SELECT id, title, start_date, end_date, status, created_at, updated_at
		FROM tasks ORDER BY created_at, id
	`)
}

// LoadActiveTasks returns tasks that are neither completed nor cancelled.
func (s *Store) LoadActiveTasks(ctx context.Context) ([]timeline.Task, error) {
	return s.queryTasks(ctx, `
		SELECT id, title, start_date, end_date, status, created_at, updated_at
		FROM tasks WHERE status NOT IN ('completed', 'cancelled') ORDER BY created_at, id
	`)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]timeline.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timeline.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row scanner) (timeline.Task, error) {
	var t timeline.Task
	var startDate sql.NullString
	var endDate, status, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &startDate, &endDate, &status, &createdAt, &updatedAt); err != nil {
		return timeline.Task{}, err
	}
	if startDate.Valid {
		t.StartDate = parseTime(startDate.String)
	}
	t.EndDate = parseTime(endDate)
	t.Status = timeline.Status(status)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// =============================================================================
// SWEEP RUNS (timeline.RunStore)
// =============================================================================

// sweepReportJSON is the persisted form of a SweepReport. Failures keep
// only the error text.
type sweepReportJSON struct {
	Today            string             `json:"today"`
	DelayedCount     int                `json:"delayed_count"`
	RevertedCount    int                `json:"reverted_count"`
	SchedulesChecked int                `json:"schedules_checked"`
	TasksChecked     int                `json:"tasks_checked"`
	Failures         []sweepFailureJSON `json:"failures,omitempty"`
}

type sweepFailureJSON struct {
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// SaveSweepRun inserts or updates a sweep run.
func (s *Store) SaveSweepRun(ctx context.Context, r timeline.SweepRun) error {
	rep := sweepReportJSON{
		Today:            formatDate(r.Report.Today),
		DelayedCount:     r.Report.DelayedCount,
		RevertedCount:    r.Report.RevertedCount,
		SchedulesChecked: r.Report.SchedulesChecked,
		TasksChecked:     r.Report.TasksChecked,
	}
	for _, f := range r.Report.Failures {
		fj := sweepFailureJSON{EntityID: f.EntityID, Kind: f.Kind}
		if f.Err != nil {
			fj.Error = f.Err.Error()
		}
		rep.Failures = append(rep.Failures, fj)
	}
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return err
	}

	var completedAt sql.NullString
	if r.CompletedAt != nil {
		completedAt = nullString(formatTime(*r.CompletedAt))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (id, trigger, status, started_at, completed_at, report_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			report_json = excluded.report_json,
			error = excluded.error
	`,
		r.ID, r.Trigger, r.Status, formatTime(r.StartedAt), completedAt, string(reportJSON), nullString(r.Error),
	)
	return err
}

// ListSweepRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]timeline.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, trigger, status, started_at, completed_at, report_json, error
		FROM sweep_runs ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []timeline.SweepRun
	for rows.Next() {
		var r timeline.SweepRun
		var startedAt string
		var completedAt, reportJSON, errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Status, &startedAt, &completedAt, &reportJSON, &errText); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		r.Error = errText.String

		if reportJSON.Valid {
			var rep sweepReportJSON
			if err := json.Unmarshal([]byte(reportJSON.String), &rep); err != nil {
				return nil, fmt.Errorf("sweep run %s: decode report: %w", r.ID, err)
			}
			r.Report = timeline.SweepReport{
				Today:            parseDate(rep.Today),
				DelayedCount:     rep.DelayedCount,
				RevertedCount:    rep.RevertedCount,
				SchedulesChecked: rep.SchedulesChecked,
				TasksChecked:     rep.TasksChecked,
			}
			for _, f := range rep.Failures {
				r.Report.Failures = append(r.Report.Failures, timeline.SweepFailure{
					EntityID: f.EntityID, Kind: f.Kind, Err: errors.New(f.Error),
				})
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t.UTC()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", s)
	return t
}
