/*
store.go - Persistence interface for schedules and tasks

PURPOSE:
  Defines the boundary between the engine and whatever stores business
  records. The engine never queries unrelated entities; it only loads and
  saves the Schedules and Tasks it reconciles.

KEY INTERFACES:
  Store:    Read/write of schedules and tasks (what the sweep and the
            Service need)
  RunStore: History of reconciliation sweeps

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - timeline/store/memory.go: In-memory for testing

CONCURRENCY:
  Implementations must be safe for concurrent use. They do NOT need to
  serialise read-modify-write cycles on one entity: the Service does that
  with per-entity locks (see locks.go).

SEE ALSO:
  - service.go: Uses Store under per-entity locks
  - sweep.go: LoadActiveSchedules / LoadActiveTasks
*/
package timeline

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for schedule and task persistence
// =============================================================================

type Store interface {
	// LoadActiveSchedules returns every schedule the sweep should examine
	// (aggregate status not completed).
	LoadActiveSchedules(ctx context.Context) ([]Schedule, error)

	// LoadActiveTasks returns every task that is neither completed nor cancelled.
	LoadActiveTasks(ctx context.Context) ([]Task, error)

	// GetSchedule returns ErrScheduleNotFound when id is unknown.
	GetSchedule(ctx context.Context, id string) (*Schedule, error)

	// GetTask returns ErrTaskNotFound when id is unknown.
	GetTask(ctx context.Context, id string) (*Task, error)

	// SaveSchedule inserts or replaces a schedule and its occurrence statuses.
	SaveSchedule(ctx context.Context, s Schedule) error

	// SaveTask inserts or replaces a task.
	SaveTask(ctx context.Context, t Task) error

	ListSchedules(ctx context.Context) ([]Schedule, error)
	ListTasks(ctx context.Context) ([]Task, error)
}

// =============================================================================
// SWEEP HISTORY
// =============================================================================

// SweepRun records one reconciliation cycle.
type SweepRun struct {
	ID          string
	Trigger     string // scheduled, manual, startup
	Status      string // running, completed, failed, skipped
	StartedAt   time.Time
	CompletedAt *time.Time
	Report      SweepReport
	Error       string
}

// RunStore persists sweep runs.
type RunStore interface {
	SaveSweepRun(ctx context.Context, run SweepRun) error
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}
