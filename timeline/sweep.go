/*
sweep.go - Reconciliation sweep (pending <-> delayed aging)

PURPOSE:
  Ages statuses forward against the calendar. Run once per interval
  (daily) by api.ReconciliationScheduler or on demand.

RULES (today0 = StartOfDayUTC(now)):
  Task:
    EndDate <  today0 and status not completed/cancelled/delayed -> delayed
    EndDate >= today0 and status delayed                         -> pending
  Schedule, per occurrence:
    DueAt <  today0 and pending -> delayed
    DueAt >= today0 and delayed -> pending
    then the aggregate status is re-derived.
  completed and cancelled are never touched.

ISOLATION:
  Each entity is reconciled under its own lock, reloaded fresh, and saved
  only if something changed. A failure on one entity is recorded in the
  report and the sweep continues. Only a failure to load the candidate
  lists aborts the cycle.

IDEMPOTENCY:
  The rules are a pure function of (status, due date, today0). A second
  run with the same now finds nothing to change.
*/
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entity kinds reported in SweepFailure.
const (
	EntitySchedule = "schedule"
	EntityTask     = "task"
)

// SweepReport summarises one reconciliation pass.
type SweepReport struct {
	Today            time.Time
	DelayedCount     int
	RevertedCount    int
	SchedulesChecked int
	TasksChecked     int
	Failures         []SweepFailure
}

// SweepFailure is one entity the sweep could not reconcile.
type SweepFailure struct {
	EntityID string
	Kind     string
	Err      error
}

func (f SweepFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Kind, f.EntityID, f.Err)
}

// =============================================================================
// PURE RULES
// =============================================================================

// Transition describes what reconciliation did to a status.
type Transition int

const (
	Unchanged Transition = iota
	MarkedDelayed
	Reverted
)

// ReconcileTaskStatus applies the task aging rule.
func ReconcileTaskStatus(status Status, endDate, today0 time.Time) (Status, Transition) {
	if status.IsTerminal() {
		return status, Unchanged
	}
	overdue := endDate.Before(today0)
	switch {
	case overdue && status != StatusDelayed:
		return StatusDelayed, MarkedDelayed
	case !overdue && status == StatusDelayed:
		return StatusPending, Reverted
	}
	return status, Unchanged
}

// ReconcileOccurrences applies the occurrence aging rule and returns a new
// set with the number of occurrences delayed and reverted.
func ReconcileOccurrences(set StatusSet, today0 time.Time) (out StatusSet, delayed, reverted int) {
	out = set.Clone()
	for i := range out {
		st := &out[i]
		overdue := st.DueAt.Before(today0)
		switch {
		case overdue && st.Status == StatusPending:
			st.Status = StatusDelayed
			delayed++
		case !overdue && st.Status == StatusDelayed:
			st.Status = StatusPending
			reverted++
		}
	}
	return out, delayed, reverted
}

// =============================================================================
// SWEEP
// =============================================================================

// RunReconciliationSweep reconciles every active task and schedule against
// the day containing now. The returned error is non-nil only for systemic
// failures (candidate lists could not be loaded); per-entity failures are in
// the report.
func (s *Service) RunReconciliationSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	today0 := StartOfDayUTC(now)
	report := SweepReport{Today: today0}

	tasks, err := s.store.LoadActiveTasks(ctx)
	if err != nil {
		return report, fmt.Errorf("load active tasks: %w", err)
	}
	schedules, err := s.store.LoadActiveSchedules(ctx)
	if err != nil {
		return report, fmt.Errorf("load active schedules: %w", err)
	}

	for _, t := range tasks {
		report.TasksChecked++
		tr, err := s.reconcileTask(ctx, t.ID, today0)
		if err != nil {
			s.recordFailure(&report, t.ID, EntityTask, err)
			continue
		}
		switch tr {
		case MarkedDelayed:
			report.DelayedCount++
		case Reverted:
			report.RevertedCount++
		}
	}

	for _, sc := range schedules {
		report.SchedulesChecked++
		delayed, reverted, err := s.reconcileSchedule(ctx, sc.ID, today0)
		if err != nil {
			s.recordFailure(&report, sc.ID, EntitySchedule, err)
			continue
		}
		report.DelayedCount += delayed
		report.RevertedCount += reverted
	}

	s.log.Info().
		Time("today", today0).
		Int("tasks", report.TasksChecked).
		Int("schedules", report.SchedulesChecked).
		Int("delayed", report.DelayedCount).
		Int("reverted", report.RevertedCount).
		Int("failures", len(report.Failures)).
		Msg("reconciliation sweep finished")
	return report, nil
}

func (s *Service) reconcileTask(ctx context.Context, id string, today0 time.Time) (Transition, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	// Reload under the lock: the candidate list may be stale.
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return Unchanged, err
	}
	next, tr := ReconcileTaskStatus(task.Status, task.EndDate, today0)
	if tr == Unchanged {
		return Unchanged, nil
	}
	task.Status = next
	task.UpdatedAt = s.Now()
	if err := s.store.SaveTask(ctx, *task); err != nil {
		return Unchanged, err
	}
	return tr, nil
}

func (s *Service) reconcileSchedule(ctx context.Context, id string, today0 time.Time) (int, int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	occs, delayed, reverted := ReconcileOccurrences(sched.Occurrences, today0)
	prev := sched.Status
	sched.Occurrences = occs
	sched.Recompute()
	if delayed == 0 && reverted == 0 && sched.Status == prev {
		return 0, 0, nil
	}
	sched.UpdatedAt = s.Now()
	if err := s.store.SaveSchedule(ctx, *sched); err != nil {
		return 0, 0, err
	}
	return delayed, reverted, nil
}

func (s *Service) recordFailure(report *SweepReport, id, kind string, err error) {
	report.Failures = append(report.Failures, SweepFailure{EntityID: id, Kind: kind, Err: err})
	s.log.Error().
		Err(err).
		Str("entity_id", id).
		Str("kind", kind).
		Bool("not_found", errors.Is(err, ErrScheduleNotFound) || errors.Is(err, ErrTaskNotFound)).
		Msg("reconciliation failed for entity")
}
