/*
service.go - Schedule and task operations under per-entity locks

PURPOSE:
  The write path for schedules and tasks. Every mutation is a
  lock -> load -> compute -> save cycle on a single entity, so concurrent
  writers to the same schedule cannot lose each other's updates, and
  writers to different schedules never wait on each other.

OPERATIONS:
  CreateSchedule          generate + seed statuses + derive aggregate
  RegenerateSchedule      generate + merge with existing statuses
  UpdateOccurrenceStatus  explicit status change of one period
  CreateTask / UpdateTask
  RunReconciliationSweep  see sweep.go

DEFAULT RANGE:
  The Service never invents a range. Callers that want the current
  financial year resolve it themselves (FinancialYearFor) and pass it in.
*/
package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is safe for concurrent use.
type Service struct {
	store Store
	locks *EntityLocks
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used by the sweep and the write path.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithIDGenerator overrides uuid-based IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		locks: NewEntityLocks(),
		now:   time.Now,
		newID: uuid.NewString,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Now returns the service clock's current time in UTC.
func (s *Service) Now() time.Time { return s.now().UTC() }

// =============================================================================
// SCHEDULES
// =============================================================================

// NewSchedule is the input to CreateSchedule.
type NewSchedule struct {
	Name      string
	Frequency Frequency
	Range     DateRange
}

// CreateSchedule generates the occurrence set and seeds every period as pending.
func (s *Service) CreateSchedule(ctx context.Context, in NewSchedule) (*Schedule, error) {
	occs, err := Generate(in.Frequency, in.Range)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	sched := Schedule{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Frequency:   in.Frequency,
		Range:       normalizeRange(in.Range),
		Occurrences: SeedStatuses(occs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sched.Recompute()

	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	s.log.Info().
		Str("schedule_id", sched.ID).
		Str("frequency", string(in.Frequency.Type())).
		Int("occurrences", len(sched.Occurrences)).
		Msg("schedule created")
	return &sched, nil
}

// RegenerateSchedule re-runs generation with a (possibly edited) frequency and
// range, keeping statuses of periods that survive and dropping the rest.
func (s *Service) RegenerateSchedule(ctx context.Context, id string, freq Frequency, rng DateRange) (*Schedule, error) {
	occs, err := Generate(freq, rng)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	before := len(sched.Occurrences)
	sched.Frequency = freq
	sched.Range = normalizeRange(rng)
	sched.Occurrences = MergeStatuses(sched.Occurrences, SeedStatuses(occs))
	sched.Recompute()
	sched.UpdatedAt = s.Now()

	if err := s.store.SaveSchedule(ctx, *sched); err != nil {
		return nil, fmt.Errorf("save schedule %s: %w", id, err)
	}

	s.log.Info().
		Str("schedule_id", id).
		Int("before", before).
		Int("after", len(sched.Occurrences)).
		Msg("schedule regenerated")
	return sched, nil
}

// UpdateOccurrenceStatus applies an explicit status change to one period and
// re-derives the schedule status.
func (s *Service) UpdateOccurrenceStatus(ctx context.Context, id, period string, status Status, notes *string) (*Schedule, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	updated, err := UpdateOccurrenceStatus(sched.Occurrences, period, status, notes, now)
	if err != nil {
		var pnf *PeriodNotFoundError
		if errors.As(err, &pnf) {
			pnf.ScheduleID = id
		}
		return nil, err
	}
	sched.Occurrences = updated
	sched.Recompute()
	sched.UpdatedAt = now

	if err := s.store.SaveSchedule(ctx, *sched); err != nil {
		return nil, fmt.Errorf("save schedule %s: %w", id, err)
	}
	return sched, nil
}

func (s *Service) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	return s.store.GetSchedule(ctx, id)
}

func (s *Service) ListSchedules(ctx context.Context) ([]Schedule, error) {
	return s.store.ListSchedules(ctx)
}

// =============================================================================
// TASKS
// =============================================================================

// NewTask is the input to CreateTask. A zero Status means pending.
type NewTask struct {
	Title     string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
}

// TaskUpdate carries the fields to change; nil fields are left alone.
type TaskUpdate struct {
	Title     *string
	StartDate *time.Time
	EndDate   *time.Time
	Status    *Status
}

func (s *Service) CreateTask(ctx context.Context, in NewTask) (*Task, error) {
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	now := s.Now()
	task := Task{
		ID:        s.newID(),
		Title:     strings.TrimSpace(in.Title),
		StartDate: in.StartDate.UTC(),
		EndDate:   in.EndDate.UTC(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateTaskDates(task); err != nil {
		return nil, err
	}

	if err := s.store.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	return &task, nil
}

// UpdateTask edits a task. Extending EndDate does not itself un-delay a task;
// the next sweep does.
func (s *Service) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		task.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.StartDate != nil {
		task.StartDate = upd.StartDate.UTC()
	}
	if upd.EndDate != nil {
		task.EndDate = upd.EndDate.UTC()
	}
	if upd.Status != nil {
		if _, err := ParseStatus(string(*upd.Status)); err != nil {
			return nil, err
		}
		task.Status = *upd.Status
	}
	if err := validateTaskDates(*task); err != nil {
		return nil, err
	}
	task.UpdatedAt = s.Now()

	if err := s.store.SaveTask(ctx, *task); err != nil {
		return nil, fmt.Errorf("save task %s: %w", id, err)
	}
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context) ([]Task, error) {
	return s.store.ListTasks(ctx)
}

func validateTaskDates(t Task) error {
	if t.EndDate.IsZero() {
		return &RangeError{Reason: "task needs an end date"}
	}
	if !t.StartDate.IsZero() && t.EndDate.Before(t.StartDate) {
		return &RangeError{Reason: "task end date is before its start date"}
	}
	return nil
}

func normalizeRange(r DateRange) DateRange {
	out := r
	if !r.Start.IsZero() {
		out.Start = StartOfDayUTC(r.Start)
	}
	if !r.End.IsZero() {
		out.End = StartOfDayUTC(r.End)
	}
	return out
}
