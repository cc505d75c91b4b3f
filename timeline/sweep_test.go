package timeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeline-engine/timeline"
	"github.com/warp/timeline-engine/timeline/store"
)

func newService(t *testing.T, now time.Time) (*timeline.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	seq := 0
	svc := timeline.NewService(mem,
		timeline.WithClock(func() time.Time { return now }),
		timeline.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return svc, mem
}

// =============================================================================
// PURE RULES
// =============================================================================

func TestReconcileTaskStatus(t *testing.T) {
	today0 := date(2024, 1, 11)
	tests := []struct {
		name   string
		status timeline.Status
		end    time.Time
		want   timeline.Status
		wantTr timeline.Transition
	}{
		{"pending overdue", timeline.StatusPending, date(2024, 1, 10), timeline.StatusDelayed, timeline.MarkedDelayed},
		{"ongoing overdue", timeline.StatusOngoing, date(2024, 1, 10), timeline.StatusDelayed, timeline.MarkedDelayed},
		{"due today is not overdue", timeline.StatusPending, date(2024, 1, 11), timeline.StatusPending, timeline.Unchanged},
		{"delayed but extended", timeline.StatusDelayed, date(2024, 1, 12), timeline.StatusPending, timeline.Reverted},
		{"delayed still overdue", timeline.StatusDelayed, date(2024, 1, 1), timeline.StatusDelayed, timeline.Unchanged},
		{"completed overdue", timeline.StatusCompleted, date(2024, 1, 1), timeline.StatusCompleted, timeline.Unchanged},
		{"cancelled overdue", timeline.StatusCancelled, date(2024, 1, 1), timeline.StatusCancelled, timeline.Unchanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tr := timeline.ReconcileTaskStatus(tt.status, tt.end, today0)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantTr, tr)
		})
	}
}

func TestReconcileOccurrences(t *testing.T) {
	set := timeline.StatusSet{
		{Period: "a", DueAt: date(2024, 1, 5), Status: timeline.StatusPending},
		{Period: "b", DueAt: date(2024, 1, 5), Status: timeline.StatusOngoing},
		{Period: "c", DueAt: date(2024, 1, 5), Status: timeline.StatusCompleted},
		{Period: "d", DueAt: date(2024, 1, 20), Status: timeline.StatusDelayed},
		{Period: "e", DueAt: time.Date(2024, 1, 11, 17, 0, 0, 0, time.UTC), Status: timeline.StatusPending},
	}

	out, delayed, reverted := timeline.ReconcileOccurrences(set, date(2024, 1, 11))

	assert.Equal(t, 1, delayed)
	assert.Equal(t, 1, reverted)
	assert.Equal(t, timeline.StatusDelayed, out[0].Status)
	assert.Equal(t, timeline.StatusOngoing, out[1].Status, "only pending occurrences are delayed")
	assert.Equal(t, timeline.StatusCompleted, out[2].Status)
	assert.Equal(t, timeline.StatusPending, out[3].Status)
	assert.Equal(t, timeline.StatusPending, out[4].Status, "due later today is not overdue")
	assert.Equal(t, timeline.StatusPending, set[0].Status, "input untouched")
}

// =============================================================================
// SWEEP
// =============================================================================

func TestSweep_TaskBecomesDelayed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	svc, _ := newService(t, now)

	// GIVEN: a pending task that ended yesterday
	task, err := svc.CreateTask(ctx, timeline.NewTask{Title: "report", EndDate: date(2024, 1, 10)})
	require.NoError(t, err)

	// WHEN
	report, err := svc.RunReconciliationSweep(ctx, now)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, date(2024, 1, 11), report.Today)
	assert.Equal(t, 1, report.DelayedCount)
	assert.Equal(t, 1, report.TasksChecked)
	got, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, timeline.StatusDelayed, got.Status)
}

func TestSweep_ExtendedTaskReverts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	svc, _ := newService(t, now)

	// GIVEN: a delayed task whose end date was moved to tomorrow
	task, err := svc.CreateTask(ctx, timeline.NewTask{Title: "report", EndDate: date(2024, 1, 10)})
	require.NoError(t, err)
	_, err = svc.RunReconciliationSweep(ctx, now)
	require.NoError(t, err)
	newEnd := date(2024, 1, 12)
	_, err = svc.UpdateTask(ctx, task.ID, timeline.TaskUpdate{EndDate: &newEnd})
	require.NoError(t, err)

	// WHEN
	report, err := svc.RunReconciliationSweep(ctx, now)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 1, report.RevertedCount)
	got, _ := svc.GetTask(ctx, task.ID)
	assert.Equal(t, timeline.StatusPending, got.Status)
}

func TestSweep_Idempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC)
	svc, _ := newService(t, now)

	_, err := svc.CreateTask(ctx, timeline.NewTask{Title: "t", EndDate: date(2024, 3, 1)})
	require.NoError(t, err)
	_, err = svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "monthly",
		Frequency: timeline.Monthly{DayOfMonth: 10},
		Range:     timeline.NewDateRange(date(2024, 1, 1), date(2024, 6, 30)),
	})
	require.NoError(t, err)

	first, err := svc.RunReconciliationSweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 4, first.DelayedCount, "task + Jan, Feb, Mar")

	second, err := svc.RunReconciliationSweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, second.DelayedCount)
	assert.Zero(t, second.RevertedCount)
}

func TestSweep_ScheduleOccurrencesAndAggregate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 2, 20, 8, 0, 0, 0, time.UTC)
	svc, _ := newService(t, now)

	sched, err := svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "monthly",
		Frequency: timeline.Monthly{DayOfMonth: 15},
		Range:     timeline.NewDateRange(date(2024, 1, 1), date(2024, 4, 30)),
	})
	require.NoError(t, err)
	_, err = svc.UpdateOccurrenceStatus(ctx, sched.ID, "2024-01", timeline.StatusCompleted, nil)
	require.NoError(t, err)

	report, err := svc.RunReconciliationSweep(ctx, now)
	require.NoError(t, err)

	// January is completed and left alone, February is overdue.
	assert.Equal(t, 1, report.DelayedCount)
	assert.Equal(t, 1, report.SchedulesChecked)
	got, err := svc.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, timeline.StatusDelayed, got.Status)
	jan, _ := got.Occurrences.Get("2024-01")
	assert.Equal(t, timeline.StatusCompleted, jan.Status)
	feb, _ := got.Occurrences.Get("2024-02")
	assert.Equal(t, timeline.StatusDelayed, feb.Status)
	mar, _ := got.Occurrences.Get("2024-03")
	assert.Equal(t, timeline.StatusPending, mar.Status)
}

func TestSweep_TerminalEntitiesUntouched(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newService(t, now)

	done, err := svc.CreateTask(ctx, timeline.NewTask{Title: "done", EndDate: date(2024, 1, 1), Status: timeline.StatusCompleted})
	require.NoError(t, err)
	cancelled, err := svc.CreateTask(ctx, timeline.NewTask{Title: "dropped", EndDate: date(2024, 1, 1), Status: timeline.StatusCancelled})
	require.NoError(t, err)

	report, err := svc.RunReconciliationSweep(ctx, now)
	require.NoError(t, err)

	assert.Zero(t, report.DelayedCount)
	assert.Zero(t, report.TasksChecked, "terminal tasks are not candidates")
	got, _ := svc.GetTask(ctx, done.ID)
	assert.Equal(t, timeline.StatusCompleted, got.Status)
	got, _ = svc.GetTask(ctx, cancelled.ID)
	assert.Equal(t, timeline.StatusCancelled, got.Status)
}

func TestSweep_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)

	bad, err := svc.CreateTask(ctx, timeline.NewTask{Title: "bad", EndDate: date(2024, 1, 1)})
	require.NoError(t, err)
	good, err := svc.CreateTask(ctx, timeline.NewTask{Title: "good", EndDate: date(2024, 1, 1)})
	require.NoError(t, err)

	// GIVEN: saving the first task fails
	boom := errors.New("disk full")
	mem.FailSave = func(id string) error {
		if id == bad.ID {
			return boom
		}
		return nil
	}

	// WHEN
	report, err := svc.RunReconciliationSweep(ctx, now)

	// THEN: the sweep continues and reports the failure
	require.NoError(t, err)
	assert.Equal(t, 1, report.DelayedCount)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad.ID, report.Failures[0].EntityID)
	assert.Equal(t, timeline.EntityTask, report.Failures[0].Kind)
	assert.ErrorIs(t, report.Failures[0].Err, boom)

	got, _ := svc.GetTask(ctx, good.ID)
	assert.Equal(t, timeline.StatusDelayed, got.Status)
	got, _ = svc.GetTask(ctx, bad.ID)
	assert.Equal(t, timeline.StatusPending, got.Status)
}
