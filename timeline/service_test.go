package timeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeline-engine/timeline"
)

func TestCreateSchedule(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)

	sched, err := svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "  Board pack  ",
		Frequency: timeline.Quarterly{Months: []time.Month{time.March, time.June, time.September, time.December}, DayOfMonth: 31},
		Range:     timeline.NewDateRange(date(2024, 1, 1), date(2024, 12, 31)),
	})
	require.NoError(t, err)

	assert.Equal(t, "id-1", sched.ID)
	assert.Equal(t, "Board pack", sched.Name)
	assert.Equal(t, timeline.StatusPending, sched.Status)
	assert.Equal(t, now, sched.CreatedAt)
	require.Len(t, sched.Occurrences, 4)
	assert.Equal(t, "2024-Q2", sched.Occurrences[1].Period)
	assert.Equal(t, date(2024, 6, 30), sched.Occurrences[1].DueAt)

	stored, err := mem.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, sched.Occurrences, stored.Occurrences)
}

func TestCreateSchedule_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t, time.Now())

	_, err := svc.CreateSchedule(ctx, timeline.NewSchedule{Name: "x", Frequency: timeline.Monthly{DayOfMonth: 0}, Range: timeline.NewDateRange(date(2024, 1, 1), date(2024, 2, 1))})
	assert.ErrorIs(t, err, timeline.ErrInvalidFrequencyConfig)

	_, err = svc.CreateSchedule(ctx, timeline.NewSchedule{Name: "x", Frequency: timeline.Daily{}})
	assert.ErrorIs(t, err, timeline.ErrInvalidRange)

	list, _ := mem.ListSchedules(ctx)
	assert.Empty(t, list, "nothing saved on failure")
}

func TestCreateSchedule_NoneHasNoOccurrences(t *testing.T) {
	svc, _ := newService(t, time.Now())

	sched, err := svc.CreateSchedule(context.Background(), timeline.NewSchedule{Name: "ad hoc", Frequency: timeline.None{}})
	require.NoError(t, err)
	assert.Empty(t, sched.Occurrences)
	assert.Equal(t, timeline.StatusPending, sched.Status)
}

func TestRegenerateSchedule_PreservesStatuses(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	// GIVEN: daily schedule over 5 days, day 2 completed, day 3 ongoing
	sched, err := svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "standup",
		Frequency: timeline.Daily{At: nine},
		Range:     timeline.NewDateRange(date(2024, 1, 1), date(2024, 1, 5)),
	})
	require.NoError(t, err)
	_, err = svc.UpdateOccurrenceStatus(ctx, sched.ID, "2024-01-02", timeline.StatusCompleted, nil)
	require.NoError(t, err)
	_, err = svc.UpdateOccurrenceStatus(ctx, sched.ID, "2024-01-03", timeline.StatusOngoing, nil)
	require.NoError(t, err)

	// WHEN: the range shifts to Jan 3..7
	regen, err := svc.RegenerateSchedule(ctx, sched.ID, timeline.Daily{At: nine}, timeline.NewDateRange(date(2024, 1, 3), date(2024, 1, 7)))
	require.NoError(t, err)

	// THEN: Jan 3 keeps ongoing, Jan 2 is gone, new days are pending
	require.Len(t, regen.Occurrences, 5)
	assert.Equal(t, "2024-01-03", regen.Occurrences[0].Period)
	assert.Equal(t, timeline.StatusOngoing, regen.Occurrences[0].Status)
	_, ok := regen.Occurrences.Get("2024-01-02")
	assert.False(t, ok)
	assert.Equal(t, timeline.StatusPending, regen.Occurrences[4].Status)
	assert.Equal(t, timeline.StatusOngoing, regen.Status)

	_, err = svc.RegenerateSchedule(ctx, "missing", timeline.Daily{}, timeline.NewDateRange(date(2024, 1, 1), date(2024, 1, 2)))
	assert.ErrorIs(t, err, timeline.ErrScheduleNotFound)
}

func TestUpdateOccurrenceStatus_AllCompleted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	sched, err := svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "once",
		Frequency: timeline.OneTime{DueDate: date(2024, 1, 15)},
	})
	require.NoError(t, err)
	require.Len(t, sched.Occurrences, 1)

	updated, err := svc.UpdateOccurrenceStatus(ctx, sched.ID, sched.Occurrences[0].Period, timeline.StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, timeline.StatusCompleted, updated.Status)
	assert.Equal(t, "100", updated.Progress().String())
}

func TestUpdateOccurrenceStatus_PeriodNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, time.Now())

	sched, err := svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "m",
		Frequency: timeline.Monthly{DayOfMonth: 1},
		Range:     timeline.NewDateRange(date(2024, 1, 1), date(2024, 2, 28)),
	})
	require.NoError(t, err)

	_, err = svc.UpdateOccurrenceStatus(ctx, sched.ID, "2024-05", timeline.StatusCompleted, nil)
	var pnf *timeline.PeriodNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, sched.ID, pnf.ScheduleID)
}

func TestUpdateOccurrenceStatus_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	sched, err := svc.CreateSchedule(ctx, timeline.NewSchedule{
		Name:      "daily",
		Frequency: timeline.Daily{},
		Range:     timeline.NewDateRange(date(2024, 1, 1), date(2024, 1, 31)),
	})
	require.NoError(t, err)

	// WHEN: every period is completed from its own goroutine
	var wg sync.WaitGroup
	for _, occ := range sched.Occurrences {
		wg.Add(1)
		go func(period string) {
			defer wg.Done()
			_, err := svc.UpdateOccurrenceStatus(ctx, sched.ID, period, timeline.StatusCompleted, nil)
			assert.NoError(t, err)
		}(occ.Period)
	}
	wg.Wait()

	// THEN: every write landed
	got, err := svc.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, timeline.CountByStatus(got.Occurrences)[timeline.StatusCompleted])
	assert.Equal(t, timeline.StatusCompleted, got.Status)
}

// =============================================================================
// TASKS
// =============================================================================

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, time.Now())

	task, err := svc.CreateTask(ctx, timeline.NewTask{Title: " audit ", StartDate: date(2024, 1, 1), EndDate: date(2024, 1, 31)})
	require.NoError(t, err)
	assert.Equal(t, "audit", task.Title)
	assert.Equal(t, timeline.StatusPending, task.Status)

	_, err = svc.CreateTask(ctx, timeline.NewTask{Title: "no end"})
	assert.ErrorIs(t, err, timeline.ErrInvalidRange)

	_, err = svc.CreateTask(ctx, timeline.NewTask{Title: "backwards", StartDate: date(2024, 2, 1), EndDate: date(2024, 1, 1)})
	assert.ErrorIs(t, err, timeline.ErrInvalidRange)

	_, err = svc.CreateTask(ctx, timeline.NewTask{Title: "odd", EndDate: date(2024, 1, 1), Status: "paused"})
	assert.ErrorIs(t, err, timeline.ErrInvalidStatus)
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newService(t, created)

	task, err := svc.CreateTask(ctx, timeline.NewTask{Title: "audit", EndDate: date(2024, 1, 31)})
	require.NoError(t, err)

	title := "external audit"
	cancelled := timeline.StatusCancelled
	updated, err := svc.UpdateTask(ctx, task.ID, timeline.TaskUpdate{Title: &title, Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, "external audit", updated.Title)
	assert.Equal(t, timeline.StatusCancelled, updated.Status)
	assert.Equal(t, date(2024, 1, 31), updated.EndDate, "untouched fields are kept")

	start := date(2024, 2, 15)
	_, err = svc.UpdateTask(ctx, task.ID, timeline.TaskUpdate{StartDate: &start})
	assert.ErrorIs(t, err, timeline.ErrInvalidRange, "start after end")

	_, err = svc.UpdateTask(ctx, "missing", timeline.TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, timeline.ErrTaskNotFound)
}

// =============================================================================
// LOCKS
// =============================================================================

func TestEntityLocks_SerialisesSameID(t *testing.T) {
	locks := timeline.NewEntityLocks()

	unlock := locks.Lock("a")
	acquired := make(chan struct{})
	go func() {
		u := locks.Lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same id must wait")
	case <-time.After(50 * time.Millisecond):
	}

	// A different id is not blocked.
	unlockB := locks.Lock("b")
	unlockB()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestEntityLocks_ReusableAfterUnlock(t *testing.T) {
	locks := timeline.NewEntityLocks()

	locks.Lock("a")()

	done := make(chan struct{})
	go func() {
		locks.Lock("a")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("released id could not be locked again")
	}
}
