package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeline-engine/timeline"
	"github.com/warp/timeline-engine/timeline/store"
)

func TestMemory_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	sched := timeline.Schedule{
		ID:          "s-1",
		Occurrences: timeline.StatusSet{{Period: "2024-01", Status: timeline.StatusPending}},
	}
	require.NoError(t, mem.SaveSchedule(ctx, sched))

	// Mutating the caller's copy does not reach the store.
	sched.Occurrences[0].Status = timeline.StatusCompleted
	got, err := mem.GetSchedule(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, timeline.StatusPending, got.Occurrences[0].Status)

	// Nor does mutating a read.
	got.Occurrences[0].Status = timeline.StatusDelayed
	again, _ := mem.GetSchedule(ctx, "s-1")
	assert.Equal(t, timeline.StatusPending, again.Occurrences[0].Status)

	_, err = mem.GetSchedule(ctx, "missing")
	assert.ErrorIs(t, err, timeline.ErrScheduleNotFound)
	_, err = mem.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, timeline.ErrTaskNotFound)
}

func TestMemory_ActiveFilters(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, mem.SaveSchedule(ctx, timeline.Schedule{ID: "a", Status: timeline.StatusPending, CreatedAt: t0}))
	require.NoError(t, mem.SaveSchedule(ctx, timeline.Schedule{ID: "b", Status: timeline.StatusCompleted, CreatedAt: t0}))
	require.NoError(t, mem.SaveTask(ctx, timeline.Task{ID: "t1", Status: timeline.StatusDelayed, CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, mem.SaveTask(ctx, timeline.Task{ID: "t2", Status: timeline.StatusCancelled, CreatedAt: t0}))

	active, err := mem.LoadActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	tasks, err := mem.LoadActiveTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)

	all, err := mem.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].ID, "ordered by creation time")
}

func TestMemory_SweepRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, mem.SaveSweepRun(ctx, timeline.SweepRun{ID: id, Status: "running"}))
	}
	require.NoError(t, mem.SaveSweepRun(ctx, timeline.SweepRun{ID: "r2", Status: "completed"}))

	runs, err := mem.ListSweepRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
	assert.Equal(t, "completed", runs[1].Status)
}
