package timeline_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeline-engine/timeline"
)

func monthlySet(t *testing.T, from, to time.Time) timeline.StatusSet {
	t.Helper()
	occs, err := timeline.GenerateOccurrences(timeline.Monthly{DayOfMonth: 15}, from, to)
	require.NoError(t, err)
	return timeline.SeedStatuses(occs)
}

func TestParseStatus(t *testing.T) {
	st, err := timeline.ParseStatus(" Completed ")
	require.NoError(t, err)
	assert.Equal(t, timeline.StatusCompleted, st)

	_, err = timeline.ParseStatus("done")
	assert.ErrorIs(t, err, timeline.ErrInvalidStatus)

	assert.True(t, timeline.StatusCancelled.IsTerminal())
	assert.False(t, timeline.StatusCancelled.IsOccurrenceStatus())
	assert.True(t, timeline.StatusDelayed.IsOccurrenceStatus())
}

func TestSeedStatuses_AllPending(t *testing.T) {
	set := monthlySet(t, date(2024, 1, 1), date(2024, 3, 31))

	require.Len(t, set, 3)
	for _, st := range set {
		assert.Equal(t, timeline.StatusPending, st.Status)
		assert.Nil(t, st.CompletedAt)
		assert.Empty(t, st.Notes)
	}
	assert.Equal(t, date(2024, 2, 15), set[1].DueAt)
}

func TestMergeStatuses(t *testing.T) {
	// GIVEN: Jan..Mar with January completed and February annotated
	existing := monthlySet(t, date(2024, 1, 1), date(2024, 3, 31))
	done := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	existing[0].Status = timeline.StatusCompleted
	existing[0].CompletedAt = &done
	existing[1].Notes = "waiting on bank"

	// WHEN: the range moves to Feb..Apr and the due day changes
	occs, err := timeline.GenerateOccurrences(timeline.Monthly{DayOfMonth: 20}, date(2024, 2, 1), date(2024, 4, 30))
	require.NoError(t, err)
	fresh := timeline.SeedStatuses(occs)
	merged := timeline.MergeStatuses(existing, fresh)

	// THEN: January is dropped, February keeps its notes with the new due
	// date, April is added as pending
	require.Len(t, merged, 3)
	assert.Equal(t, "2024-02", merged[0].Period)
	assert.Equal(t, "waiting on bank", merged[0].Notes)
	assert.Equal(t, date(2024, 2, 20), merged[0].DueAt)
	assert.Equal(t, "2024-04", merged[2].Period)
	assert.Equal(t, timeline.StatusPending, merged[2].Status)

	// AND: merging again with the same fresh set changes nothing
	assert.Equal(t, merged, timeline.MergeStatuses(merged, fresh))

	// AND: inputs are untouched
	assert.Equal(t, "2024-01", existing[0].Period)
	assert.Empty(t, fresh[0].Notes)
}

func TestMergeStatuses_KeepsCompletedAt(t *testing.T) {
	existing := monthlySet(t, date(2024, 1, 1), date(2024, 1, 31))
	done := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	existing[0].Status = timeline.StatusCompleted
	existing[0].CompletedAt = &done

	merged := timeline.MergeStatuses(existing, monthlySet(t, date(2024, 1, 1), date(2024, 1, 31)))

	require.Len(t, merged, 1)
	assert.Equal(t, timeline.StatusCompleted, merged[0].Status)
	require.NotNil(t, merged[0].CompletedAt)
	assert.Equal(t, done, *merged[0].CompletedAt)

	// Deep copy: the pointer is not shared.
	*existing[0].CompletedAt = time.Time{}
	assert.Equal(t, done, *merged[0].CompletedAt)
}

func TestUpdateOccurrenceStatus(t *testing.T) {
	set := monthlySet(t, date(2024, 1, 1), date(2024, 3, 31))
	now := time.Date(2024, 2, 16, 9, 0, 0, 0, time.UTC)
	notes := "paid"

	// WHEN: February is completed with notes
	out, err := timeline.UpdateOccurrenceStatus(set, "2024-02", timeline.StatusCompleted, &notes, now)
	require.NoError(t, err)

	// THEN: it is stamped, and the input is untouched
	feb, ok := out.Get("2024-02")
	require.True(t, ok)
	assert.Equal(t, timeline.StatusCompleted, feb.Status)
	assert.Equal(t, "paid", feb.Notes)
	require.NotNil(t, feb.CompletedAt)
	assert.Equal(t, now, *feb.CompletedAt)
	assert.Equal(t, timeline.StatusPending, set[1].Status)

	// WHEN: completed again later, the original stamp is kept
	again, err := timeline.UpdateOccurrenceStatus(out, "2024-02", timeline.StatusCompleted, nil, now.Add(time.Hour))
	require.NoError(t, err)
	feb, _ = again.Get("2024-02")
	assert.Equal(t, now, *feb.CompletedAt)
	assert.Equal(t, "paid", feb.Notes, "nil notes leaves notes alone")

	// WHEN: reopened, the stamp is cleared
	reopened, err := timeline.UpdateOccurrenceStatus(again, "2024-02", timeline.StatusOngoing, nil, now)
	require.NoError(t, err)
	feb, _ = reopened.Get("2024-02")
	assert.Nil(t, feb.CompletedAt)

	// AND: empty notes clear them
	empty := ""
	cleared, err := timeline.UpdateOccurrenceStatus(reopened, "2024-02", timeline.StatusOngoing, &empty, now)
	require.NoError(t, err)
	feb, _ = cleared.Get("2024-02")
	assert.Empty(t, feb.Notes)
}

func TestUpdateOccurrenceStatus_Errors(t *testing.T) {
	set := monthlySet(t, date(2024, 1, 1), date(2024, 1, 31))

	_, err := timeline.UpdateOccurrenceStatus(set, "2023-12", timeline.StatusCompleted, nil, time.Now())
	var pnf *timeline.PeriodNotFoundError
	require.True(t, errors.As(err, &pnf))
	assert.Equal(t, "2023-12", pnf.Period)
	assert.True(t, timeline.IsNotFound(err))

	_, err = timeline.UpdateOccurrenceStatus(set, "2024-01", timeline.StatusCancelled, nil, time.Now())
	assert.ErrorIs(t, err, timeline.ErrInvalidStatus)
	assert.True(t, timeline.IsClientError(err))
}

// =============================================================================
// AGGREGATE
// =============================================================================

func statuses(ss ...timeline.Status) timeline.StatusSet {
	out := make(timeline.StatusSet, len(ss))
	for i, s := range ss {
		out[i] = timeline.OccurrenceStatus{Period: string(rune('a' + i)), Status: s}
	}
	return out
}

func TestDeriveAggregateStatus(t *testing.T) {
	const (
		p = timeline.StatusPending
		o = timeline.StatusOngoing
		c = timeline.StatusCompleted
		d = timeline.StatusDelayed
	)
	tests := []struct {
		name string
		set  timeline.StatusSet
		want timeline.Status
	}{
		{"empty", nil, p},
		{"all pending", statuses(p, p), p},
		{"delayed wins over ongoing", statuses(o, d, c), d},
		{"ongoing wins over pending", statuses(p, o, c), o},
		{"all completed", statuses(c, c, c), c},
		{"mixed completed and pending", statuses(c, p), p},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timeline.DeriveAggregateStatus(tt.set))
		})
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, "0", timeline.Progress(nil).String())
	assert.Equal(t, "33.33", timeline.Progress(statuses(timeline.StatusCompleted, timeline.StatusPending, timeline.StatusDelayed)).String())
	assert.Equal(t, "66.67", timeline.Progress(statuses(timeline.StatusCompleted, timeline.StatusCompleted, timeline.StatusPending)).String())
	assert.Equal(t, "100", timeline.Progress(statuses(timeline.StatusCompleted)).String())
}

func TestCountByStatus(t *testing.T) {
	counts := timeline.CountByStatus(statuses(timeline.StatusCompleted, timeline.StatusPending, timeline.StatusPending))
	assert.Equal(t, 1, counts[timeline.StatusCompleted])
	assert.Equal(t, 2, counts[timeline.StatusPending])
	assert.Zero(t, counts[timeline.StatusDelayed])
}
