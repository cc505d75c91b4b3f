package timeline

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of an occurrence, a schedule or a task.
// Occurrences use pending, ongoing, completed and delayed. Tasks may also be
// cancelled.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusDelayed   Status = "delayed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts any known status, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusOngoing, StatusCompleted, StatusDelayed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// IsTerminal reports whether the reconciliation sweep must leave s alone.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsOccurrenceStatus reports whether s is valid for a single occurrence.
func (s Status) IsOccurrenceStatus() bool {
	switch s {
	case StatusPending, StatusOngoing, StatusCompleted, StatusDelayed:
		return true
	}
	return false
}

// =============================================================================
// OCCURRENCE STATUS STORE
// =============================================================================

// OccurrenceStatus tracks completion of one generated period. DueAt is kept
// alongside the status so the sweep can age it without regenerating.
type OccurrenceStatus struct {
	Period      string
	DueAt       time.Time
	Status      Status
	CompletedAt *time.Time
	Notes       string
}

// StatusSet is a schedule's status collection, keyed by Period. Operations
// return new collections and never modify their inputs.
type StatusSet []OccurrenceStatus

// Find returns the index of period, or -1.
func (s StatusSet) Find(period string) int {
	for i := range s {
		if s[i].Period == period {
			return i
		}
	}
	return -1
}

// Get returns the status entry for period.
func (s StatusSet) Get(period string) (OccurrenceStatus, bool) {
	if i := s.Find(period); i >= 0 {
		return s[i], true
	}
	return OccurrenceStatus{}, false
}

// Clone returns a deep copy.
func (s StatusSet) Clone() StatusSet {
	if s == nil {
		return nil
	}
	out := make(StatusSet, len(s))
	for i, st := range s {
		out[i] = st
		if st.CompletedAt != nil {
			t := *st.CompletedAt
			out[i].CompletedAt = &t
		}
	}
	return out
}

// SeedStatuses initialises every generated period to pending.
func SeedStatuses(occs []Occurrence) StatusSet {
	out := make(StatusSet, 0, len(occs))
	for _, o := range occs {
		out = append(out, OccurrenceStatus{
			Period: o.PeriodKey,
			DueAt:  o.DueAt,
			Status: StatusPending,
		})
	}
	return out
}

// MergeStatuses reconciles an existing collection with a fresh one:
//   - periods in both keep their existing status, notes and completedAt
//     (DueAt follows the fresh generation, a config edit may move it)
//   - periods only in fresh are added as given (pending when seeded)
//   - periods only in existing are dropped
//
// The result follows fresh's order. Merging the result with the same fresh
// set again yields the same collection.
func MergeStatuses(existing, fresh StatusSet) StatusSet {
	byPeriod := make(map[string]OccurrenceStatus, len(existing))
	for _, st := range existing {
		byPeriod[st.Period] = st
	}

	out := make(StatusSet, 0, len(fresh))
	for _, f := range fresh {
		if old, ok := byPeriod[f.Period]; ok {
			old.DueAt = f.DueAt
			out = append(out, old)
			continue
		}
		out = append(out, f)
	}
	return out.Clone()
}

// UpdateOccurrenceStatus returns a copy of set with period moved to status.
// Completing stamps CompletedAt with now unless already set; any other status
// clears it. A nil notes leaves the existing notes untouched.
func UpdateOccurrenceStatus(set StatusSet, period string, status Status, notes *string, now time.Time) (StatusSet, error) {
	if !status.IsOccurrenceStatus() {
		return nil, fmt.Errorf("%w: %q is not valid for an occurrence", ErrInvalidStatus, status)
	}
	i := set.Find(period)
	if i < 0 {
		return nil, &PeriodNotFoundError{Period: period}
	}

	out := set.Clone()
	st := &out[i]
	st.Status = status
	if status == StatusCompleted {
		if st.CompletedAt == nil {
			t := now.UTC()
			st.CompletedAt = &t
		}
	} else {
		st.CompletedAt = nil
	}
	if notes != nil {
		st.Notes = *notes
	}
	return out, nil
}
