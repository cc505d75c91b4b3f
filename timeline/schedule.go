package timeline

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Schedule (the "timeline" business record) owns a frequency definition, a
// validity range and the status of every occurrence inside it. Status is
// always derived from Occurrences.
type Schedule struct {
	ID          string
	Name        string
	Frequency   Frequency
	Range       DateRange
	Occurrences StatusSet
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Recompute re-derives the aggregate status from the occurrences.
func (s *Schedule) Recompute() {
	s.Status = DeriveAggregateStatus(s.Occurrences)
}

// Progress is the completed share of the schedule's occurrences.
func (s Schedule) Progress() decimal.Decimal {
	return Progress(s.Occurrences)
}

// IsActive reports whether the sweep still has work to consider.
func (s Schedule) IsActive() bool {
	return s.Status != StatusCompleted && s.Status != StatusCancelled
}

// Clone returns a copy that shares no mutable state with s.
func (s Schedule) Clone() Schedule {
	s.Occurrences = s.Occurrences.Clone()
	return s
}

// Task is a single piece of work with an absolute deadline and no
// per-occurrence breakdown.
type Task struct {
	ID        string
	Title     string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the sweep still has work to consider.
func (t Task) IsActive() bool {
	return !t.Status.IsTerminal()
}
