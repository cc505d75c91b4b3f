package timeline

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE RANGE - The validity window of a schedule
// =============================================================================

// DateRange is an inclusive, day-granular window [Start, End]. End counts
// through the last instant of its calendar day. A zero Start or End means
// the bound is missing.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalises both bounds to start of day UTC.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: StartOfDayUTC(start), End: StartOfDayUTC(end)}
}

// IsBounded reports whether both bounds are set.
func (r DateRange) IsBounded() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

// Validate rejects unbounded and inverted ranges.
func (r DateRange) Validate() error {
	if !r.IsBounded() {
		return &RangeError{Reason: "range must have both a start and an end date"}
	}
	if StartOfDayUTC(r.End).Before(StartOfDayUTC(r.Start)) {
		return &RangeError{Reason: fmt.Sprintf("end %s is before start %s",
			r.End.Format(dateLayout), r.Start.Format(dateLayout))}
	}
	return nil
}

// Contains returns true if t falls on a calendar day within [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(StartOfDayUTC(r.Start)) && !t.After(EndOfDayUTC(r.End))
}

// Days returns every calendar day in the range, in order.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	end := StartOfDayUTC(r.End)
	for d := StartOfDayUTC(r.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.Start.Format(dateLayout) + ", " + r.End.Format(dateLayout) + "]"
}

const dateLayout = "2006-01-02"

// =============================================================================
// FINANCIAL YEAR - Default scheduling window
// =============================================================================

// FinancialYear is the fiscal window containing a given day.
//
// Examples (April start):
//   - 2024-06-15 -> 2024-04-01 .. 2025-03-31, "2024-2025"
//   - 2025-02-01 -> 2024-04-01 .. 2025-03-31, "2024-2025"
type FinancialYear struct {
	Start time.Time
	End   time.Time
	Label string
}

// Range returns the financial year as a DateRange.
func (fy FinancialYear) Range() DateRange {
	return DateRange{Start: fy.Start, End: fy.End}
}

// DefaultFiscalYearStart is the month the financial year begins in.
const DefaultFiscalYearStart = time.April

// FinancialYearResolver derives the fiscal window for a day.
type FinancialYearResolver struct {
	// StartMonth is the first month of the fiscal year. Zero means April.
	StartMonth time.Month
}

// FinancialYearFor resolves the April-to-March financial year containing today.
func FinancialYearFor(today time.Time) FinancialYear {
	return FinancialYearResolver{}.Resolve(today)
}

// Resolve returns the financial year containing today.
func (fr FinancialYearResolver) Resolve(today time.Time) FinancialYear {
	startMonth := fr.StartMonth
	if startMonth < time.January || startMonth > time.December {
		startMonth = DefaultFiscalYearStart
	}

	today = StartOfDayUTC(today)
	start := time.Date(today.Year(), startMonth, 1, 0, 0, 0, 0, time.UTC)

	// Before the boundary month we're still in the previous fiscal year.
	if today.Before(start) {
		start = start.AddDate(-1, 0, 0)
	}
	end := start.AddDate(1, 0, -1)

	label := fmt.Sprintf("%d-%d", start.Year(), end.Year())
	if start.Year() == end.Year() {
		label = fmt.Sprintf("%d", start.Year())
	}
	return FinancialYear{Start: start, End: end, Label: label}
}
