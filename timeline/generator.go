/*
generator.go - Occurrence generation

PURPOSE:
  Turns a Frequency definition and a date range into the concrete,
  ordered list of occurrences the definition implies. Pure function:
  no clock, no storage, safe for any number of concurrent callers.

PERIOD KEYS:
  Each occurrence carries a canonical period key. Keys are stable across
  regenerations, which is what lets MergeStatuses keep existing statuses.

    Hourly     2024-01-01-09      (date + hour)
    Daily      2024-01-01
    Weekly     2024-W01-Mon       (ISO week + weekday)
    Monthly    2024-01
    Quarterly  2024-Q1
    Yearly     2024-January
    OneTime    2024-01-01         (due date)

ALGORITHM:
  Hourly, Daily and Weekly are plain RRULE recurrences (HOURLY+INTERVAL,
  DAILY, WEEKLY+BYDAY) expanded with rrule-go. Monthly, Quarterly and
  Yearly need day-of-month clamping (31 -> Feb 29), which RRULE does not
  express (BYMONTHDAY=31 skips short months), so those walk the calendar
  directly via ClampDay.

INVARIANTS:
  - Output is chronological.
  - No two occurrences share a period key; a collision fails the whole
    run with DuplicatePeriodError instead of dropping one.
  - Every DueAt is inside the range (OneTime: exactly the due date).

SEE ALSO:
  - frequency.go: variant definitions and validation
  - status.go: seeding and merging statuses for generated periods
*/
package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// MaxOccurrences caps one generation run. Larger ranges are rejected.
const MaxOccurrences = 100000

// Occurrence is one concrete scheduled instant.
type Occurrence struct {
	PeriodKey string
	DueAt     time.Time
}

// GenerateOccurrences enumerates the occurrences freq implies within
// [rangeStart, rangeEnd]. Range bounds are calendar dates: rangeEnd counts
// through the end of its day.
func GenerateOccurrences(freq Frequency, rangeStart, rangeEnd time.Time) ([]Occurrence, error) {
	if freq == nil {
		return nil, &FrequencyConfigError{Message: "frequency is required"}
	}
	if err := freq.Validate(); err != nil {
		return nil, err
	}

	switch f := freq.(type) {
	case None:
		return []Occurrence{}, nil
	case OneTime:
		return generateOneTime(f, rangeStart)
	}

	rng := DateRange{Start: rangeStart.UTC(), End: rangeEnd.UTC()}
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	var (
		occs []Occurrence
		err  error
	)
	switch f := freq.(type) {
	case Hourly:
		occs, err = generateHourly(f, rng)
	case Daily:
		occs, err = generateDaily(f, rng)
	case Weekly:
		occs, err = generateWeekly(f, rng)
	case Monthly:
		occs = generateMonthly(f, rng)
	case Quarterly:
		occs = generateMonthSet(f.Months, f.DayOfMonth, f.At, rng, quarterKey)
	case Yearly:
		occs = generateMonthSet(f.Months, f.DayOfMonth, f.At, rng, yearlyKey)
	default:
		return nil, &FrequencyConfigError{Frequency: freq.Type(), Message: "unsupported frequency"}
	}
	if err != nil {
		return nil, err
	}

	return finalize(occs)
}

// Generate is GenerateOccurrences over a DateRange.
func Generate(freq Frequency, rng DateRange) ([]Occurrence, error) {
	return GenerateOccurrences(freq, rng.Start, rng.End)
}

// =============================================================================
// PER-VARIANT GENERATORS
// =============================================================================

func generateOneTime(f OneTime, rangeStart time.Time) ([]Occurrence, error) {
	due := f.DueDate
	if due.IsZero() {
		due = rangeStart
	}
	if due.IsZero() {
		return nil, &RangeError{Reason: "one-time frequency needs a due date or a range start"}
	}
	due = due.UTC()
	return []Occurrence{{PeriodKey: due.Format(dateLayout), DueAt: due}}, nil
}

func generateHourly(f Hourly, rng DateRange) ([]Occurrence, error) {
	start := rng.Start.Truncate(time.Hour)
	return expandRule(rrule.ROption{
		Freq:     rrule.HOURLY,
		Interval: f.IntervalHours,
		Dtstart:  start,
		Until:    EndOfDayUTC(rng.End),
	}, rng, hourlyKey)
}

func generateDaily(f Daily, rng DateRange) ([]Occurrence, error) {
	return expandRule(rrule.ROption{
		Freq:     rrule.DAILY,
		Interval: 1,
		Dtstart:  f.At.On(rng.Start),
		Until:    f.At.On(rng.End),
	}, rng, dailyKey)
}

func generateWeekly(f Weekly, rng DateRange) ([]Occurrence, error) {
	days := make([]rrule.Weekday, 0, len(f.Days))
	for _, d := range f.Days {
		days = append(days, toRRuleWeekday(d))
	}
	return expandRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  1,
		Wkst:      rrule.MO,
		Byweekday: days,
		Dtstart:   f.At.On(rng.Start),
		Until:     f.At.On(rng.End),
	}, rng, weeklyKey)
}

func generateMonthly(f Monthly, rng DateRange) []Occurrence {
	var occs []Occurrence
	start := StartOfDayUTC(rng.Start)
	end := StartOfDayUTC(rng.End)

	cursor := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for ; !cursor.After(last); cursor = cursor.AddDate(0, 1, 0) {
		due := dueOn(cursor.Year(), cursor.Month(), f.DayOfMonth, f.At)
		if !rng.Contains(due) {
			continue
		}
		occs = append(occs, Occurrence{PeriodKey: due.Format("2006-01"), DueAt: due})
	}
	return occs
}

func generateMonthSet(months []time.Month, day int, at TimeOfDay, rng DateRange, key func(time.Time) string) []Occurrence {
	sorted := append([]time.Month(nil), months...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var occs []Occurrence
	for year := rng.Start.Year(); year <= rng.End.Year(); year++ {
		for _, m := range sorted {
			due := dueOn(year, m, day, at)
			if !rng.Contains(due) {
				continue
			}
			occs = append(occs, Occurrence{PeriodKey: key(due), DueAt: due})
		}
	}
	return occs
}

// =============================================================================
// HELPERS
// =============================================================================

func expandRule(opt rrule.ROption, rng DateRange, key func(time.Time) string) ([]Occurrence, error) {
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}

	var occs []Occurrence
	next := rule.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		t = t.UTC()
		if !rng.Contains(t) {
			continue
		}
		if len(occs) >= MaxOccurrences {
			return nil, &RangeError{Reason: fmt.Sprintf("range yields more than %d occurrences", MaxOccurrences)}
		}
		occs = append(occs, Occurrence{PeriodKey: key(t), DueAt: t})
	}
	return occs, nil
}

// finalize enforces ordering and key uniqueness.
func finalize(occs []Occurrence) ([]Occurrence, error) {
	if len(occs) > MaxOccurrences {
		return nil, &RangeError{Reason: fmt.Sprintf("range yields more than %d occurrences", MaxOccurrences)}
	}
	sort.SliceStable(occs, func(i, j int) bool { return occs[i].DueAt.Before(occs[j].DueAt) })

	seen := make(map[string]struct{}, len(occs))
	for _, o := range occs {
		if _, dup := seen[o.PeriodKey]; dup {
			return nil, &DuplicatePeriodError{Period: o.PeriodKey}
		}
		seen[o.PeriodKey] = struct{}{}
	}
	if occs == nil {
		occs = []Occurrence{}
	}
	return occs, nil
}

func dueOn(year int, month time.Month, day int, at TimeOfDay) time.Time {
	return time.Date(year, month, ClampDay(year, month, day), at.Hour, at.Minute, 0, 0, time.UTC)
}

func hourlyKey(t time.Time) string { return t.Format("2006-01-02-15") }
func dailyKey(t time.Time) string  { return t.Format(dateLayout) }

func weeklyKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d-%s", year, week, WeekdayAbbrev(t.Weekday()))
}

func quarterKey(t time.Time) string {
	return fmt.Sprintf("%04d-Q%d", t.Year(), QuarterOf(t.Month()))
}

func yearlyKey(t time.Time) string {
	return fmt.Sprintf("%04d-%s", t.Year(), t.Month())
}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
