package timeline

import (
	"fmt"
	"time"
)

// =============================================================================
// FREQUENCY DEFINITION - Closed sum type, one variant per frequency
// =============================================================================

// FrequencyType names a Frequency variant. The string values are the ones
// persisted and accepted over JSON.
type FrequencyType string

const (
	FrequencyNone      FrequencyType = "none"
	FrequencyOneTime   FrequencyType = "one_time"
	FrequencyHourly    FrequencyType = "hourly"
	FrequencyDaily     FrequencyType = "daily"
	FrequencyWeekly    FrequencyType = "weekly"
	FrequencyMonthly   FrequencyType = "monthly"
	FrequencyQuarterly FrequencyType = "quarterly"
	FrequencyYearly    FrequencyType = "yearly"
)

// Frequency is an abstract recurrence definition. The set of implementations
// is closed: None, OneTime, Hourly, Daily, Weekly, Monthly, Quarterly, Yearly.
// Each carries only the fields relevant to it.
type Frequency interface {
	Type() FrequencyType
	Validate() error
	frequency()
}

// None has no occurrences.
type None struct{}

// OneTime has exactly one occurrence, at DueDate or, when DueDate is zero,
// at the start of the range.
type OneTime struct {
	DueDate time.Time
}

// Hourly occurs every IntervalHours hours (1..24).
type Hourly struct {
	IntervalHours int
}

// Daily occurs once per calendar day.
type Daily struct {
	At TimeOfDay
}

// Weekly occurs on each selected weekday.
type Weekly struct {
	Days []time.Weekday
	At   TimeOfDay
}

// Monthly occurs once per month on DayOfMonth, clamped to the month's length.
type Monthly struct {
	DayOfMonth int
	At         TimeOfDay
}

// Quarterly occurs in each listed month on DayOfMonth. One month per quarter
// is expected but not enforced; two months in the same quarter produce a
// duplicate period at generation time.
type Quarterly struct {
	Months     []time.Month
	DayOfMonth int
	At         TimeOfDay
}

// Yearly occurs in each listed month on DayOfMonth. Usually one month.
type Yearly struct {
	Months     []time.Month
	DayOfMonth int
	At         TimeOfDay
}

func (None) Type() FrequencyType      { return FrequencyNone }
func (OneTime) Type() FrequencyType   { return FrequencyOneTime }
func (Hourly) Type() FrequencyType    { return FrequencyHourly }
func (Daily) Type() FrequencyType     { return FrequencyDaily }
func (Weekly) Type() FrequencyType    { return FrequencyWeekly }
func (Monthly) Type() FrequencyType   { return FrequencyMonthly }
func (Quarterly) Type() FrequencyType { return FrequencyQuarterly }
func (Yearly) Type() FrequencyType    { return FrequencyYearly }

func (None) frequency()      {}
func (OneTime) frequency()   {}
func (Hourly) frequency()    {}
func (Daily) frequency()     {}
func (Weekly) frequency()    {}
func (Monthly) frequency()   {}
func (Quarterly) frequency() {}
func (Yearly) frequency()    {}

// =============================================================================
// VALIDATION
// =============================================================================

func (None) Validate() error    { return nil }
func (OneTime) Validate() error { return nil }

func (f Hourly) Validate() error {
	if f.IntervalHours < 1 || f.IntervalHours > 24 {
		return configError(f, "interval_hours", fmt.Sprintf("must be between 1 and 24, got %d", f.IntervalHours))
	}
	return nil
}

func (f Daily) Validate() error {
	return validateTimeOfDay(f, f.At)
}

func (f Weekly) Validate() error {
	if len(f.Days) == 0 {
		return configError(f, "days_of_week", "at least one day is required")
	}
	for _, d := range f.Days {
		if d < time.Sunday || d > time.Saturday {
			return configError(f, "days_of_week", fmt.Sprintf("invalid weekday %d", d))
		}
	}
	return validateTimeOfDay(f, f.At)
}

func (f Monthly) Validate() error {
	if err := validateDayOfMonth(f, f.DayOfMonth); err != nil {
		return err
	}
	return validateTimeOfDay(f, f.At)
}

func (f Quarterly) Validate() error {
	return validateMonthSet(f, f.Months, f.DayOfMonth, f.At)
}

func (f Yearly) Validate() error {
	return validateMonthSet(f, f.Months, f.DayOfMonth, f.At)
}

func validateMonthSet(f Frequency, months []time.Month, day int, at TimeOfDay) error {
	if len(months) == 0 {
		return configError(f, "months", "at least one month is required")
	}
	for _, m := range months {
		if m < time.January || m > time.December {
			return configError(f, "months", fmt.Sprintf("invalid month %d", m))
		}
	}
	if err := validateDayOfMonth(f, day); err != nil {
		return err
	}
	return validateTimeOfDay(f, at)
}

func validateDayOfMonth(f Frequency, day int) error {
	if day < 1 || day > 31 {
		return configError(f, "day_of_month", fmt.Sprintf("must be between 1 and 31, got %d", day))
	}
	return nil
}

func validateTimeOfDay(f Frequency, at TimeOfDay) error {
	if err := at.Validate(); err != nil {
		return configError(f, "time_of_day", err.Error())
	}
	return nil
}

func configError(f Frequency, field, msg string) error {
	return &FrequencyConfigError{Frequency: f.Type(), Field: field, Message: msg}
}
