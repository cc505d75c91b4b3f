package timeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// CALENDAR PRIMITIVES - Day-granular arithmetic (all dates are UTC)
// =============================================================================

var daysInMonth = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DaysInMonth returns the number of days in the given month, accounting for
// leap years. Out-of-range months roll over the way time.Date does.
func DaysInMonth(year int, month time.Month) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	year, month = first.Year(), first.Month()
	if month == time.February && IsLeapYear(year) {
		return 29
	}
	return daysInMonth[month-1]
}

// IsLeapYear reports whether February of year has 29 days.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ClampDay returns min(day, DaysInMonth(year, month)). A day of 31 in
// February yields 28 or 29, never a date in March.
func ClampDay(year int, month time.Month, day int) int {
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}

// StartOfDayUTC returns 00:00:00.000 UTC of t's calendar date.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDayUTC returns the last representable instant of t's calendar date.
func EndOfDayUTC(t time.Time) time.Time {
	return StartOfDayUTC(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// QuarterOf returns the calendar quarter (1-4) containing month.
func QuarterOf(month time.Month) int {
	return (int(month)-1)/3 + 1
}

// =============================================================================
// NAME RESOLUTION
// =============================================================================

// ParseWeekday resolves "mon", "Monday", "MON" etc. to a time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if key == name || key == name[:3] {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// WeekdayAbbrev returns the three-letter English abbreviation ("Mon").
func WeekdayAbbrev(d time.Weekday) string {
	return d.String()[:3]
}

// ParseMonth resolves "jan", "January", "1" etc. to a time.Month.
func ParseMonth(s string) (time.Month, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(key); err == nil {
		if n >= 1 && n <= 12 {
			return time.Month(n), nil
		}
		return 0, fmt.Errorf("month %d out of range 1..12", n)
	}
	if len(key) >= 3 {
		for m := time.January; m <= time.December; m++ {
			name := strings.ToLower(m.String())
			if key == name || key == name[:3] {
				return m, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown month %q", s)
}

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is a wall-clock time attached to day-granular occurrences.
// The zero value is midnight.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h). An empty string is midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("time of day %02d:%02d out of range", t.Hour, t.Minute)
	}
	return nil
}

// On returns the instant at this time of day on day's UTC calendar date.
func (t TimeOfDay) On(day time.Time) time.Time {
	d := StartOfDayUTC(day)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
