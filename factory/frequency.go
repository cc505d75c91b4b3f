/*
Package factory provides JSON to Go frequency conversion.

PURPOSE:
  Converts JSON frequency definitions into timeline.Frequency values and
  back. The same JSON shape is accepted by the HTTP API and persisted by
  the SQLite store, so a schedule's definition round-trips unchanged.

JSON SCHEMA:
  {
    "type": "quarterly",
    "months": ["jan", "apr", "jul", "oct"],
    "day_of_month": 15,
    "time_of_day": "09:00"
  }

  Per type, only the relevant fields are read:
    none        -
    one_time    due_date (YYYY-MM-DD or RFC3339, optional)
    hourly      interval_hours
    daily       time_of_day
    weekly      days_of_week (["mon", "Wednesday", ...]), time_of_day
    monthly     day_of_month, time_of_day
    quarterly   months (["jan", "April", 7, ...]), day_of_month, time_of_day
    yearly      months (["jan", "April", 7, ...]), day_of_month, time_of_day

  Months may be names, abbreviations or numbers 1-12, mixed freely.
  ToJSON always writes lower-case abbreviations.

ERRORS:
  Every parse failure is a *timeline.FrequencyConfigError naming the JSON
  field, so the API can report it next to the offending input.

USAGE:
  freq, err := factory.ParseFrequency(`{"type":"monthly","day_of_month":31}`)
  fj := factory.ToJSON(freq)

SEE ALSO:
  - timeline/frequency.go: variant definitions and validation
  - store/sqlite/sqlite.go: persists FrequencyJSON in the schedules table
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// FrequencyJSON is the JSON representation of a frequency.
type FrequencyJSON struct {
	Type          string    `json:"type"`
	IntervalHours int       `json:"interval_hours,omitempty"`
	TimeOfDay     string    `json:"time_of_day,omitempty"`
	DaysOfWeek    []string  `json:"days_of_week,omitempty"`
	DayOfMonth    int       `json:"day_of_month,omitempty"`
	Months        MonthList `json:"months,omitempty"`
	DueDate       string    `json:"due_date,omitempty"`
}

// MonthList holds month entries as written by the client. Each JSON element
// may be a string ("jan", "April", "3") or a bare number (3).
type MonthList []string

func (l *MonthList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(MonthList, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			// Numbers and anything else are kept verbatim for ParseMonth to judge.
			s = strings.TrimSpace(string(r))
		}
		out = append(out, s)
	}
	*l = out
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// ParseFrequency parses a JSON string into a validated Frequency.
func ParseFrequency(jsonStr string) (timeline.Frequency, error) {
	var fj FrequencyJSON
	if err := json.Unmarshal([]byte(jsonStr), &fj); err != nil {
		return nil, &timeline.FrequencyConfigError{Message: fmt.Sprintf("failed to parse frequency JSON: %v", err)}
	}
	return FromJSON(fj)
}

// FromJSON converts FrequencyJSON to a validated timeline.Frequency.
func FromJSON(fj FrequencyJSON) (timeline.Frequency, error) {
	typ := timeline.FrequencyType(strings.ToLower(strings.TrimSpace(fj.Type)))

	var freq timeline.Frequency
	switch typ {
	case timeline.FrequencyNone, "":
		freq = timeline.None{}

	case timeline.FrequencyOneTime:
		due, err := parseDueDate(fj.DueDate)
		if err != nil {
			return nil, fieldError(typ, "due_date", err.Error())
		}
		freq = timeline.OneTime{DueDate: due}

	case timeline.FrequencyHourly:
		freq = timeline.Hourly{IntervalHours: fj.IntervalHours}

	case timeline.FrequencyDaily:
		at, err := parseAt(typ, fj.TimeOfDay)
		if err != nil {
			return nil, err
		}
		freq = timeline.Daily{At: at}

	case timeline.FrequencyWeekly:
		at, err := parseAt(typ, fj.TimeOfDay)
		if err != nil {
			return nil, err
		}
		days := make([]time.Weekday, 0, len(fj.DaysOfWeek))
		for _, s := range fj.DaysOfWeek {
			d, err := timeline.ParseWeekday(s)
			if err != nil {
				return nil, fieldError(typ, "days_of_week", err.Error())
			}
			days = append(days, d)
		}
		freq = timeline.Weekly{Days: days, At: at}

	case timeline.FrequencyMonthly:
		at, err := parseAt(typ, fj.TimeOfDay)
		if err != nil {
			return nil, err
		}
		freq = timeline.Monthly{DayOfMonth: fj.DayOfMonth, At: at}

	case timeline.FrequencyQuarterly, timeline.FrequencyYearly:
		at, err := parseAt(typ, fj.TimeOfDay)
		if err != nil {
			return nil, err
		}
		months := make([]time.Month, 0, len(fj.Months))
		for _, s := range fj.Months {
			m, err := timeline.ParseMonth(s)
			if err != nil {
				return nil, fieldError(typ, "months", err.Error())
			}
			months = append(months, m)
		}
		if typ == timeline.FrequencyQuarterly {
			freq = timeline.Quarterly{Months: months, DayOfMonth: fj.DayOfMonth, At: at}
		} else {
			freq = timeline.Yearly{Months: months, DayOfMonth: fj.DayOfMonth, At: at}
		}

	default:
		return nil, fieldError(typ, "type", fmt.Sprintf("unknown frequency type %q", fj.Type))
	}

	if err := freq.Validate(); err != nil {
		return nil, err
	}
	return freq, nil
}

// ToJSON converts a Frequency to FrequencyJSON. A nil frequency is "none".
func ToJSON(freq timeline.Frequency) FrequencyJSON {
	switch f := freq.(type) {
	case timeline.OneTime:
		fj := FrequencyJSON{Type: string(timeline.FrequencyOneTime)}
		if !f.DueDate.IsZero() {
			fj.DueDate = f.DueDate.UTC().Format(time.RFC3339)
		}
		return fj
	case timeline.Hourly:
		return FrequencyJSON{Type: string(timeline.FrequencyHourly), IntervalHours: f.IntervalHours}
	case timeline.Daily:
		return FrequencyJSON{Type: string(timeline.FrequencyDaily), TimeOfDay: f.At.String()}
	case timeline.Weekly:
		days := make([]string, 0, len(f.Days))
		for _, d := range f.Days {
			days = append(days, strings.ToLower(timeline.WeekdayAbbrev(d)))
		}
		return FrequencyJSON{Type: string(timeline.FrequencyWeekly), DaysOfWeek: days, TimeOfDay: f.At.String()}
	case timeline.Monthly:
		return FrequencyJSON{Type: string(timeline.FrequencyMonthly), DayOfMonth: f.DayOfMonth, TimeOfDay: f.At.String()}
	case timeline.Quarterly:
		return FrequencyJSON{Type: string(timeline.FrequencyQuarterly), Months: monthNames(f.Months), DayOfMonth: f.DayOfMonth, TimeOfDay: f.At.String()}
	case timeline.Yearly:
		return FrequencyJSON{Type: string(timeline.FrequencyYearly), Months: monthNames(f.Months), DayOfMonth: f.DayOfMonth, TimeOfDay: f.At.String()}
	default:
		return FrequencyJSON{Type: string(timeline.FrequencyNone)}
	}
}

// Marshal encodes freq as its JSON document.
func Marshal(freq timeline.Frequency) ([]byte, error) {
	return json.Marshal(ToJSON(freq))
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAt(typ timeline.FrequencyType, s string) (timeline.TimeOfDay, error) {
	at, err := timeline.ParseTimeOfDay(s)
	if err != nil {
		return timeline.TimeOfDay{}, fieldError(typ, "time_of_day", err.Error())
	}
	return at, nil
}

func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("due date %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t.UTC(), nil
}

func monthNames(months []time.Month) MonthList {
	out := make(MonthList, 0, len(months))
	for _, m := range months {
		out = append(out, strings.ToLower(m.String()[:3]))
	}
	return out
}

func fieldError(typ timeline.FrequencyType, field, msg string) error {
	return &timeline.FrequencyConfigError{Frequency: typ, Field: field, Message: msg}
}
