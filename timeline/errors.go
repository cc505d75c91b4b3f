/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All error kinds in one place. Every error here is a value error the
  caller can recover from; none is process-fatal.

ERROR CATEGORIES:
  1. Generation errors   - InvalidRange, DuplicatePeriod, InvalidFrequencyConfig
  2. Status errors       - PeriodNotFound, InvalidStatus
  3. Lookup errors       - ScheduleNotFound, TaskNotFound

USAGE:
  Structured errors unwrap to their sentinel:

    if errors.Is(err, timeline.ErrInvalidFrequencyConfig) {
        var cfgErr *timeline.FrequencyConfigError
        errors.As(err, &cfgErr) // cfgErr.Field names the offending field
    }

SEE ALSO:
  - generator.go: InvalidRange, DuplicatePeriod
  - frequency.go: InvalidFrequencyConfig
  - status.go: PeriodNotFound
  - api/handlers.go: maps these to HTTP statuses
*/
package timeline

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a generator that needs bounds gets an
	// unbounded or inverted range.
	ErrInvalidRange = errors.New("invalid range")

	// ErrDuplicatePeriod is returned when one generation run would emit the
	// same period key twice. Valid configurations never hit this.
	ErrDuplicatePeriod = errors.New("duplicate period")

	// ErrPeriodNotFound is returned when a status update names a period that
	// is not in the schedule's status collection.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrInvalidFrequencyConfig is returned when a frequency definition fails
	// validation (day of month out of 1..31, empty day/month sets, ...).
	ErrInvalidFrequencyConfig = errors.New("invalid frequency config")

	// ErrInvalidStatus is returned for an unknown status or one that is not
	// allowed for the target (occurrences cannot be cancelled).
	ErrInvalidStatus = errors.New("invalid status")

	ErrScheduleNotFound = errors.New("schedule not found")
	ErrTaskNotFound     = errors.New("task not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RangeError explains why a range was rejected.
type RangeError struct {
	Reason string
}

func (e *RangeError) Error() string {
	return "invalid range: " + e.Reason
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// DuplicatePeriodError names the period key produced twice.
type DuplicatePeriodError struct {
	Period string
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("duplicate period %q in one generation run", e.Period)
}

func (e *DuplicatePeriodError) Unwrap() error {
	return ErrDuplicatePeriod
}

// PeriodNotFoundError names the missing period.
type PeriodNotFoundError struct {
	ScheduleID string
	Period     string
}

func (e *PeriodNotFoundError) Error() string {
	if e.ScheduleID == "" {
		return fmt.Sprintf("period %q not found", e.Period)
	}
	return fmt.Sprintf("period %q not found in schedule %s", e.Period, e.ScheduleID)
}

func (e *PeriodNotFoundError) Unwrap() error {
	return ErrPeriodNotFound
}

// FrequencyConfigError is a field-level validation failure. Field uses the
// JSON field name so it can be shown next to the offending input.
type FrequencyConfigError struct {
	Frequency FrequencyType
	Field     string
	Message   string
}

func (e *FrequencyConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s frequency: %s", e.Frequency, e.Message)
	}
	return fmt.Sprintf("%s frequency: %s: %s", e.Frequency, e.Field, e.Message)
}

func (e *FrequencyConfigError) Unwrap() error {
	return ErrInvalidFrequencyConfig
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidFrequencyConfig) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrDuplicatePeriod)
}

// IsNotFound returns true if the error indicates a missing entity or period.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrPeriodNotFound)
}
