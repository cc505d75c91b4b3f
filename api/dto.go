/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Schedule:
    ScheduleDTO, OccurrenceStatusDTO, CreateScheduleRequest,
    RegenerateScheduleRequest, UpdateOccurrenceRequest

  Preview:
    PreviewRequest, PreviewResponse, OccurrenceDTO

  Task:
    TaskDTO, CreateTaskRequest, UpdateTaskRequest

  Reconciliation:
    SweepRunDTO, SweepFailureDTO

DATES:
  Request dates are "YYYY-MM-DD" (RFC3339 also accepted). Missing range
  bounds default to the current financial year.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/frequency.go: FrequencyJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timeline-engine/factory"
	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleDTO represents a schedule in API responses.
type ScheduleDTO struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Frequency   factory.FrequencyJSON `json:"frequency"`
	StartDate   string                `json:"start_date,omitempty"`
	EndDate     string                `json:"end_date,omitempty"`
	Status      string                `json:"status"`
	Progress    decimal.Decimal       `json:"progress"`
	Counts      map[string]int        `json:"counts"`
	Total       int                   `json:"total"`
	Occurrences []OccurrenceStatusDTO `json:"occurrences,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// OccurrenceStatusDTO is one period's status.
type OccurrenceStatusDTO struct {
	Period      string     `json:"period"`
	DueAt       time.Time  `json:"due_at"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// CreateScheduleRequest is the request body for creating a schedule.
type CreateScheduleRequest struct {
	Name      string                `json:"name"`
	Frequency factory.FrequencyJSON `json:"frequency"`
	StartDate string                `json:"start_date,omitempty"`
	EndDate   string                `json:"end_date,omitempty"`
}

// RegenerateScheduleRequest edits a schedule's frequency and/or range.
type RegenerateScheduleRequest struct {
	Frequency factory.FrequencyJSON `json:"frequency"`
	StartDate string                `json:"start_date,omitempty"`
	EndDate   string                `json:"end_date,omitempty"`
}

// UpdateOccurrenceRequest changes one period's status. A missing notes
// field leaves existing notes alone.
type UpdateOccurrenceRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// =============================================================================
// PREVIEW
// =============================================================================

// PreviewRequest runs the generator without persisting anything.
type PreviewRequest struct {
	Frequency factory.FrequencyJSON `json:"frequency"`
	StartDate string                `json:"start_date,omitempty"`
	EndDate   string                `json:"end_date,omitempty"`
}

// OccurrenceDTO is one generated occurrence.
type OccurrenceDTO struct {
	Period string    `json:"period"`
	DueAt  time.Time `json:"due_at"`
}

// PreviewResponse lists the occurrences a frequency implies.
type PreviewResponse struct {
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Count       int             `json:"count"`
	Occurrences []OccurrenceDTO `json:"occurrences"`
}

// FinancialYearDTO is the fiscal window containing a date.
type FinancialYearDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Label     string `json:"label"`
}

// =============================================================================
// TASKS
// =============================================================================

// TaskDTO represents a task in API responses.
type TaskDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartDate string    `json:"start_date,omitempty"`
	EndDate   string    `json:"end_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateTaskRequest is the request body for creating a task.
type CreateTaskRequest struct {
	Title     string `json:"title"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status,omitempty"`
}

// UpdateTaskRequest carries only the fields to change.
type UpdateTaskRequest struct {
	Title     *string `json:"title,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// SweepRunDTO represents one reconciliation cycle.
type SweepRunDTO struct {
	ID               string            `json:"id"`
	Trigger          string            `json:"trigger"`
	Status           string            `json:"status"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	Today            string            `json:"today,omitempty"`
	DelayedCount     int               `json:"delayed_count"`
	RevertedCount    int               `json:"reverted_count"`
	SchedulesChecked int               `json:"schedules_checked"`
	TasksChecked     int               `json:"tasks_checked"`
	Failures         []SweepFailureDTO `json:"failures,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// SweepFailureDTO is one entity the sweep could not reconcile.
type SweepFailureDTO struct {
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// ReconciliationRunsResponse wraps the run history with the next trigger time.
type ReconciliationRunsResponse struct {
	Runs    []SweepRunDTO `json:"runs"`
	NextRun *time.Time    `json:"next_run,omitempty"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func toScheduleDTO(s timeline.Schedule, withOccurrences bool) ScheduleDTO {
	counts := make(map[string]int)
	for st, n := range timeline.CountByStatus(s.Occurrences) {
		counts[string(st)] = n
	}
	dto := ScheduleDTO{
		ID:        s.ID,
		Name:      s.Name,
		Frequency: factory.ToJSON(s.Frequency),
		StartDate: formatDate(s.Range.Start),
		EndDate:   formatDate(s.Range.End),
		Status:    string(s.Status),
		Progress:  s.Progress(),
		Counts:    counts,
		Total:     len(s.Occurrences),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if withOccurrences {
		dto.Occurrences = make([]OccurrenceStatusDTO, len(s.Occurrences))
		for i, st := range s.Occurrences {
			dto.Occurrences[i] = OccurrenceStatusDTO{
				Period:      st.Period,
				DueAt:       st.DueAt,
				Status:      string(st.Status),
				CompletedAt: st.CompletedAt,
				Notes:       st.Notes,
			}
		}
	}
	return dto
}

func toTaskDTO(t timeline.Task) TaskDTO {
	return TaskDTO{
		ID:        t.ID,
		Title:     t.Title,
		StartDate: formatDate(t.StartDate),
		EndDate:   formatDate(t.EndDate),
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func toSweepRunDTO(r timeline.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:               r.ID,
		Trigger:          r.Trigger,
		Status:           r.Status,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Today:            formatDate(r.Report.Today),
		DelayedCount:     r.Report.DelayedCount,
		RevertedCount:    r.Report.RevertedCount,
		SchedulesChecked: r.Report.SchedulesChecked,
		TasksChecked:     r.Report.TasksChecked,
		Error:            r.Error,
	}
	for _, f := range r.Report.Failures {
		fd := SweepFailureDTO{EntityID: f.EntityID, Kind: f.Kind}
		if f.Err != nil {
			fd.Error = f.Err.Error()
		}
		dto.Failures = append(dto.Failures, fd)
	}
	return dto
}
