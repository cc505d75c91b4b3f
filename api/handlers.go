/*
handlers.go - HTTP API handlers for the schedule engine

PURPOSE:
  Exposes the timeline engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to timeline.Service.

ENDPOINTS:
  Schedules:
    GET    /api/schedules                           List all schedules
    POST   /api/schedules                           Create schedule
    GET    /api/schedules/{id}                      Get schedule with statuses
    PUT    /api/schedules/{id}                      Regenerate (edit frequency/range)
    PUT    /api/schedules/{id}/occurrences/{period} Update one period's status
    GET    /api/schedules/{id}/calendar.ics         iCalendar export

  Generation:
    POST   /api/occurrences/preview                 Generate without saving
    GET    /api/financial-year?date=YYYY-MM-DD      Fiscal window for a date

  Tasks:
    GET    /api/tasks                               List all tasks
    POST   /api/tasks                               Create task
    GET    /api/tasks/{id}                          Get task
    PATCH  /api/tasks/{id}                          Update task

  Reconciliation:
    GET    /api/reconciliation/runs                 Sweep history
    POST   /api/reconciliation/run                  Run a sweep now

DEFAULT RANGE:
  A request that omits one of start_date or end_date gets the missing bound
  from the financial year containing the supplied one. Omitting both yields
  the financial year containing "today" (service clock). The Service itself
  never invents a range.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Schedule, task or period not found
  - 422: Frequency produced a duplicate period key
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Reconciliation scheduler
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/timeline-engine/factory"
	"github.com/warp/timeline-engine/ics"
	"github.com/warp/timeline-engine/logx"
	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *timeline.Service
	Runs       timeline.RunStore        // nil disables run history
	Scheduler  *ReconciliationScheduler // nil disables manual runs
	FiscalYear timeline.FinancialYearResolver

	log zerolog.Logger
}

// NewHandler creates a new handler around svc.
func NewHandler(svc *timeline.Service, runs timeline.RunStore, scheduler *ReconciliationScheduler, log zerolog.Logger) *Handler {
	return &Handler{
		Service:   svc,
		Runs:      runs,
		Scheduler: scheduler,
		log:       logx.Component(log, "api"),
	}
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns all schedules without their status collections.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Service.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		dtos[i] = toScheduleDTO(s, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSchedule generates and persists a new schedule.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "name is required", Field: "name"})
		return
	}

	freq, rng, ok := h.frequencyAndRange(w, req.Frequency, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	sched, err := h.Service.CreateSchedule(r.Context(), timeline.NewSchedule{
		Name:      req.Name,
		Frequency: freq,
		Range:     rng,
	})
	if err != nil {
		writeDomainError(w, "Failed to create schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(*sched, true))
}

// GetSchedule returns one schedule with its occurrence statuses.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.Service.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*sched, true))
}

// RegenerateSchedule re-runs generation after a frequency or range edit,
// preserving the status of every period that survives.
func (h *Handler) RegenerateSchedule(w http.ResponseWriter, r *http.Request) {
	var req RegenerateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	freq, rng, ok := h.frequencyAndRange(w, req.Frequency, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	sched, err := h.Service.RegenerateSchedule(r.Context(), chi.URLParam(r, "id"), freq, rng)
	if err != nil {
		writeDomainError(w, "Failed to regenerate schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*sched, true))
}

// UpdateOccurrence sets the status of one period.
func (h *Handler) UpdateOccurrence(w http.ResponseWriter, r *http.Request) {
	var req UpdateOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status, err := timeline.ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid status", Details: err.Error(), Field: "status"})
		return
	}

	sched, err := h.Service.UpdateOccurrenceStatus(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "period"), status, req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to update occurrence", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(*sched, true))
}

// ExportCalendar renders the schedule as text/calendar.
func (h *Handler) ExportCalendar(w http.ResponseWriter, r *http.Request) {
	sched, err := h.Service.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get schedule", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sched.ID+".ics"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Serialize(*sched, h.Service.Now())))
}

// =============================================================================
// GENERATION HANDLERS
// =============================================================================

// PreviewOccurrences runs the generator without persisting anything.
func (h *Handler) PreviewOccurrences(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	freq, rng, ok := h.frequencyAndRange(w, req.Frequency, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	occs, err := timeline.Generate(freq, rng)
	if err != nil {
		writeDomainError(w, "Failed to generate occurrences", err)
		return
	}

	resp := PreviewResponse{
		StartDate:   formatDate(rng.Start),
		EndDate:     formatDate(rng.End),
		Count:       len(occs),
		Occurrences: make([]OccurrenceDTO, len(occs)),
	}
	for i, o := range occs {
		resp.Occurrences[i] = OccurrenceDTO{Period: o.PeriodKey, DueAt: o.DueAt}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFinancialYear returns the fiscal window containing ?date (default today).
func (h *Handler) GetFinancialYear(w http.ResponseWriter, r *http.Request) {
	day := h.Service.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid date", Details: err.Error(), Field: "date"})
			return
		}
		day = d
	}

	fy := h.FiscalYear.Resolve(day)
	writeJSON(w, http.StatusOK, FinancialYearDTO{
		StartDate: formatDate(fy.Start),
		EndDate:   formatDate(fy.End),
		Label:     fy.Label,
	})
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns all tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Service.ListTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTask creates a new task.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "title is required", Field: "title"})
		return
	}

	in := timeline.NewTask{Title: req.Title}
	var err error
	if req.StartDate != "" {
		if in.StartDate, err = parseDate(req.StartDate); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid start date", Details: err.Error(), Field: "start_date"})
			return
		}
	}
	if in.EndDate, err = parseDate(req.EndDate); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid end date", Details: err.Error(), Field: "end_date"})
		return
	}
	if req.Status != "" {
		if in.Status, err = timeline.ParseStatus(req.Status); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid status", Details: err.Error(), Field: "status"})
			return
		}
	}

	task, err := h.Service.CreateTask(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(*task))
}

// GetTask returns one task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get task", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(*task))
}

// UpdateTask applies a partial update.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := timeline.TaskUpdate{Title: req.Title}
	if req.StartDate != nil {
		d, err := parseDate(*req.StartDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid start date", Details: err.Error(), Field: "start_date"})
			return
		}
		upd.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := parseDate(*req.EndDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid end date", Details: err.Error(), Field: "end_date"})
			return
		}
		upd.EndDate = &d
	}
	if req.Status != nil {
		st, err := timeline.ParseStatus(*req.Status)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid status", Details: err.Error(), Field: "status"})
			return
		}
		upd.Status = &st
	}

	task, err := h.Service.UpdateTask(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeDomainError(w, "Failed to update task", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(*task))
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// ListReconciliationRuns returns recent sweep runs, newest first.
// ?limit=N caps the result (default 50).
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid limit", Field: "limit"})
			return
		}
		limit = n
	}

	resp := ReconciliationRunsResponse{Runs: []SweepRunDTO{}}
	if h.Runs != nil {
		runs, err := h.Runs.ListSweepRuns(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list reconciliation runs", err)
			return
		}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, toSweepRunDTO(run))
		}
	}
	if h.Scheduler != nil && h.Scheduler.Enabled {
		if next := h.Scheduler.GetNextRunTime(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerReconciliation runs one sweep synchronously and returns its record.
// A run skipped because another sweep holds the lock answers 409.
func (h *Handler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Reconciliation is not configured"})
		return
	}

	run := h.Scheduler.RunNow(r.Context(), TriggerManual)
	h.log.Info().
		Str("run_id", run.ID).
		Str("status", run.Status).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("manual sweep requested")
	switch run.Status {
	case RunSkipped:
		writeJSON(w, http.StatusConflict, toSweepRunDTO(run))
	case RunFailed:
		writeJSON(w, http.StatusInternalServerError, toSweepRunDTO(run))
	default:
		writeJSON(w, http.StatusOK, toSweepRunDTO(run))
	}
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// frequencyAndRange decodes the frequency and resolves the range, writing a
// 400 and returning ok=false on failure.
func (h *Handler) frequencyAndRange(w http.ResponseWriter, fj factory.FrequencyJSON, startStr, endStr string) (timeline.Frequency, timeline.DateRange, bool) {
	freq, err := factory.FromJSON(fj)
	if err != nil {
		writeDomainError(w, "Invalid frequency", err)
		return nil, timeline.DateRange{}, false
	}
	rng, err := h.resolveRange(startStr, endStr)
	if err != nil {
		writeDomainError(w, "Invalid date range", err)
		return nil, timeline.DateRange{}, false
	}
	return freq, rng, true
}

// resolveRange parses the request bounds. A single missing bound comes from
// the financial year containing the other one; with neither given, the
// range is the current financial year.
func (h *Handler) resolveRange(startStr, endStr string) (timeline.DateRange, error) {
	var rng timeline.DateRange
	var err error
	if startStr != "" {
		if rng.Start, err = parseDate(startStr); err != nil {
			return rng, &timeline.RangeError{Reason: "start_date: " + err.Error()}
		}
	}
	if endStr != "" {
		if rng.End, err = parseDate(endStr); err != nil {
			return rng, &timeline.RangeError{Reason: "end_date: " + err.Error()}
		}
	}
	switch {
	case rng.Start.IsZero() && rng.End.IsZero():
		fy := h.FiscalYear.Resolve(h.Service.Now())
		rng.Start, rng.End = fy.Start, fy.End
	case rng.Start.IsZero():
		rng.Start = h.FiscalYear.Resolve(rng.End).Start
	case rng.End.IsZero():
		rng.End = h.FiscalYear.Resolve(rng.Start).End
	}
	return rng, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return timeline.StartOfDayUTC(t), nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps timeline errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var cfgErr *timeline.FrequencyConfigError
	if errors.As(err, &cfgErr) {
		resp.Field = cfgErr.Field
	}

	switch {
	case errors.Is(err, timeline.ErrDuplicatePeriod):
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case timeline.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, resp)
	case timeline.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}
