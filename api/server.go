/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Access log: One zerolog line per request (method, path, status,
                 size, duration, request_id)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/schedules/*       Schedule management and status updates
  /api/occurrences/*     Generation preview
  /api/financial-year    Default range lookup
  /api/tasks/*           Task management
  /api/reconciliation/*  Sweep history and manual runs
  /                      API index page

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// DefaultAllowedOrigins are used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(h.log))
	r.Use(hlog.AccessHandler(logRequest))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Put("/{id}", h.RegenerateSchedule)
			r.Put("/{id}/occurrences/{period}", h.UpdateOccurrence)
			r.Get("/{id}/calendar.ics", h.ExportCalendar)
		})

		r.Post("/occurrences/preview", h.PreviewOccurrences)
		r.Get("/financial-year", h.GetFinancialYear)

		// Task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Get("/{id}", h.GetTask)
			r.Patch("/{id}", h.UpdateTask)
		})

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/runs", h.ListReconciliationRuns)
			r.Post("/run", h.TriggerReconciliation)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Timeline Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Timeline Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/schedules">/api/schedules</a> - List schedules</li>
<li><a href="/api/tasks">/api/tasks</a> - List tasks</li>
<li><a href="/api/financial-year">/api/financial-year</a> - Current financial year</li>
<li><a href="/api/reconciliation/runs">/api/reconciliation/runs</a> - Sweep history</li>
</ul>
</body>
</html>`))
	})

	return r
}

func logRequest(r *http.Request, status, size int, took time.Duration) {
	var ev *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		ev = hlog.FromRequest(r).Error()
	case status >= http.StatusBadRequest:
		ev = hlog.FromRequest(r).Warn()
	default:
		ev = hlog.FromRequest(r).Info()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("took", took).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request")
}
