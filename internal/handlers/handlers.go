// Package handlers provides the HTTP handlers for the sentinel service.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/estatehub/sentinel/internal/httputil"
	"github.com/estatehub/sentinel/internal/jobs"
	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/middleware"
	"github.com/estatehub/sentinel/internal/objectstore"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a health function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler serves health, readiness and job endpoints.
type Handler struct {
	jobs   map[string]*jobs.Runner
	checks map[string]Pinger
	logger *logging.Logger

	// jobTimeout replaces the server write deadline on job routes; zero
	// clears it.
	jobTimeout time.Duration
}

func NewHandler(logger *logging.Logger) *Handler {
	return &Handler{
		jobs:   make(map[string]*jobs.Runner),
		checks: make(map[string]Pinger),
		logger: logger.With(logging.Component("http")),
	}
}

// WithJob registers a runner for status and on-demand triggering.
func (h *Handler) WithJob(r *jobs.Runner) *Handler {
	h.jobs[r.Name()] = r
	return h
}

// WithJobTimeout sets how long an on-demand job may hold its response open.
func (h *Handler) WithJobTimeout(d time.Duration) *Handler {
	h.jobTimeout = d
	return h
}

// WithReadinessCheck adds a dependency that must answer for /readyz.
func (h *Handler) WithReadinessCheck(name string, p Pinger) *Handler {
	h.checks[name] = p
	return h
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "sentinel",
	})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		h.logger.WarnContext(r.Context(), "Readiness check failed", "checks", failed)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unavailable",
			"service": "sentinel",
			"failed":  failed,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"service": "sentinel",
	})
}

// ListJobs handles GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	out := make([]jobs.Status, 0, len(h.jobs))
	for _, runner := range h.jobs {
		out = append(out, runner.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// TriggerJob returns the handler for POST /api/v1/jobs/{name}. The job runs
// synchronously and its result is returned to the caller.
func (h *Handler) TriggerJob(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runner, ok := h.jobs[name]
		if !ok {
			httputil.WriteError(w, http.StatusNotFound, "job not configured: "+name)
			return
		}

		by := ""
		if c := middleware.GetClaims(r.Context()); c != nil {
			by = c.Subject
		}
		h.logger.InfoContext(r.Context(), "Job triggered", logging.Job(name), "by", by)
		h.extendWriteDeadline(w, r)

		result, err := runner.RunNow(r.Context())
		switch {
		case errors.Is(err, jobs.ErrJobRunning):
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, objectstore.ErrNotConfigured):
			httputil.WriteErrorDetail(w, http.StatusServiceUnavailable, name+" failed", err.Error())
			return
		case err != nil:
			httputil.WriteErrorDetail(w, http.StatusInternalServerError, name+" failed", err.Error())
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"job":    name,
			"status": "completed",
			"result": result,
		})
	}
}

// extendWriteDeadline lifts the server-wide write timeout for this response,
// so a long export still reaches the caller with its handle.
func (h *Handler) extendWriteDeadline(w http.ResponseWriter, r *http.Request) {
	var deadline time.Time
	if h.jobTimeout > 0 {
		deadline = time.Now().Add(h.jobTimeout)
	}
	err := http.NewResponseController(w).SetWriteDeadline(deadline)
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WarnContext(r.Context(), "Failed to extend write deadline", logging.Error(err))
	}
}

// PostOnly rejects every method but POST with 405.
func PostOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		next.ServeHTTP(w, r)
	})
}
