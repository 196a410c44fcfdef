// Package server wires the sentinel's HTTP routes.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/estatehub/sentinel/internal/handlers"
	"github.com/estatehub/sentinel/internal/jobs"
	"github.com/estatehub/sentinel/internal/middleware"
)

// Trigger roles allowed to start jobs on demand.
var triggerRoles = []string{"admin", "service"}

// NewRouter constructs a ServeMux with the sentinel routes registered.
func NewRouter(h *handlers.Handler, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.ReadyCheck)
	mux.Handle("/metrics", promhttp.Handler())

	authed := middleware.RequireBearer(validator)
	trigger := middleware.RequireBearer(validator, triggerRoles...)

	mux.Handle("/api/v1/jobs", authed(http.HandlerFunc(h.ListJobs)))
	mux.Handle("/api/v1/jobs/export", handlers.PostOnly(trigger(h.TriggerJob(jobs.NameExport))))
	mux.Handle("/api/v1/jobs/retention", handlers.PostOnly(trigger(h.TriggerJob(jobs.NameRetention))))

	return middleware.RequestID(mux)
}
