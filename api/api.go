// Package api exposes the dispatch engine over HTTP: agent
// registration and heartbeats, job submission and completion reports,
// health sweeps, and the DLQ operator surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/muhammadiwa/youtube-automation-sub005/engine"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// API wires all HTTP handlers for the dispatch system.
type API struct {
	eng *engine.Engine
}

// New creates an API from a dispatch Engine.
func New(eng *engine.Engine) *API {
	return &API{eng: eng}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts all dispatch API routes on the given router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		// Agents
		r.Post("/agents/register", a.registerAgent)
		r.Post("/agents/{agentID}/heartbeat", a.heartbeat)
		r.Get("/agents", a.listAgents)
		r.Get("/agents/{agentID}", a.getAgent)

		// Jobs
		r.Post("/jobs", a.createJob)
		r.Get("/jobs", a.listJobs)
		r.Get("/jobs/{jobID}", a.getJob)
		r.Post("/jobs/{jobID}/dispatch", a.dispatchJob)
		r.Post("/jobs/{jobID}/complete", a.completeJob)

		// Workflows
		r.Post("/workflows", a.createWorkflow)

		// Health
		r.Post("/health/sweep", a.healthSweep)

		// Dead letter queue
		r.Get("/dlq/jobs", a.listDeadLetterJobs)
		r.Get("/dlq/alerts", a.listAlerts)
		r.Post("/dlq/alerts/{alertID}/ack", a.acknowledgeAlert)
		r.Post("/dlq/alerts/process", a.processAlerts)
		r.Post("/dlq/requeue", a.requeueJobs)

		// Stats
		r.Get("/stats", a.stats)
	})

	r.Get("/healthz", a.healthz)
}
