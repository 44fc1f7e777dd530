// Package ext defines the extension system for the dispatch core.
// Extensions are notified of lifecycle events (job enqueued, dispatched,
// completed, dead-lettered, agent health transitions) and can react to
// them — metrics, audit trails, downstream notifications.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is created in the store.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobDispatched is called after a job is assigned to an agent.
type JobDispatched interface {
	OnJobDispatched(ctx context.Context, j *job.Job, a *agent.Agent) error
}

// JobCompleted is called after an agent reports success.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a failed job is requeued with a backoff delay.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRetryAt time.Time) error
}

// JobDeadLettered is called when a job exhausts its retry budget and
// moves to the dead letter queue.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, reason string) error
}

// ──────────────────────────────────────────────────
// Agent lifecycle hooks
// ──────────────────────────────────────────────────

// AgentRegistered is called when a new agent registers for the first time.
type AgentRegistered interface {
	OnAgentRegistered(ctx context.Context, a *agent.Agent) error
}

// AgentUnhealthy is called when a health sweep marks an agent unhealthy,
// with the number of jobs reclaimed from it.
type AgentUnhealthy interface {
	OnAgentUnhealthy(ctx context.Context, a *agent.Agent, jobsReassigned int) error
}

// AgentRecovered is called when an unhealthy agent heartbeats again.
type AgentRecovered interface {
	OnAgentRecovered(ctx context.Context, a *agent.Agent) error
}

// Shutdown is called when the core shuts down.
type Shutdown interface {
	OnShutdown(ctx context.Context)
}
