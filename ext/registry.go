package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobDispatchedEntry struct {
	name string
	hook JobDispatched
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDeadLetteredEntry struct {
	name string
	hook JobDeadLettered
}

type agentRegisteredEntry struct {
	name string
	hook AgentRegistered
}

type agentUnhealthyEntry struct {
	name string
	hook AgentUnhealthy
}

type agentRecoveredEntry struct {
	name string
	hook AgentRecovered
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobEnqueued     []jobEnqueuedEntry
	jobDispatched   []jobDispatchedEntry
	jobCompleted    []jobCompletedEntry
	jobRetrying     []jobRetryingEntry
	jobDeadLettered []jobDeadLetteredEntry
	agentRegistered []agentRegisteredEntry
	agentUnhealthy  []agentUnhealthyEntry
	agentRecovered  []agentRecoveredEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(JobDispatched); ok {
		r.jobDispatched = append(r.jobDispatched, jobDispatchedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := e.(JobDeadLettered); ok {
		r.jobDeadLettered = append(r.jobDeadLettered, jobDeadLetteredEntry{name, h})
	}
	if h, ok := e.(AgentRegistered); ok {
		r.agentRegistered = append(r.agentRegistered, agentRegisteredEntry{name, h})
	}
	if h, ok := e.(AgentUnhealthy); ok {
		r.agentUnhealthy = append(r.agentUnhealthy, agentUnhealthyEntry{name, h})
	}
	if h, ok := e.(AgentRecovered); ok {
		r.agentRecovered = append(r.agentRecovered, agentRecoveredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobDispatched notifies all extensions that implement JobDispatched.
func (r *Registry) EmitJobDispatched(ctx context.Context, j *job.Job, a *agent.Agent) {
	for _, e := range r.jobDispatched {
		if err := e.hook.OnJobDispatched(ctx, j, a); err != nil {
			r.logHookError("OnJobDispatched", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRetryAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRetryAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.Job, reason string) {
	for _, e := range r.jobDeadLettered {
		if err := e.hook.OnJobDeadLettered(ctx, j, reason); err != nil {
			r.logHookError("OnJobDeadLettered", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Agent event emitters
// ──────────────────────────────────────────────────

// EmitAgentRegistered notifies all extensions that implement AgentRegistered.
func (r *Registry) EmitAgentRegistered(ctx context.Context, a *agent.Agent) {
	for _, e := range r.agentRegistered {
		if err := e.hook.OnAgentRegistered(ctx, a); err != nil {
			r.logHookError("OnAgentRegistered", e.name, err)
		}
	}
}

// EmitAgentUnhealthy notifies all extensions that implement AgentUnhealthy.
func (r *Registry) EmitAgentUnhealthy(ctx context.Context, a *agent.Agent, jobsReassigned int) {
	for _, e := range r.agentUnhealthy {
		if err := e.hook.OnAgentUnhealthy(ctx, a, jobsReassigned); err != nil {
			r.logHookError("OnAgentUnhealthy", e.name, err)
		}
	}
}

// EmitAgentRecovered notifies all extensions that implement AgentRecovered.
func (r *Registry) EmitAgentRecovered(ctx context.Context, a *agent.Agent) {
	for _, e := range r.agentRecovered {
		if err := e.hook.OnAgentRecovered(ctx, a); err != nil {
			r.logHookError("OnAgentRecovered", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		e.hook.OnShutdown(ctx)
	}
}

// logHookError records a hook failure without interrupting the caller.
// Extension errors never affect core state transitions.
func (r *Registry) logHookError(hook, name string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", name),
		slog.String("error", err.Error()),
	)
}
