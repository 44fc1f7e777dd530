// Package dispatcher assigns queued jobs to agents. Selection is
// load-based: the least-loaded healthy agent with spare capacity wins.
// A dispatch that finds no eligible agent is a deferred outcome, not an
// error — the job stays queued for a later attempt.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/ext"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
	"github.com/muhammadiwa/youtube-automation-sub005/throttle"
)

// Outcome describes how a dispatch attempt resolved.
type Outcome string

const (
	// OutcomeDispatched means the job was assigned to an agent.
	OutcomeDispatched Outcome = "dispatched"
	// OutcomeDeferred means the job stays queued for a later attempt.
	OutcomeDeferred Outcome = "deferred"
)

// DeferReason explains a deferred outcome.
type DeferReason string

const (
	// DeferNoAgent means no healthy agent had spare capacity.
	DeferNoAgent DeferReason = "no_available_agent"
	// DeferThrottled means the job type hit its dispatch limits.
	DeferThrottled DeferReason = "throttled"
	// DeferScheduled means the job's scheduled or retry time has not
	// yet arrived.
	DeferScheduled DeferReason = "scheduled"
	// DeferBlocked means the job waits on its parent in a workflow.
	DeferBlocked DeferReason = "blocked"
)

// Result is the outcome of a dispatch attempt.
type Result struct {
	Outcome Outcome      `json:"outcome"`
	Reason  DeferReason  `json:"reason,omitempty"`
	Job     *job.Job     `json:"job,omitempty"`
	Agent   *agent.Agent `json:"agent,omitempty"`
}

// Dispatcher creates jobs and assigns them to agents.
type Dispatcher struct {
	agents             agent.Store
	jobs               job.Store
	limiter            *throttle.Limiter
	exts               *ext.Registry
	clock              clock.Clock
	logger             *slog.Logger
	defaultMaxAttempts int
}

// New creates a Dispatcher.
func New(agents agent.Store, jobs job.Store, limiter *throttle.Limiter, exts *ext.Registry, clk clock.Clock, logger *slog.Logger, defaultMaxAttempts int) *Dispatcher {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = dispatch.DefaultConfig().DefaultMaxAttempts
	}
	return &Dispatcher{
		agents:             agents,
		jobs:               jobs,
		limiter:            limiter,
		exts:               exts,
		clock:              clk,
		logger:             logger,
		defaultMaxAttempts: defaultMaxAttempts,
	}
}

// Enqueue creates a new job. Jobs with a parent start blocked and are
// released when the parent completes; everything else starts queued.
func (d *Dispatcher) Enqueue(ctx context.Context, jobType string, payload map[string]any, opts ...job.Option) (*job.Job, error) {
	if jobType == "" {
		return nil, fmt.Errorf("dispatcher: empty job type: %w", dispatch.ErrInvalidState)
	}

	var o job.Options
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := o.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = d.defaultMaxAttempts
	}

	now := d.clock.Now().UTC()
	j := &job.Job{
		Entity:      dispatch.NewEntityAt(now),
		ID:          id.NewJobID(),
		Type:        jobType,
		Payload:     payload,
		Priority:    o.Priority,
		Status:      job.StatusQueued,
		MaxAttempts: maxAttempts,
		AgentType:   o.AgentType,
		WorkflowID:  o.WorkflowID,
		NextJobID:   o.NextJobID,
		ParentJobID: o.ParentJobID,
	}
	if !o.ParentJobID.IsNil() {
		j.Status = job.StatusBlocked
	}
	if !o.ScheduledAt.IsZero() {
		at := o.ScheduledAt.UTC()
		j.ScheduledAt = &at
	}

	if err := d.jobs.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("dispatcher: enqueue %s job: %w", jobType, err)
	}

	d.logger.Info("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("status", string(j.Status)),
		slog.Int("priority", j.Priority),
	)
	d.exts.EmitJobEnqueued(ctx, j)
	return j, nil
}

// SelectAgent picks the best agent for a job: healthy, under capacity,
// matching the required type when one is set, lowest current load.
// Ties break by earliest last heartbeat, then agent ID, so selection
// is deterministic. Returns nil when no agent qualifies.
func (d *Dispatcher) SelectAgent(ctx context.Context, required agent.Type) (*agent.Agent, error) {
	agents, err := d.agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: list agents: %w", err)
	}

	var best *agent.Agent
	for _, a := range agents {
		if !a.Available() {
			continue
		}
		if required != "" && a.Type != required {
			continue
		}
		if best == nil || less(a, best) {
			best = a
		}
	}
	return best, nil
}

// less orders candidate agents: lower load first, then the one idle
// longest, then ID for a stable total order.
func less(a, b *agent.Agent) bool {
	if a.CurrentLoad != b.CurrentLoad {
		return a.CurrentLoad < b.CurrentLoad
	}
	switch {
	case a.LastHeartbeat == nil && b.LastHeartbeat != nil:
		return true
	case a.LastHeartbeat != nil && b.LastHeartbeat == nil:
		return false
	case a.LastHeartbeat != nil && b.LastHeartbeat != nil && !a.LastHeartbeat.Equal(*b.LastHeartbeat):
		return a.LastHeartbeat.Before(*b.LastHeartbeat)
	}
	return a.ID.String() < b.ID.String()
}

// ChainStep describes one job in a linear workflow chain.
type ChainStep struct {
	Type    string
	Payload map[string]any
	Opts    []job.Option
}

// EnqueueChain creates a linear workflow: the first step starts queued,
// every later step starts blocked on its predecessor and is released
// when that predecessor completes successfully. Returns the created
// jobs in chain order.
func (d *Dispatcher) EnqueueChain(ctx context.Context, workflowID string, steps ...ChainStep) ([]*job.Job, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("dispatcher: empty chain: %w", dispatch.ErrInvalidState)
	}

	now := d.clock.Now().UTC()
	jobs := make([]*job.Job, len(steps))
	for i, step := range steps {
		if step.Type == "" {
			return nil, fmt.Errorf("dispatcher: empty job type in chain step %d: %w", i, dispatch.ErrInvalidState)
		}
		var o job.Options
		for _, opt := range step.Opts {
			opt(&o)
		}
		maxAttempts := o.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = d.defaultMaxAttempts
		}
		jobs[i] = &job.Job{
			Entity:      dispatch.NewEntityAt(now),
			ID:          id.NewJobID(),
			Type:        step.Type,
			Payload:     step.Payload,
			Priority:    o.Priority,
			Status:      job.StatusQueued,
			MaxAttempts: maxAttempts,
			AgentType:   o.AgentType,
			WorkflowID:  workflowID,
		}
		if i > 0 {
			jobs[i].Status = job.StatusBlocked
			jobs[i].ParentJobID = jobs[i-1].ID
			jobs[i-1].NextJobID = jobs[i].ID
		}
	}

	for _, j := range jobs {
		if err := d.jobs.CreateJob(ctx, j); err != nil {
			return nil, fmt.Errorf("dispatcher: enqueue chain %s: %w", workflowID, err)
		}
		d.exts.EmitJobEnqueued(ctx, j)
	}

	d.logger.Info("workflow chain enqueued",
		slog.String("workflow_id", workflowID),
		slog.Int("steps", len(jobs)),
		slog.String("first_job_id", jobs[0].ID.String()),
	)
	return jobs, nil
}

// Dispatch attempts to assign a queued job to an agent.
//
// Deferred outcomes (no agent, throttled, scheduled in the future,
// blocked on a parent) leave the job queued and return a Result, not an
// error. ErrInvalidState is returned for jobs that are processing or
// terminal.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID id.JobID) (*Result, error) {
	j, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now().UTC()
	switch {
	case j.Status == job.StatusBlocked:
		return &Result{Outcome: OutcomeDeferred, Reason: DeferBlocked, Job: j}, nil
	case j.Status != job.StatusQueued:
		return nil, fmt.Errorf("dispatcher: job %s is %q: %w", jobID, j.Status, dispatch.ErrInvalidState)
	case !j.Due(now):
		return &Result{Outcome: OutcomeDeferred, Reason: DeferScheduled, Job: j}, nil
	}

	a, err := d.reserveAgent(ctx, j.AgentType)
	if err != nil {
		return nil, err
	}
	if a == nil {
		d.logger.Info("no available agent, dispatch deferred",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("agent_type", string(j.AgentType)),
		)
		return &Result{Outcome: OutcomeDeferred, Reason: DeferNoAgent, Job: j}, nil
	}

	if !d.limiter.Acquire(j.Type) {
		d.releaseReservation(ctx, a)
		d.logger.Info("dispatch throttled",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
		)
		return &Result{Outcome: OutcomeDeferred, Reason: DeferThrottled, Job: j}, nil
	}

	claimed, err := d.jobs.ClaimJob(ctx, j.ID, a.ID, now)
	if err != nil {
		// Lost a claim race or the job moved under us. Give the
		// capacity slot and the throttle slot back.
		d.releaseReservation(ctx, a)
		d.limiter.Release(j.Type)
		if errors.Is(err, dispatch.ErrInvalidState) || errors.Is(err, dispatch.ErrJobNotDue) {
			return nil, fmt.Errorf("dispatcher: claim %s: %w", jobID, err)
		}
		return nil, err
	}

	d.logger.Info("job dispatched",
		slog.String("job_id", claimed.ID.String()),
		slog.String("job_type", claimed.Type),
		slog.String("agent_id", a.ID.String()),
		slog.Int("agent_load", a.CurrentLoad),
	)
	d.exts.EmitJobDispatched(ctx, claimed, a)
	return &Result{Outcome: OutcomeDispatched, Job: claimed, Agent: a}, nil
}

// reserveAgent selects the best agent and reserves one capacity slot on
// it via the store's conditional increment, so concurrent dispatches
// cannot push an agent past max capacity. A reservation race reruns the
// selection against fresh load counts; an agent that filled up in the
// meantime no longer qualifies. Returns nil when no agent is available.
func (d *Dispatcher) reserveAgent(ctx context.Context, required agent.Type) (*agent.Agent, error) {
	for {
		a, err := d.SelectAgent(ctx, required)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, nil
		}

		err = d.agents.IncrementAgentLoad(ctx, a.ID)
		switch {
		case err == nil:
			a.CurrentLoad++
			return a, nil
		case errors.Is(err, dispatch.ErrAgentAtCapacity), errors.Is(err, dispatch.ErrAgentNotFound):
			// Another dispatcher took the last slot. Select again.
			continue
		default:
			return nil, fmt.Errorf("dispatcher: reserve agent %s: %w", a.ID, err)
		}
	}
}

// releaseReservation gives back a capacity slot reserved by
// reserveAgent when the dispatch does not go through.
func (d *Dispatcher) releaseReservation(ctx context.Context, a *agent.Agent) {
	if err := d.agents.DecrementAgentLoad(ctx, a.ID); err != nil {
		d.logger.Error("failed to release agent capacity",
			slog.String("agent_id", a.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	a.CurrentLoad--
}

// CreateAndDispatch enqueues a job and immediately attempts dispatch.
// Jobs that start blocked or scheduled in the future are left for a
// later sweep.
func (d *Dispatcher) CreateAndDispatch(ctx context.Context, jobType string, payload map[string]any, opts ...job.Option) (*Result, error) {
	j, err := d.Enqueue(ctx, jobType, payload, opts...)
	if err != nil {
		return nil, err
	}

	if j.Status == job.StatusBlocked {
		return &Result{Outcome: OutcomeDeferred, Reason: DeferBlocked, Job: j}, nil
	}
	if !j.Due(d.clock.Now().UTC()) {
		return &Result{Outcome: OutcomeDeferred, Reason: DeferScheduled, Job: j}, nil
	}
	return d.Dispatch(ctx, j.ID)
}

// DispatchQueued scans for due queued jobs and dispatches as many as
// agents and throttle limits allow. Used by the periodic sweeper to pick
// up deferred and retrying jobs. Returns the number dispatched.
func (d *Dispatcher) DispatchQueued(ctx context.Context, limit int) (int, error) {
	queued, err := d.jobs.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("dispatcher: list queued jobs: %w", err)
	}

	now := d.clock.Now().UTC()
	dispatched := 0
	for _, j := range queued {
		if !j.Due(now) {
			continue
		}
		res, err := d.Dispatch(ctx, j.ID)
		if err != nil {
			// Lost races are expected when agents also pull work.
			if errors.Is(err, dispatch.ErrInvalidState) || errors.Is(err, dispatch.ErrJobNotDue) {
				continue
			}
			return dispatched, err
		}
		if res.Outcome == OutcomeDispatched {
			dispatched++
		}
	}
	return dispatched, nil
}
