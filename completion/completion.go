// Package completion processes agent reports for dispatched jobs:
// success finalizes the job and releases the next link in its workflow
// chain, failure runs the retry engine and eventually dead-letters the
// job. Reports are idempotent and guarded against zombie agents whose
// work was already reclaimed.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/backoff"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/ext"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
	"github.com/muhammadiwa/youtube-automation-sub005/throttle"
)

// Report is what an agent sends back when it finishes a job.
type Report struct {
	// Success indicates whether the job ran to completion.
	Success bool `json:"success"`
	// Result carries output data for successful jobs.
	Result map[string]any `json:"result,omitempty"`
	// Error describes the failure for unsuccessful jobs.
	Error string `json:"error,omitempty"`
}

// Handler processes completion reports.
type Handler struct {
	agents   agent.Store
	jobs     job.Store
	backoffs *backoff.Registry
	dlq      *dlq.Service
	limiter  *throttle.Limiter
	exts     *ext.Registry
	clock    clock.Clock
	logger   *slog.Logger
}

// NewHandler creates a completion handler.
func NewHandler(agents agent.Store, jobs job.Store, backoffs *backoff.Registry, dlqSvc *dlq.Service, limiter *throttle.Limiter, exts *ext.Registry, clk clock.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		agents:   agents,
		jobs:     jobs,
		backoffs: backoffs,
		dlq:      dlqSvc,
		limiter:  limiter,
		exts:     exts,
		clock:    clk,
		logger:   logger,
	}
}

// Complete applies an agent's report to a job and returns the job's
// resulting state.
//
// Reports against terminal jobs are no-ops: the current state comes
// back unchanged, so an agent may safely resend a report. Reports from
// an agent that no longer holds the job (its work was reclaimed and
// possibly reassigned) are ignored the same way.
func (h *Handler) Complete(ctx context.Context, jobID id.JobID, agentID id.AgentID, report Report) (*job.Job, error) {
	j, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status.Terminal() {
		return j, nil
	}
	if j.Status != job.StatusProcessing || j.AgentID != agentID {
		h.logger.Warn("stale completion report ignored",
			slog.String("job_id", jobID.String()),
			slog.String("reporting_agent", agentID.String()),
			slog.String("assigned_agent", j.AgentID.String()),
			slog.String("status", string(j.Status)),
		)
		return j, nil
	}

	now := h.clock.Now().UTC()
	h.releaseAgent(ctx, agentID)
	h.limiter.Release(j.Type)

	if report.Success {
		return h.succeed(ctx, j, report, now)
	}
	return h.fail(ctx, j, report, now)
}

// succeed finalizes a successful job and unblocks its chained successor.
func (h *Handler) succeed(ctx context.Context, j *job.Job, report Report, now time.Time) (*job.Job, error) {
	j.Status = job.StatusCompleted
	j.Result = report.Result
	j.Error = ""
	j.CompletedAt = &now

	if err := h.jobs.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("completion: finalize job %s: %w", j.ID, err)
	}

	var elapsed time.Duration
	if j.StartedAt != nil {
		elapsed = now.Sub(*j.StartedAt)
	}
	h.logger.Info("job completed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Duration("elapsed", elapsed),
	)
	h.exts.EmitJobCompleted(ctx, j, elapsed)

	if !j.NextJobID.IsNil() {
		h.releaseNext(ctx, j)
	}
	return j, nil
}

// releaseNext moves the chained successor from blocked to queued.
func (h *Handler) releaseNext(ctx context.Context, j *job.Job) {
	next, err := h.jobs.GetJob(ctx, j.NextJobID)
	if err != nil {
		h.logger.Error("chained job missing",
			slog.String("job_id", j.ID.String()),
			slog.String("next_job_id", j.NextJobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if next.Status != job.StatusBlocked {
		return
	}

	next.Status = job.StatusQueued
	if err := h.jobs.UpdateJob(ctx, next); err != nil {
		h.logger.Error("failed to release chained job",
			slog.String("next_job_id", next.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("chained job released",
		slog.String("job_id", j.ID.String()),
		slog.String("next_job_id", next.ID.String()),
		slog.String("workflow_id", j.WorkflowID),
	)
	h.exts.EmitJobEnqueued(ctx, next)
}

// fail charges an attempt and either schedules a retry with backoff or
// moves the job to the dead letter queue.
func (h *Handler) fail(ctx context.Context, j *job.Job, report Report, now time.Time) (*job.Job, error) {
	j.Attempts++
	j.Error = report.Error
	j.AgentID = id.Nil
	j.StartedAt = nil

	if j.Attempts < j.MaxAttempts {
		policy := h.backoffs.Lookup(j.Type)
		retryAt := now.Add(policy.Delay(j.Attempts))
		j.Status = job.StatusQueued
		j.NextRetryAt = &retryAt

		if err := h.jobs.UpdateJob(ctx, j); err != nil {
			return nil, fmt.Errorf("completion: schedule retry for %s: %w", j.ID, err)
		}
		h.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("attempt", j.Attempts),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Time("next_retry_at", retryAt),
			slog.String("error", report.Error),
		)
		h.exts.EmitJobRetrying(ctx, j, j.Attempts, retryAt)
		return j, nil
	}

	j.Status = job.StatusDeadLetter
	j.NextRetryAt = nil
	j.MovedToDLQAt = &now

	if err := h.jobs.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("completion: dead-letter job %s: %w", j.ID, err)
	}
	if _, err := h.dlq.CreateForJob(ctx, j); err != nil && !errors.Is(err, dispatch.ErrAlertAlreadyExists) {
		h.logger.Error("failed to raise dead letter alert",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	h.exts.EmitJobDeadLettered(ctx, j, report.Error)
	return j, nil
}

// releaseAgent gives back one unit of the agent's capacity. The store
// decrements atomically, so concurrent completions and dispatches never
// lose a load update.
func (h *Handler) releaseAgent(ctx context.Context, agentID id.AgentID) {
	if err := h.agents.DecrementAgentLoad(ctx, agentID); err != nil {
		if errors.Is(err, dispatch.ErrAgentNotFound) {
			h.logger.Warn("reporting agent not found",
				slog.String("agent_id", agentID.String()),
			)
			return
		}
		h.logger.Error("failed to record agent load",
			slog.String("agent_id", agentID.String()),
			slog.String("error", err.Error()),
		)
	}
}
