// Package health detects dead agents and reclaims their work. An agent
// that misses heartbeats for longer than the configured threshold is
// marked unhealthy and every job it was processing goes back to the
// queue for reassignment. A missed heartbeat is an infrastructure
// failure, not a job failure, so reclaimed jobs keep their attempt
// count.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/ext"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
	"github.com/muhammadiwa/youtube-automation-sub005/throttle"
)

// UnhealthyAgent describes one agent a sweep marked unhealthy.
type UnhealthyAgent struct {
	AgentID        id.AgentID `json:"agent_id"`
	Identity       string     `json:"identity"`
	LastHeartbeat  *time.Time `json:"last_heartbeat,omitempty"`
	JobsReassigned int        `json:"jobs_reassigned"`
}

// Summary reports the result of one health sweep.
type Summary struct {
	CheckedAt           time.Time        `json:"checked_at"`
	AgentsChecked       int              `json:"agents_checked"`
	HealthyCount        int              `json:"healthy_count"`
	UnhealthyCount      int              `json:"unhealthy_count"`
	NewlyUnhealthy      []UnhealthyAgent `json:"newly_unhealthy,omitempty"`
	JobsReassignedTotal int              `json:"jobs_reassigned_total"`
}

// Monitor sweeps the agent registry for missed heartbeats.
type Monitor struct {
	agents    agent.Store
	jobs      job.Store
	limiter   *throttle.Limiter
	exts      *ext.Registry
	clock     clock.Clock
	logger    *slog.Logger
	threshold time.Duration
}

// NewMonitor creates a health monitor. The threshold is how long an
// agent may go without a heartbeat before it is considered dead.
func NewMonitor(agents agent.Store, jobs job.Store, limiter *throttle.Limiter, exts *ext.Registry, clk clock.Clock, logger *slog.Logger, threshold time.Duration) *Monitor {
	return &Monitor{
		agents:    agents,
		jobs:      jobs,
		limiter:   limiter,
		exts:      exts,
		clock:     clk,
		logger:    logger,
		threshold: threshold,
	}
}

// Sweep checks every non-offline agent against the heartbeat threshold.
// Agents past the threshold are marked unhealthy and their processing
// jobs are requeued with assignment cleared. The attempt count is not
// touched: the job did not fail, its agent did.
func (m *Monitor) Sweep(ctx context.Context) (*Summary, error) {
	now := m.clock.Now().UTC()
	summary := &Summary{CheckedAt: now}

	agents, err := m.agents.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("health: list agents: %w", err)
	}

	for _, a := range agents {
		if a.Health == agent.HealthOffline {
			continue
		}
		summary.AgentsChecked++

		if a.Health == agent.HealthUnhealthy {
			summary.UnhealthyCount++
			continue
		}
		if !m.expired(a, now) {
			summary.HealthyCount++
			continue
		}

		reassigned, err := m.markUnhealthy(ctx, a, now)
		if err != nil {
			return nil, err
		}
		summary.UnhealthyCount++
		summary.JobsReassignedTotal += reassigned
		summary.NewlyUnhealthy = append(summary.NewlyUnhealthy, UnhealthyAgent{
			AgentID:        a.ID,
			Identity:       a.Identity,
			LastHeartbeat:  a.LastHeartbeat,
			JobsReassigned: reassigned,
		})
	}

	return summary, nil
}

// expired reports whether the agent's last heartbeat is older than the
// threshold. An agent exactly at the threshold is still healthy.
func (m *Monitor) expired(a *agent.Agent, now time.Time) bool {
	if a.LastHeartbeat == nil {
		// Registered but never heartbeated; age from registration.
		return now.Sub(a.CreatedAt) > m.threshold
	}
	return now.Sub(*a.LastHeartbeat) > m.threshold
}

// markUnhealthy transitions the agent and requeues its processing jobs,
// returning how many were reclaimed.
func (m *Monitor) markUnhealthy(ctx context.Context, a *agent.Agent, now time.Time) (int, error) {
	stuck, err := m.jobs.ListJobsByAgent(ctx, a.ID, job.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("health: list jobs for agent %s: %w", a.ID, err)
	}

	reassigned := 0
	for _, j := range stuck {
		j.Status = job.StatusQueued
		j.AgentID = id.Nil
		j.StartedAt = nil
		if err := m.jobs.UpdateJob(ctx, j); err != nil {
			return reassigned, fmt.Errorf("health: requeue job %s: %w", j.ID, err)
		}
		m.limiter.Release(j.Type)
		reassigned++

		m.logger.Warn("job reclaimed from dead agent",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("agent_id", a.ID.String()),
			slog.Int("attempts", j.Attempts),
		)
	}

	a.Health = agent.HealthUnhealthy
	a.CurrentLoad = 0
	if err := m.agents.UpdateAgent(ctx, a); err != nil {
		return reassigned, fmt.Errorf("health: mark agent %s unhealthy: %w", a.ID, err)
	}

	var last time.Time
	if a.LastHeartbeat != nil {
		last = *a.LastHeartbeat
	}
	m.logger.Warn("agent marked unhealthy",
		slog.String("agent_id", a.ID.String()),
		slog.String("identity", a.Identity),
		slog.Duration("silence", now.Sub(last)),
		slog.Int("jobs_reassigned", reassigned),
	)
	m.exts.EmitAgentUnhealthy(ctx, a, reassigned)
	return reassigned, nil
}
