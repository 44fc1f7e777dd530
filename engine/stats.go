package engine

import (
	"context"
	"fmt"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// AgentStats breaks the agent registry down by health.
type AgentStats struct {
	Total     int64 `json:"total"`
	Healthy   int64 `json:"healthy"`
	Unhealthy int64 `json:"unhealthy"`
	Offline   int64 `json:"offline"`
}

// Stats is an aggregate snapshot of the dispatch system.
type Stats struct {
	Agents AgentStats       `json:"agents"`
	Jobs   map[string]int64 `json:"jobs"`
	Alerts int64            `json:"alerts"`
}

// Stats returns counts of agents by health, jobs by status, and alerts.
func (eng *Engine) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{Jobs: make(map[string]int64)}

	var err error
	if s.Agents.Total, err = eng.store.CountAgents(ctx, agent.CountOpts{}); err != nil {
		return nil, fmt.Errorf("engine: count agents: %w", err)
	}
	healthCounts := []struct {
		health agent.Health
		dst    *int64
	}{
		{agent.HealthHealthy, &s.Agents.Healthy},
		{agent.HealthUnhealthy, &s.Agents.Unhealthy},
		{agent.HealthOffline, &s.Agents.Offline},
	}
	for _, hc := range healthCounts {
		if *hc.dst, err = eng.store.CountAgents(ctx, agent.CountOpts{Health: hc.health}); err != nil {
			return nil, fmt.Errorf("engine: count %s agents: %w", hc.health, err)
		}
	}

	statuses := []job.Status{
		job.StatusQueued,
		job.StatusBlocked,
		job.StatusProcessing,
		job.StatusCompleted,
		job.StatusFailed,
		job.StatusDeadLetter,
	}
	for _, st := range statuses {
		n, err := eng.store.CountJobs(ctx, job.CountOpts{Status: st})
		if err != nil {
			return nil, fmt.Errorf("engine: count %s jobs: %w", st, err)
		}
		s.Jobs[string(st)] = n
	}

	if s.Alerts, err = eng.store.CountAlerts(ctx); err != nil {
		return nil, fmt.Errorf("engine: count alerts: %w", err)
	}
	return s, nil
}
