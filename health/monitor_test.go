package health_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/ext"
	"github.com/muhammadiwa/youtube-automation-sub005/health"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
	"github.com/muhammadiwa/youtube-automation-sub005/store/memory"
	"github.com/muhammadiwa/youtube-automation-sub005/throttle"
)

const threshold = 60 * time.Second

func newMonitor(s *memory.Store, clk clock.Clock, limiter *throttle.Limiter) *health.Monitor {
	logger := slog.New(slog.DiscardHandler)
	return health.NewMonitor(s, s, limiter, ext.NewRegistry(logger), clk, logger, threshold)
}

func addAgent(t *testing.T, s *memory.Store, clk clock.Clock, health agent.Health, heartbeatAge time.Duration) *agent.Agent {
	t.Helper()
	now := clk.Now().UTC()
	a := &agent.Agent{
		Entity:      dispatch.NewEntityAt(now),
		ID:          id.NewAgentID(),
		Identity:    "agent-" + id.NewAgentID().String(),
		Type:        agent.TypeTranscode,
		MaxCapacity: 5,
		Health:      health,
	}
	hb := now.Add(-heartbeatAge)
	a.LastHeartbeat = &hb
	if err := s.CreateAgent(context.Background(), a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	return a
}

func addProcessingJob(t *testing.T, s *memory.Store, clk clock.Clock, agentID id.AgentID, attempts int) *job.Job {
	t.Helper()
	ctx := context.Background()
	now := clk.Now().UTC()
	j := &job.Job{
		Entity:      dispatch.NewEntityAt(now),
		ID:          id.NewJobID(),
		Type:        "transcode",
		Status:      job.StatusQueued,
		Attempts:    attempts,
		MaxAttempts: 3,
	}
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	claimed, err := s.ClaimJob(ctx, j.ID, agentID, now)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	return claimed
}

func TestSweepThresholdBoundary(t *testing.T) {
	t.Parallel()
	s := memory.New()
	clk := clock.NewFake()
	m := newMonitor(s, clk, throttle.NewLimiter())
	ctx := context.Background()

	// 61 seconds of silence is past the 60 second threshold; 60 exactly
	// is not.
	dead := addAgent(t, s, clk, agent.HealthHealthy, 61*time.Second)
	alive := addAgent(t, s, clk, agent.HealthHealthy, threshold)

	summary, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.AgentsChecked != 2 || summary.HealthyCount != 1 || summary.UnhealthyCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.NewlyUnhealthy) != 1 || summary.NewlyUnhealthy[0].AgentID != dead.ID {
		t.Fatalf("wrong agent flagged: %+v", summary.NewlyUnhealthy)
	}

	gotDead, _ := s.GetAgent(ctx, dead.ID)
	if gotDead.Health != agent.HealthUnhealthy {
		t.Fatalf("dead agent health = %q", gotDead.Health)
	}
	gotAlive, _ := s.GetAgent(ctx, alive.ID)
	if gotAlive.Health != agent.HealthHealthy {
		t.Fatalf("alive agent health = %q", gotAlive.Health)
	}
}

func TestSweepReclaimsJobsWithoutChargingAttempts(t *testing.T) {
	t.Parallel()
	s := memory.New()
	clk := clock.NewFake()
	limiter := throttle.NewLimiter(throttle.Config{Type: "transcode", MaxConcurrent: 2})
	m := newMonitor(s, clk, limiter)
	ctx := context.Background()

	dead := addAgent(t, s, clk, agent.HealthHealthy, 2*time.Minute)
	j1 := addProcessingJob(t, s, clk, dead.ID, 1)
	j2 := addProcessingJob(t, s, clk, dead.ID, 0)
	limiter.Acquire("transcode")
	limiter.Acquire("transcode")

	summary, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.JobsReassignedTotal != 2 {
		t.Fatalf("reassigned %d jobs, want 2", summary.JobsReassignedTotal)
	}
	if summary.NewlyUnhealthy[0].JobsReassigned != 2 {
		t.Fatalf("per-agent count = %d, want 2", summary.NewlyUnhealthy[0].JobsReassigned)
	}

	for _, orig := range []*job.Job{j1, j2} {
		got, err := s.GetJob(ctx, orig.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Status != job.StatusQueued {
			t.Fatalf("job %s status = %q, want queued", got.ID, got.Status)
		}
		if !got.AgentID.IsNil() || got.StartedAt != nil {
			t.Fatalf("assignment not cleared: %+v", got)
		}
		// Reclamation is not a failure: attempts stay as they were.
		if got.Attempts != orig.Attempts {
			t.Fatalf("attempts changed from %d to %d", orig.Attempts, got.Attempts)
		}
	}

	// Throttle slots were given back and the agent's load reset.
	if limiter.Active("transcode") != 0 {
		t.Fatalf("throttle still holds %d slots", limiter.Active("transcode"))
	}
	gotAgent, _ := s.GetAgent(ctx, dead.ID)
	if gotAgent.CurrentLoad != 0 {
		t.Fatalf("agent load = %d, want 0", gotAgent.CurrentLoad)
	}
}

func TestSweepSkipsOfflineAndAlreadyUnhealthy(t *testing.T) {
	t.Parallel()
	s := memory.New()
	clk := clock.NewFake()
	m := newMonitor(s, clk, throttle.NewLimiter())
	ctx := context.Background()

	addAgent(t, s, clk, agent.HealthOffline, time.Hour)
	stale := addAgent(t, s, clk, agent.HealthUnhealthy, time.Hour)
	// A job still pointing at the already-unhealthy agent must not be
	// reclaimed twice.
	addProcessingJob(t, s, clk, stale.ID, 0)

	summary, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if summary.AgentsChecked != 1 {
		t.Fatalf("checked %d agents, want 1 (offline skipped)", summary.AgentsChecked)
	}
	if summary.UnhealthyCount != 1 || len(summary.NewlyUnhealthy) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.JobsReassignedTotal != 0 {
		t.Fatalf("reassigned %d jobs, want 0", summary.JobsReassignedTotal)
	}
}

func TestSweepReclaimedJobKeepsRetryEligibility(t *testing.T) {
	t.Parallel()
	s := memory.New()
	clk := clock.NewFake()
	m := newMonitor(s, clk, throttle.NewLimiter())
	ctx := context.Background()

	dead := addAgent(t, s, clk, agent.HealthHealthy, 2*time.Minute)
	j := addProcessingJob(t, s, clk, dead.ID, 2)

	if _, err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	// The reclaimed job is immediately claimable by another agent.
	other := id.NewAgentID()
	claimed, err := s.ClaimJob(ctx, j.ID, other, clk.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimJob after reclaim: %v", err)
	}
	if claimed.AgentID != other || claimed.Attempts != 2 {
		t.Fatalf("reclaim broke the job: %+v", claimed)
	}
}
