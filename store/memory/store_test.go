package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Agent Store tests
// ──────────────────────────────────────────────────

func newAgent(identity string, typ agent.Type, capacity int) *agent.Agent {
	return &agent.Agent{
		Entity:      dispatch.NewEntityAt(time.Now().UTC()),
		ID:          id.NewAgentID(),
		Identity:    identity,
		Type:        typ,
		Hostname:    "host-1",
		MaxCapacity: capacity,
		Health:      agent.HealthHealthy,
	}
}

func TestAgentCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newAgent("agent-key-1", agent.TypeTranscode, 5)
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Identity != a.Identity {
		t.Fatalf("got identity %q, want %q", got.Identity, a.Identity)
	}

	byIdentity, err := s.GetAgentByIdentity(ctx, "agent-key-1")
	if err != nil {
		t.Fatalf("GetAgentByIdentity: %v", err)
	}
	if byIdentity.ID != a.ID {
		t.Fatalf("got agent %s, want %s", byIdentity.ID, a.ID)
	}

	_, err = s.GetAgent(ctx, id.NewAgentID())
	if !errors.Is(err, dispatch.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	_, err = s.GetAgentByIdentity(ctx, "unknown")
	if !errors.Is(err, dispatch.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestAgentUpdateReturnsCopies(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newAgent("agent-key-2", agent.TypeRelay, 3)
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	a.CurrentLoad = 2
	if err := s.UpdateAgent(ctx, a); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.CurrentLoad != 2 {
		t.Fatalf("got load %d, want 2", got.CurrentLoad)
	}

	// Mutating the returned copy must not affect the stored agent.
	got.CurrentLoad = 99
	again, _ := s.GetAgent(ctx, a.ID)
	if again.CurrentLoad != 2 {
		t.Fatalf("store leaked internal state: load = %d", again.CurrentLoad)
	}

	if err := s.UpdateAgent(ctx, newAgent("ghost", agent.TypeRelay, 1)); !errors.Is(err, dispatch.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestAgentUpdateStampsInjectedClock(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake()
	s := New(WithClock(clk))
	ctx := context.Background()

	a := newAgent("agent-key-clock", agent.TypeRelay, 3)
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	clk.Advance(time.Minute)
	if err := s.UpdateAgent(ctx, a); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}

	got, _ := s.GetAgent(ctx, a.ID)
	if want := clk.Now().UTC(); !got.UpdatedAt.Equal(want) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, want)
	}
}

func TestIncrementAgentLoadStopsAtCapacity(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newAgent("agent-key-load", agent.TypeTranscode, 2)
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	for i := range 2 {
		if err := s.IncrementAgentLoad(ctx, a.ID); err != nil {
			t.Fatalf("IncrementAgentLoad %d: %v", i, err)
		}
	}
	if err := s.IncrementAgentLoad(ctx, a.ID); !errors.Is(err, dispatch.ErrAgentAtCapacity) {
		t.Fatalf("expected ErrAgentAtCapacity, got %v", err)
	}

	got, _ := s.GetAgent(ctx, a.ID)
	if got.CurrentLoad != 2 {
		t.Fatalf("load = %d, want 2", got.CurrentLoad)
	}

	if err := s.IncrementAgentLoad(ctx, id.NewAgentID()); !errors.Is(err, dispatch.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestIncrementAgentLoadConcurrent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newAgent("agent-key-race", agent.TypeTranscode, 1)
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.IncrementAgentLoad(ctx, a.ID); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("%d claimers won the last slot, want exactly 1", won)
	}
	got, _ := s.GetAgent(ctx, a.ID)
	if got.CurrentLoad != 1 {
		t.Fatalf("load = %d, want 1", got.CurrentLoad)
	}
}

func TestDecrementAgentLoadFloorsAtZero(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	a := newAgent("agent-key-dec", agent.TypeTranscode, 2)
	if err := s.CreateAgent(ctx, a); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := s.IncrementAgentLoad(ctx, a.ID); err != nil {
		t.Fatalf("IncrementAgentLoad: %v", err)
	}

	for i := range 3 {
		if err := s.DecrementAgentLoad(ctx, a.ID); err != nil {
			t.Fatalf("DecrementAgentLoad %d: %v", i, err)
		}
	}

	got, _ := s.GetAgent(ctx, a.ID)
	if got.CurrentLoad != 0 {
		t.Fatalf("load = %d, want 0", got.CurrentLoad)
	}

	if err := s.DecrementAgentLoad(ctx, id.NewAgentID()); !errors.Is(err, dispatch.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestAgentCount(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	healthy := newAgent("a1", agent.TypeTranscode, 5)
	unhealthy := newAgent("a2", agent.TypeTranscode, 5)
	unhealthy.Health = agent.HealthUnhealthy
	relay := newAgent("a3", agent.TypeRelay, 5)

	for _, a := range []*agent.Agent{healthy, unhealthy, relay} {
		if err := s.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent: %v", err)
		}
	}

	tests := []struct {
		name string
		opts agent.CountOpts
		want int64
	}{
		{"all", agent.CountOpts{}, 3},
		{"healthy only", agent.CountOpts{Health: agent.HealthHealthy}, 2},
		{"transcode only", agent.CountOpts{Type: agent.TypeTranscode}, 2},
		{"healthy transcode", agent.CountOpts{Health: agent.HealthHealthy, Type: agent.TypeTranscode}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.CountAgents(ctx, tt.opts)
			if err != nil {
				t.Fatalf("CountAgents: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Job Store tests
// ──────────────────────────────────────────────────

func newQueuedJob(typ string, priority int) *job.Job {
	return &job.Job{
		Entity:      dispatch.NewEntityAt(time.Now().UTC()),
		ID:          id.NewJobID(),
		Type:        typ,
		Payload:     map[string]any{"test": true},
		Priority:    priority,
		Status:      job.StatusQueued,
		MaxAttempts: 3,
	}
}

func TestJobCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newQueuedJob("transcode", 0)

	tests := []struct {
		name    string
		fn      func() error
		wantErr error
	}{
		{
			name:    "create new job",
			fn:      func() error { return s.CreateJob(ctx, j) },
			wantErr: nil,
		},
		{
			name:    "create duplicate job",
			fn:      func() error { return s.CreateJob(ctx, j) },
			wantErr: dispatch.ErrJobAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Type != j.Type {
		t.Fatalf("got type %q, want %q", got.Type, j.Type)
	}

	_, err = s.GetJob(ctx, id.NewJobID())
	if !errors.Is(err, dispatch.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobCopiesDoNotShareMaps(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := newQueuedJob("transcode", 0)
	j.Payload = map[string]any{"video_id": "v1"}
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Mutating the caller's payload after create must not reach the store.
	j.Payload["video_id"] = "tampered"
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Payload["video_id"] != "v1" {
		t.Fatalf("stored payload mutated through caller's map: %v", got.Payload)
	}

	// And mutating a returned copy's payload must not reach it either.
	got.Payload["video_id"] = "tampered"
	got.Result = map[string]any{"out": "x"}
	again, _ := s.GetJob(ctx, j.ID)
	if again.Payload["video_id"] != "v1" || again.Result != nil {
		t.Fatalf("store leaked internal maps: %v %v", again.Payload, again.Result)
	}
}

func TestClaimJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	agentID := id.NewAgentID()

	j := newQueuedJob("transcode", 0)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	claimed, err := s.ClaimJob(ctx, j.ID, agentID, now)
	if err != nil {
		t.Fatalf("ClaimJob: %v", err)
	}
	if claimed.Status != job.StatusProcessing {
		t.Fatalf("got status %q, want %q", claimed.Status, job.StatusProcessing)
	}
	if claimed.AgentID != agentID {
		t.Fatalf("got agent %s, want %s", claimed.AgentID, agentID)
	}
	if claimed.StartedAt == nil || !claimed.StartedAt.Equal(now) {
		t.Fatalf("StartedAt = %v, want %v", claimed.StartedAt, now)
	}

	// Second claim must fail: the job is no longer queued.
	_, err = s.ClaimJob(ctx, j.ID, id.NewAgentID(), now)
	if !errors.Is(err, dispatch.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestClaimJobNotDue(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	scheduled := newQueuedJob("transcode", 0)
	future := now.Add(time.Hour)
	scheduled.ScheduledAt = &future
	if err := s.CreateJob(ctx, scheduled); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	backingOff := newQueuedJob("transcode", 0)
	retryAt := now.Add(10 * time.Second)
	backingOff.NextRetryAt = &retryAt
	if err := s.CreateJob(ctx, backingOff); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	for _, j := range []*job.Job{scheduled, backingOff} {
		if _, err := s.ClaimJob(ctx, j.ID, id.NewAgentID(), now); !errors.Is(err, dispatch.ErrJobNotDue) {
			t.Fatalf("expected ErrJobNotDue, got %v", err)
		}
	}

	// Both become claimable once their times pass.
	later := now.Add(2 * time.Hour)
	for _, j := range []*job.Job{scheduled, backingOff} {
		if _, err := s.ClaimJob(ctx, j.ID, id.NewAgentID(), later); err != nil {
			t.Fatalf("ClaimJob after due: %v", err)
		}
	}
}

func TestClaimJobConcurrent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	j := newQueuedJob("transcode", 0)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ClaimJob(ctx, j.ID, id.NewAgentID(), now); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("%d claimers won, want exactly 1", won)
	}
}

func TestListJobsByStatusOrdering(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	low := newQueuedJob("transcode", 1)
	high := newQueuedJob("transcode", 10)
	relay := newQueuedJob("relay", 5)
	done := newQueuedJob("transcode", 0)
	done.Status = job.StatusCompleted

	for _, j := range []*job.Job{low, high, relay, done} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	got, err := s.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d jobs, want 3", len(got))
	}
	if got[0].ID != high.ID {
		t.Fatalf("expected highest priority first, got %s", got[0].ID)
	}

	filtered, err := s.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{Type: "relay"})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != relay.ID {
		t.Fatalf("type filter failed: %v", filtered)
	}

	limited, err := s.ListJobsByStatus(ctx, job.StatusQueued, job.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("got %d jobs, want 2", len(limited))
	}
}

func TestListJobsByAgent(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	agentID := id.NewAgentID()

	j1 := newQueuedJob("transcode", 0)
	j2 := newQueuedJob("transcode", 0)
	other := newQueuedJob("transcode", 0)

	for _, j := range []*job.Job{j1, j2, other} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	for _, j := range []*job.Job{j1, j2} {
		if _, err := s.ClaimJob(ctx, j.ID, agentID, now); err != nil {
			t.Fatalf("ClaimJob: %v", err)
		}
	}

	got, err := s.ListJobsByAgent(ctx, agentID, job.StatusProcessing)
	if err != nil {
		t.Fatalf("ListJobsByAgent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d jobs, want 2", len(got))
	}
}

// ──────────────────────────────────────────────────
// DLQ Store tests
// ──────────────────────────────────────────────────

func newAlert(jobID id.JobID) *dlq.Alert {
	return &dlq.Alert{
		Entity:       dispatch.NewEntityAt(time.Now().UTC()),
		ID:           id.NewAlertID(),
		JobID:        jobID,
		JobType:      "transcode",
		ErrorMessage: "encoder crashed",
		Attempts:     3,
	}
}

func TestAlertCreateExactlyOncePerJob(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	jobID := id.NewJobID()

	if err := s.CreateAlert(ctx, newAlert(jobID)); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	// A second alert for the same job must be rejected even with a new ID.
	if err := s.CreateAlert(ctx, newAlert(jobID)); !errors.Is(err, dispatch.ErrAlertAlreadyExists) {
		t.Fatalf("expected ErrAlertAlreadyExists, got %v", err)
	}

	count, err := s.CountAlerts(ctx)
	if err != nil {
		t.Fatalf("CountAlerts: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d alerts, want 1", count)
	}
}

func TestAlertListPendingOnly(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	pending := newAlert(id.NewJobID())
	sent := newAlert(id.NewJobID())
	sent.NotificationSent = true
	acked := newAlert(id.NewJobID())
	acked.Acknowledged = true

	for _, a := range []*dlq.Alert{pending, sent, acked} {
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert: %v", err)
		}
	}

	got, err := s.ListAlerts(ctx, dlq.ListOpts{PendingOnly: true})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Fatalf("pending filter failed: got %d alerts", len(got))
	}

	all, err := s.ListAlerts(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d alerts, want 3", len(all))
	}
}

func TestAlertPurge(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	old := newAlert(id.NewJobID())
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	fresh := newAlert(id.NewJobID())

	for _, a := range []*dlq.Alert{old, fresh} {
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert: %v", err)
		}
	}

	purged, err := s.PurgeAlerts(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeAlerts: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged %d, want 1", purged)
	}

	if _, err := s.GetAlert(ctx, old.ID); !errors.Is(err, dispatch.ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}

	// Purging the alert frees the job for a future alert.
	if err := s.CreateAlert(ctx, newAlert(old.JobID)); err != nil {
		t.Fatalf("CreateAlert after purge: %v", err)
	}
}
