package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ agent.Store = (*Store)(nil)
	_ job.Store   = (*Store)(nil)
	_ dlq.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu    sync.RWMutex
	clock clock.Clock

	agents map[string]*agent.Agent
	jobs   map[string]*job.Job
	alerts map[string]*dlq.Alert

	// alertedJobs enforces at most one alert per job.
	alertedJobs map[string]struct{}
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source used to stamp UpdatedAt. Defaults to
// the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) { s.clock = clk }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:       clock.New(),
		agents:      make(map[string]*agent.Agent),
		jobs:        make(map[string]*job.Job),
		alerts:      make(map[string]*dlq.Alert),
		alertedJobs: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// The store hands out copies so callers can never mutate shared state.
// Maps and slices inside the records are cloned too; a caller editing a
// returned payload must not leak the edit back into the store.

func copyAgent(a *agent.Agent) *agent.Agent {
	cp := *a
	cp.Metadata = maps.Clone(a.Metadata)
	return &cp
}

func copyJob(j *job.Job) *job.Job {
	cp := *j
	cp.Payload = maps.Clone(j.Payload)
	cp.Result = maps.Clone(j.Result)
	return &cp
}

func copyAlert(a *dlq.Alert) *dlq.Alert {
	cp := *a
	cp.Channels = slices.Clone(a.Channels)
	return &cp
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Agent Store
// ──────────────────────────────────────────────────

// CreateAgent persists a newly registered agent.
func (m *Store) CreateAgent(_ context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents[a.ID.String()] = copyAgent(a)
	return nil
}

// GetAgent retrieves an agent by ID.
func (m *Store) GetAgent(_ context.Context, agentID id.AgentID) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[agentID.String()]
	if !ok {
		return nil, dispatch.ErrAgentNotFound
	}
	return copyAgent(a), nil
}

// GetAgentByIdentity retrieves an agent by its credential identity.
func (m *Store) GetAgentByIdentity(_ context.Context, identity string) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agents {
		if a.Identity == identity {
			return copyAgent(a), nil
		}
	}
	return nil, dispatch.ErrAgentNotFound
}

// UpdateAgent persists changes to an existing agent.
func (m *Store) UpdateAgent(_ context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ID.String()
	if _, ok := m.agents[key]; !ok {
		return dispatch.ErrAgentNotFound
	}
	cp := copyAgent(a)
	cp.UpdatedAt = m.clock.Now().UTC()
	m.agents[key] = cp
	return nil
}

// IncrementAgentLoad raises the agent's load by one while below max
// capacity. The check and the write happen under the same lock, so
// concurrent dispatchers racing for the last slot get exactly one win.
func (m *Store) IncrementAgentLoad(_ context.Context, agentID id.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentID.String()]
	if !ok {
		return dispatch.ErrAgentNotFound
	}
	if a.CurrentLoad >= a.MaxCapacity {
		return dispatch.ErrAgentAtCapacity
	}
	a.CurrentLoad++
	a.UpdatedAt = m.clock.Now().UTC()
	return nil
}

// DecrementAgentLoad lowers the agent's load by one, never below zero.
func (m *Store) DecrementAgentLoad(_ context.Context, agentID id.AgentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentID.String()]
	if !ok {
		return dispatch.ErrAgentNotFound
	}
	if a.CurrentLoad > 0 {
		a.CurrentLoad--
	}
	a.UpdatedAt = m.clock.Now().UTC()
	return nil
}

// ListAgents returns all registered agents.
func (m *Store) ListAgents(_ context.Context) ([]*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*agent.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		result = append(result, copyAgent(a))
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// CountAgents returns the number of agents matching the given options.
func (m *Store) CountAgents(_ context.Context, opts agent.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, a := range m.agents {
		if opts.Health != "" && a.Health != opts.Health {
			continue
		}
		if opts.Type != "" && a.Type != opts.Type {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return dispatch.ErrJobAlreadyExists
	}
	m.jobs[key] = copyJob(j)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	return copyJob(j), nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return dispatch.ErrJobNotFound
	}
	cp := copyJob(j)
	cp.UpdatedAt = m.clock.Now().UTC()
	m.jobs[key] = cp
	return nil
}

// ClaimJob atomically moves a queued, due job to processing for the given
// agent. The whole transition happens under the write lock, so two
// concurrent claims for the same job cannot both succeed.
func (m *Store) ClaimJob(_ context.Context, jobID id.JobID, agentID id.AgentID, now time.Time) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	if j.Status != job.StatusQueued {
		return nil, dispatch.ErrInvalidState
	}
	if !j.Due(now) {
		return nil, dispatch.ErrJobNotDue
	}

	j.Status = job.StatusProcessing
	j.AgentID = agentID
	startedAt := now.UTC()
	j.StartedAt = &startedAt
	j.UpdatedAt = now.UTC()

	return copyJob(j), nil
}

// ListJobsByStatus returns jobs matching the given status, ordered by
// priority (descending) then creation time (ascending).
func (m *Store) ListJobsByStatus(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].Priority != result[k].Priority {
			return result[i].Priority > result[k].Priority
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ListJobsByAgent returns jobs in the given status assigned to the given agent.
func (m *Store) ListJobsByAgent(_ context.Context, agentID id.AgentID, status job.Status) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*job.Job
	for _, j := range m.jobs {
		if j.AgentID != agentID || j.Status != status {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// CreateAlert persists a new alert, enforcing at most one per job.
func (m *Store) CreateAlert(_ context.Context, a *dlq.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobKey := a.JobID.String()
	if _, exists := m.alertedJobs[jobKey]; exists {
		return dispatch.ErrAlertAlreadyExists
	}

	m.alerts[a.ID.String()] = copyAlert(a)
	m.alertedJobs[jobKey] = struct{}{}
	return nil
}

// GetAlert retrieves an alert by ID.
func (m *Store) GetAlert(_ context.Context, alertID id.AlertID) (*dlq.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[alertID.String()]
	if !ok {
		return nil, dispatch.ErrAlertNotFound
	}
	return copyAlert(a), nil
}

// UpdateAlert persists changes to an existing alert.
func (m *Store) UpdateAlert(_ context.Context, a *dlq.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := a.ID.String()
	if _, ok := m.alerts[key]; !ok {
		return dispatch.ErrAlertNotFound
	}
	cp := copyAlert(a)
	cp.UpdatedAt = m.clock.Now().UTC()
	m.alerts[key] = cp
	return nil
}

// ListAlerts returns alerts matching the given options, oldest first.
func (m *Store) ListAlerts(_ context.Context, opts dlq.ListOpts) ([]*dlq.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if opts.PendingOnly && !a.Pending() {
			continue
		}
		result = append(result, copyAlert(a))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// PurgeAlerts removes alerts created before the given time.
func (m *Store) PurgeAlerts(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, a := range m.alerts {
		if a.CreatedAt.Before(before) {
			delete(m.alerts, key)
			delete(m.alertedJobs, a.JobID.String())
			count++
		}
	}
	return count, nil
}

// CountAlerts returns the total number of alerts.
func (m *Store) CountAlerts(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.alerts)), nil
}
