// Package agent maintains the registry of remote worker agents and
// processes their heartbeats. Agents report capacity and load; the
// registry tracks health transitions driven by heartbeats here and by
// timeout sweeps in the health package.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// Events receives registry lifecycle notifications. The concrete
// implementation is plugged in by the engine layer; a nil Events is
// valid and disables notifications.
type Events interface {
	AgentRegistered(ctx context.Context, a *Agent)
	AgentRecovered(ctx context.Context, a *Agent)
}

// RegisterRequest carries the fields an agent supplies on registration.
type RegisterRequest struct {
	Identity    string            `json:"identity"`
	Type        Type              `json:"type"`
	Hostname    string            `json:"hostname"`
	Address     string            `json:"address"`
	MaxCapacity int               `json:"max_capacity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HeartbeatAck is returned to the agent after a processed heartbeat.
type HeartbeatAck struct {
	Health     Health    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

// Registry provides registration and heartbeat processing over a Store.
type Registry struct {
	store  Store
	clock  clock.Clock
	events Events
	logger *slog.Logger
}

// NewRegistry creates an agent registry.
func NewRegistry(store Store, clk clock.Clock, events Events, logger *slog.Logger) *Registry {
	return &Registry{store: store, clock: clk, events: events, logger: logger}
}

// Register creates an agent record, or updates the existing one when the
// identity is already known. Re-registration refreshes capacity, address
// and metadata but never duplicates the agent or changes its ID. A new
// agent starts offline until its first heartbeat arrives.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*Agent, error) {
	if req.Identity == "" {
		return nil, fmt.Errorf("agent: register: identity is required")
	}
	if req.MaxCapacity < 1 {
		return nil, fmt.Errorf("agent: register: max_capacity must be >= 1, got %d", req.MaxCapacity)
	}

	now := r.clock.Now().UTC()

	existing, err := r.store.GetAgentByIdentity(ctx, req.Identity)
	switch {
	case err == nil:
		existing.Type = req.Type
		existing.Hostname = req.Hostname
		existing.Address = req.Address
		existing.MaxCapacity = req.MaxCapacity
		existing.Metadata = req.Metadata
		if updateErr := r.store.UpdateAgent(ctx, existing); updateErr != nil {
			return nil, fmt.Errorf("agent: re-register %q: %w", req.Identity, updateErr)
		}

		r.logger.Info("agent re-registered",
			slog.String("agent_id", existing.ID.String()),
			slog.String("identity", req.Identity),
			slog.Int("max_capacity", req.MaxCapacity),
		)
		return existing, nil

	case errors.Is(err, dispatch.ErrAgentNotFound):
		// First registration.
	default:
		return nil, fmt.Errorf("agent: register %q: %w", req.Identity, err)
	}

	a := &Agent{
		Entity:      dispatch.NewEntityAt(now),
		ID:          id.NewAgentID(),
		Identity:    req.Identity,
		Type:        req.Type,
		Hostname:    req.Hostname,
		Address:     req.Address,
		MaxCapacity: req.MaxCapacity,
		Health:      HealthOffline,
		Metadata:    req.Metadata,
	}
	if createErr := r.store.CreateAgent(ctx, a); createErr != nil {
		return nil, fmt.Errorf("agent: register %q: %w", req.Identity, createErr)
	}

	if r.events != nil {
		r.events.AgentRegistered(ctx, a)
	}

	r.logger.Info("agent registered",
		slog.String("agent_id", a.ID.String()),
		slog.String("identity", a.Identity),
		slog.String("type", string(a.Type)),
		slog.Int("max_capacity", a.MaxCapacity),
	)
	return a, nil
}

// Heartbeat records a liveness signal: refreshes the last-heartbeat
// timestamp, reconciles the agent's self-reported load, and sets the
// agent healthy. An unhealthy agent heartbeating again is a recovery,
// not an error. Unknown agents get ErrAgentNotFound with no state change.
func (r *Registry) Heartbeat(ctx context.Context, agentID id.AgentID, currentLoad int, metadata map[string]string) (HeartbeatAck, error) {
	a, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		return HeartbeatAck{}, err
	}

	now := r.clock.Now().UTC()
	recovered := a.Health == HealthUnhealthy

	a.LastHeartbeat = &now
	if currentLoad >= 0 {
		a.CurrentLoad = currentLoad
	}
	if metadata != nil {
		a.Metadata = metadata
	}
	a.Health = HealthHealthy

	if err := r.store.UpdateAgent(ctx, a); err != nil {
		return HeartbeatAck{}, fmt.Errorf("agent: heartbeat %s: %w", agentID, err)
	}

	if recovered {
		if r.events != nil {
			r.events.AgentRecovered(ctx, a)
		}
		r.logger.Info("agent recovered",
			slog.String("agent_id", a.ID.String()),
			slog.String("identity", a.Identity),
		)
	}

	return HeartbeatAck{Health: a.Health, ServerTime: now}, nil
}

// Get retrieves an agent by ID.
func (r *Registry) Get(ctx context.Context, agentID id.AgentID) (*Agent, error) {
	return r.store.GetAgent(ctx, agentID)
}

// List returns all registered agents.
func (r *Registry) List(ctx context.Context) ([]*Agent, error) {
	return r.store.ListAgents(ctx)
}
