package agent

import (
	"context"

	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// CountOpts controls filtering for agent count queries.
type CountOpts struct {
	// Health filters by health state. Empty means all states.
	Health Health
	// Type filters by agent type. Empty means all types.
	Type Type
}

// Store defines the persistence contract for the agent registry.
type Store interface {
	// CreateAgent persists a newly registered agent.
	CreateAgent(ctx context.Context, a *Agent) error

	// GetAgent retrieves an agent by ID.
	GetAgent(ctx context.Context, agentID id.AgentID) (*Agent, error)

	// GetAgentByIdentity retrieves an agent by its credential identity.
	// Registration is idempotent per identity.
	GetAgentByIdentity(ctx context.Context, identity string) (*Agent, error)

	// UpdateAgent persists changes to an existing agent.
	UpdateAgent(ctx context.Context, a *Agent) error

	// IncrementAgentLoad atomically raises the agent's current load by
	// one, but only while it is below max capacity. Returns
	// ErrAgentAtCapacity when the agent is already full, so concurrent
	// dispatchers cannot overshoot the capacity limit.
	IncrementAgentLoad(ctx context.Context, agentID id.AgentID) error

	// DecrementAgentLoad atomically lowers the agent's current load by
	// one, never below zero.
	DecrementAgentLoad(ctx context.Context, agentID id.AgentID) error

	// ListAgents returns all registered agents.
	ListAgents(ctx context.Context) ([]*Agent, error)

	// CountAgents returns the number of agents matching the given options.
	CountAgents(ctx context.Context, opts CountOpts) (int64, error)
}
