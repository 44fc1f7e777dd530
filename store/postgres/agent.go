package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

const agentColumns = `
	id, identity, type, hostname, address, max_capacity, current_load,
	health, last_heartbeat, metadata, created_at, updated_at`

// CreateAgent persists a newly registered agent.
func (s *Store) CreateAgent(ctx context.Context, a *agent.Agent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_agents (
			id, identity, type, hostname, address, max_capacity, current_load,
			health, last_heartbeat, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Identity, string(a.Type), a.Hostname, a.Address,
		a.MaxCapacity, a.CurrentLoad, string(a.Health),
		a.LastHeartbeat, a.Metadata, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(ctx context.Context, agentID id.AgentID) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+agentColumns+` FROM dispatch_agents WHERE id = $1`,
		agentID,
	)

	a, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrAgentNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get agent: %w", err)
	}
	return a, nil
}

// GetAgentByIdentity retrieves an agent by its credential identity.
func (s *Store) GetAgentByIdentity(ctx context.Context, identity string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+agentColumns+` FROM dispatch_agents WHERE identity = $1`,
		identity,
	)

	a, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrAgentNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get agent by identity: %w", err)
	}
	return a, nil
}

// UpdateAgent persists changes to an existing agent.
func (s *Store) UpdateAgent(ctx context.Context, a *agent.Agent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_agents SET
			identity = $2, type = $3, hostname = $4, address = $5,
			max_capacity = $6, current_load = $7, health = $8,
			last_heartbeat = $9, metadata = $10, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Identity, string(a.Type), a.Hostname, a.Address,
		a.MaxCapacity, a.CurrentLoad, string(a.Health),
		a.LastHeartbeat, a.Metadata,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrAgentNotFound
	}
	return nil
}

// IncrementAgentLoad raises the agent's load by one while below max
// capacity. The guard lives in the WHERE clause, so concurrent
// dispatchers racing for the last slot get exactly one win.
func (s *Store) IncrementAgentLoad(ctx context.Context, agentID id.AgentID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_agents SET
			current_load = current_load + 1, updated_at = NOW()
		WHERE id = $1 AND current_load < max_capacity`,
		agentID,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: increment agent load: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a full agent from a missing one.
		if _, getErr := s.GetAgent(ctx, agentID); getErr != nil {
			return getErr
		}
		return dispatch.ErrAgentAtCapacity
	}
	return nil
}

// DecrementAgentLoad lowers the agent's load by one, never below zero.
func (s *Store) DecrementAgentLoad(ctx context.Context, agentID id.AgentID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_agents SET
			current_load = GREATEST(current_load - 1, 0), updated_at = NOW()
		WHERE id = $1`,
		agentID,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: decrement agent load: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrAgentNotFound
	}
	return nil
}

// ListAgents returns all registered agents, oldest first.
func (s *Store) ListAgents(ctx context.Context) ([]*agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+agentColumns+` FROM dispatch_agents ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list agents: %w", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, scanErr := scanAgent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan agent row: %w", scanErr)
		}
		agents = append(agents, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate agent rows: %w", err)
	}
	return agents, nil
}

// CountAgents returns the number of agents matching the given options.
func (s *Store) CountAgents(ctx context.Context, opts agent.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM dispatch_agents WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Health != "" {
		query += fmt.Sprintf(" AND health = $%d", argIdx)
		args = append(args, string(opts.Health))
		argIdx++
	}
	if opts.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(opts.Type))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("dispatch/postgres: count agents: %w", err)
	}
	return count, nil
}

// scanAgent scans a single agent row.
func scanAgent(row pgx.Row) (*agent.Agent, error) {
	var (
		a         agent.Agent
		typeStr   string
		healthStr string
	)
	err := row.Scan(
		&a.ID, &a.Identity, &typeStr, &a.Hostname, &a.Address,
		&a.MaxCapacity, &a.CurrentLoad, &healthStr,
		&a.LastHeartbeat, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = agent.Type(typeStr)
	a.Health = agent.Health(healthStr)
	return &a, nil
}
