package client

import (
	"context"
	"fmt"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/api"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// RegisterAgent registers a worker with the dispatch server. It is
// idempotent per identity: re-registering refreshes the agent record.
func (c *Client) RegisterAgent(ctx context.Context, req agent.RegisterRequest) (*agent.Agent, error) {
	var ag agent.Agent
	if err := c.post(ctx, basePath+"/agents/register", req, &ag); err != nil {
		return nil, err
	}
	return &ag, nil
}

// Heartbeat reports agent liveness and current load. The returned ack
// carries the server's view of the agent's health and the server time.
func (c *Client) Heartbeat(ctx context.Context, agentID id.AgentID, req api.HeartbeatRequest) (agent.HeartbeatAck, error) {
	var ack agent.HeartbeatAck
	err := c.post(ctx, fmt.Sprintf("%s/agents/%s/heartbeat", basePath, agentID), req, &ack)
	return ack, err
}

// ListAgents returns all registered agents.
func (c *Client) ListAgents(ctx context.Context) ([]*agent.Agent, error) {
	var agents []*agent.Agent
	if err := c.get(ctx, basePath+"/agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// GetAgent retrieves an agent by ID.
func (c *Client) GetAgent(ctx context.Context, agentID id.AgentID) (*agent.Agent, error) {
	var ag agent.Agent
	if err := c.get(ctx, fmt.Sprintf("%s/agents/%s", basePath, agentID), &ag); err != nil {
		return nil, err
	}
	return &ag, nil
}
