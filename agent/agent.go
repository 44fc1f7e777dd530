package agent

import (
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// Type classifies what kind of work an agent performs.
type Type string

const (
	// TypeTranscode marks agents running video transcode pipelines.
	TypeTranscode Type = "transcode"
	// TypeRelay marks agents relaying RTMP streams.
	TypeRelay Type = "relay"
	// TypeAutomation marks agents driving browser automation sessions.
	TypeAutomation Type = "automation"
)

// Health represents the liveness state of an agent.
type Health string

const (
	// HealthHealthy means the agent heartbeats within the threshold.
	HealthHealthy Health = "healthy"
	// HealthUnhealthy means the agent missed its heartbeat window; its
	// in-flight jobs have been reclaimed.
	HealthUnhealthy Health = "unhealthy"
	// HealthOffline means the agent registered but has not yet sent a
	// heartbeat. There is no automatic transition back to offline.
	HealthOffline Health = "offline"
)

// Agent represents a remote worker process registered with the core.
// Load and capacity are self-reported via heartbeats; the dispatcher
// additionally enforces capacity at assignment time.
type Agent struct {
	dispatch.Entity

	ID            id.AgentID        `json:"id"`
	Identity      string            `json:"identity"`
	Type          Type              `json:"type"`
	Hostname      string            `json:"hostname"`
	Address       string            `json:"address"`
	MaxCapacity   int               `json:"max_capacity"`
	CurrentLoad   int               `json:"current_load"`
	Health        Health            `json:"health"`
	LastHeartbeat *time.Time        `json:"last_heartbeat,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Available reports whether the agent may accept another job:
// healthy and under its capacity.
func (a *Agent) Available() bool {
	return a.Health == HealthHealthy && a.CurrentLoad < a.MaxCapacity
}
