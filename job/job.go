// Package job defines the Job record tracked through the dispatch
// lifecycle and its persistence contract. Jobs reference agents and
// each other by ID only; chains survive serialization and process
// restarts, and an agent reference is weak — cleared, never cascaded,
// when the agent disappears.
package job

import (
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is waiting for dispatch to an agent.
	StatusQueued Status = "queued"
	// StatusBlocked means the job waits on its parent in a workflow
	// chain; the parent's successful completion releases it to queued.
	StatusBlocked Status = "blocked"
	// StatusProcessing means the job is assigned to an agent.
	StatusProcessing Status = "processing"
	// StatusCompleted means an agent reported success. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed means an agent reported failure and the retry
	// engine has not yet requeued the job.
	StatusFailed Status = "failed"
	// StatusDeadLetter means the job exhausted its retry budget.
	// Terminal unless an operator requeues it.
	StatusDeadLetter Status = "dead_letter"
)

// Terminal reports whether the status admits no further automatic
// transitions. Dead-letter jobs leave the state only via operator
// requeue.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeadLetter
}

// Job represents a unit of asynchronous work.
type Job struct {
	dispatch.Entity

	ID          id.JobID       `json:"id"`
	Type        string         `json:"job_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Priority    int            `json:"priority"`
	Status      Status         `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`

	// AgentID is the weak reference to the assigned agent. Nil while
	// queued; cleared when the health monitor reclaims the job.
	AgentID id.AgentID `json:"agent_id,omitempty"`
	// AgentType restricts dispatch to agents of this type. Empty means
	// any agent may take the job.
	AgentType agent.Type `json:"agent_type,omitempty"`

	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`

	// Workflow chaining. NextJobID points at the job released when this
	// one completes; ParentJobID points back at the job this one waits on.
	WorkflowID  string   `json:"workflow_id,omitempty"`
	NextJobID   id.JobID `json:"next_job_id,omitempty"`
	ParentJobID id.JobID `json:"parent_job_id,omitempty"`

	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	MovedToDLQAt *time.Time `json:"moved_to_dlq_at,omitempty"`
}

// Due reports whether the job may be dispatched at the given time:
// neither its schedule nor its retry backoff is still pending.
func (j *Job) Due(now time.Time) bool {
	if j.ScheduledAt != nil && j.ScheduledAt.After(now) {
		return false
	}
	if j.NextRetryAt != nil && j.NextRetryAt.After(now) {
		return false
	}
	return true
}
