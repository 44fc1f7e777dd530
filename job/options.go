package job

import (
	"time"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// Options configures per-job behavior at creation time.
type Options struct {
	// Priority determines dispatch ordering. Higher values go first.
	Priority int

	// MaxAttempts is the retry budget before the job moves to the
	// dead letter queue. Zero means use the configured default.
	MaxAttempts int

	// AgentType restricts dispatch to agents of this type.
	AgentType agent.Type

	// ScheduledAt delays dispatch until the given time. Zero means
	// eligible immediately.
	ScheduledAt time.Time

	// WorkflowID tags the job as part of a workflow chain.
	WorkflowID string

	// NextJobID links the job released when this one completes.
	NextJobID id.JobID

	// ParentJobID marks the job as blocked on another job's success.
	ParentJobID id.JobID
}

// Option is a functional option for job creation.
type Option func(*Options)

// WithPriority sets the job priority. Higher values dispatch first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithMaxAttempts sets the retry budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithAgentType restricts dispatch to agents of the given type.
func WithAgentType(t agent.Type) Option {
	return func(o *Options) { o.AgentType = t }
}

// WithScheduledAt delays dispatch until the given time.
func WithScheduledAt(t time.Time) Option {
	return func(o *Options) { o.ScheduledAt = t }
}

// WithWorkflow tags the job with a workflow ID.
func WithWorkflow(workflowID string) Option {
	return func(o *Options) { o.WorkflowID = workflowID }
}

// WithNextJob links the job that this job's completion releases.
func WithNextJob(next id.JobID) Option {
	return func(o *Options) { o.NextJobID = next }
}

// WithParent blocks the job until the given parent completes.
func WithParent(parent id.JobID) Option {
	return func(o *Options) { o.ParentJobID = parent }
}
