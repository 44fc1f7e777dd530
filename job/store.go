package job

import (
	"context"
	"time"

	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Type filters by job type. Empty means all types.
	Type string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Type filters by job type. Empty means all types.
	Type string
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// ClaimJob atomically moves a queued, due job to processing and
	// assigns it to the given agent, setting StartedAt to now. Two
	// concurrent claims for the same job cannot both succeed. Returns
	// ErrInvalidState when the job is not queued and ErrJobNotDue when
	// its schedule or retry backoff has not yet elapsed.
	ClaimJob(ctx context.Context, jobID id.JobID, agentID id.AgentID, now time.Time) (*Job, error)

	// ListJobsByStatus returns jobs matching the given status, ordered
	// by priority (descending) then creation time (ascending).
	ListJobsByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// ListJobsByAgent returns jobs in the given status assigned to the
	// given agent.
	ListJobsByAgent(ctx context.Context, agentID id.AgentID, status Status) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
