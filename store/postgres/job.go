package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

const jobColumns = `
	id, job_type, payload, priority, status, attempts, max_attempts,
	agent_id, agent_type, result, error, workflow_id, next_job_id,
	parent_job_id, scheduled_at, next_retry_at, started_at, completed_at,
	moved_to_dlq_at, created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_jobs (
			id, job_type, payload, priority, status, attempts, max_attempts,
			agent_id, agent_type, result, error, workflow_id, next_job_id,
			parent_job_id, scheduled_at, next_retry_at, started_at, completed_at,
			moved_to_dlq_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21
		)`,
		j.ID, j.Type, j.Payload, j.Priority, string(j.Status),
		j.Attempts, j.MaxAttempts,
		j.AgentID, string(j.AgentType), j.Result, j.Error,
		j.WorkflowID, j.NextJobID, j.ParentJobID,
		j.ScheduledAt, j.NextRetryAt, j.StartedAt, j.CompletedAt,
		j.MovedToDLQAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrJobAlreadyExists
		}
		return fmt.Errorf("dispatch/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+jobColumns+` FROM dispatch_jobs WHERE id = $1`,
		jobID,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrJobNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_jobs SET
			job_type = $2, payload = $3, priority = $4, status = $5,
			attempts = $6, max_attempts = $7, agent_id = $8, agent_type = $9,
			result = $10, error = $11, workflow_id = $12, next_job_id = $13,
			parent_job_id = $14, scheduled_at = $15, next_retry_at = $16,
			started_at = $17, completed_at = $18, moved_to_dlq_at = $19,
			updated_at = NOW()
		WHERE id = $1`,
		j.ID, j.Type, j.Payload, j.Priority, string(j.Status),
		j.Attempts, j.MaxAttempts, j.AgentID, string(j.AgentType),
		j.Result, j.Error, j.WorkflowID, j.NextJobID,
		j.ParentJobID, j.ScheduledAt, j.NextRetryAt,
		j.StartedAt, j.CompletedAt, j.MovedToDLQAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}
	return nil
}

// ClaimJob atomically moves a queued, due job to processing and assigns
// it to the given agent. The conditional UPDATE is the race arbiter: of
// two concurrent claims at most one matches the queued row.
func (s *Store) ClaimJob(ctx context.Context, jobID id.JobID, agentID id.AgentID, now time.Time) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs SET
			status = 'processing', agent_id = $2, started_at = $3, updated_at = $3
		WHERE id = $1
		  AND status = 'queued'
		  AND (scheduled_at IS NULL OR scheduled_at <= $3)
		  AND (next_retry_at IS NULL OR next_retry_at <= $3)
		RETURNING`+jobColumns,
		jobID, agentID, now,
	)

	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("dispatch/postgres: claim job: %w", err)
	}

	// The claim missed; read the row back to report why.
	current, getErr := s.GetJob(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != job.StatusQueued {
		return nil, fmt.Errorf("%w: job %s is %s", dispatch.ErrInvalidState, jobID, current.Status)
	}
	return nil, fmt.Errorf("%w: job %s", dispatch.ErrJobNotDue, jobID)
}

// ListJobsByStatus returns jobs matching the given status, ordered by
// priority (descending) then creation time (ascending).
func (s *Store) ListJobsByStatus(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT` + jobColumns + ` FROM dispatch_jobs WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}

	query += " ORDER BY priority DESC, created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list jobs by status: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListJobsByAgent returns jobs in the given status assigned to the
// given agent.
func (s *Store) ListJobsByAgent(ctx context.Context, agentID id.AgentID, status job.Status) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+jobColumns+` FROM dispatch_jobs
		WHERE agent_id = $1 AND status = $2
		ORDER BY created_at ASC`,
		agentID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list jobs by agent: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM dispatch_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("dispatch/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j            job.Job
		statusStr    string
		agentTypeStr string
	)
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &j.Priority, &statusStr,
		&j.Attempts, &j.MaxAttempts,
		&j.AgentID, &agentTypeStr, &j.Result, &j.Error,
		&j.WorkflowID, &j.NextJobID, &j.ParentJobID,
		&j.ScheduledAt, &j.NextRetryAt, &j.StartedAt, &j.CompletedAt,
		&j.MovedToDLQAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(statusStr)
	j.AgentType = agent.Type(agentTypeStr)
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
