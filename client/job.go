package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/muhammadiwa/youtube-automation-sub005/api"
	"github.com/muhammadiwa/youtube-automation-sub005/completion"
	"github.com/muhammadiwa/youtube-automation-sub005/dispatcher"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// CreateJob submits a job; it waits in the queue for the next dispatch
// sweep or an explicit DispatchJob call.
func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (*job.Job, error) {
	req.Dispatch = false
	var j job.Job
	if err := c.post(ctx, basePath+"/jobs", req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateAndDispatch submits a job and requests immediate assignment.
// The result reports whether the job was dispatched or deferred.
func (c *Client) CreateAndDispatch(ctx context.Context, req api.CreateJobRequest) (*dispatcher.Result, error) {
	req.Dispatch = true
	var res dispatcher.Result
	if err := c.post(ctx, basePath+"/jobs", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var j job.Job
	if err := c.get(ctx, fmt.Sprintf("%s/jobs/%s", basePath, jobID), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns jobs in the given status. An empty status lists
// queued jobs.
func (c *Client) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var jobs []*job.Job
	if err := c.get(ctx, basePath+"/jobs?"+q.Encode(), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// DispatchJob asks the server to assign a queued job now. A dispatch
// with no available agent succeeds with a deferred result.
func (c *Client) DispatchJob(ctx context.Context, jobID id.JobID) (*dispatcher.Result, error) {
	var res dispatcher.Result
	if err := c.post(ctx, fmt.Sprintf("%s/jobs/%s/dispatch", basePath, jobID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CompleteJob reports the outcome of a processing job on behalf of the
// agent that ran it. The response carries the finished job and whether
// a chained successor was released.
func (c *Client) CompleteJob(ctx context.Context, jobID id.JobID, agentID id.AgentID, report completion.Report) (*api.CompleteJobResponse, error) {
	req := api.CompleteJobRequest{AgentID: agentID.String(), Report: report}
	var resp api.CompleteJobResponse
	if err := c.post(ctx, fmt.Sprintf("%s/jobs/%s/complete", basePath, jobID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateWorkflow submits a linear chain of jobs. The first step is
// queued; each later step is released when its predecessor succeeds.
func (c *Client) CreateWorkflow(ctx context.Context, req api.CreateWorkflowRequest) ([]*job.Job, error) {
	var jobs []*job.Job
	if err := c.post(ctx, basePath+"/workflows", req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
