package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/muhammadiwa/youtube-automation-sub005/api"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/engine"
	"github.com/muhammadiwa/youtube-automation-sub005/health"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// ListDeadLetterJobs returns jobs that exhausted their retry budget.
func (c *Client) ListDeadLetterJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	q := url.Values{}
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
	if err := c.get(ctx, basePath+"/dlq/jobs?"+q.Encode(), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListAlerts returns DLQ alerts; pendingOnly restricts the result to
// alerts still awaiting acknowledgement and delivery.
func (c *Client) ListAlerts(ctx context.Context, pendingOnly bool) ([]*dlq.Alert, error) {
	path := basePath + "/dlq/alerts"
	if pendingOnly {
		path += "?pending=true"
	}

	var alerts []*dlq.Alert
	if err := c.get(ctx, path, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as handled by the given operator.
// Acknowledging twice is a no-op.
func (c *Client) AcknowledgeAlert(ctx context.Context, alertID id.AlertID, by string) (*dlq.Alert, error) {
	var alert dlq.Alert
	err := c.post(ctx, fmt.Sprintf("%s/dlq/alerts/%s/ack", basePath, alertID), api.AcknowledgeRequest{By: by}, &alert)
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// ProcessAlerts delivers pending alerts now instead of waiting for the
// next scheduled sweep. Returns the number delivered.
func (c *Client) ProcessAlerts(ctx context.Context) (int, error) {
	var resp api.ProcessAlertsResponse
	if err := c.post(ctx, basePath+"/dlq/alerts/process", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Delivered, nil
}

// RequeueJobs sends dead-lettered jobs back to the queue.
func (c *Client) RequeueJobs(ctx context.Context, req api.RequeueRequest) (*api.RequeueResponse, error) {
	var resp api.RequeueResponse
	if err := c.post(ctx, basePath+"/dlq/requeue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthSweep runs one agent health check pass immediately.
func (c *Client) HealthSweep(ctx context.Context) (*health.Summary, error) {
	var summary health.Summary
	if err := c.post(ctx, basePath+"/health/sweep", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Stats returns system-wide counters.
func (c *Client) Stats(ctx context.Context) (*engine.Stats, error) {
	var s engine.Stats
	if err := c.get(ctx, basePath+"/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}
