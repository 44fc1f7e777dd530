// Package observability records dispatch lifecycle metrics through the
// OpenTelemetry metric API. Register the MetricsExtension with the
// extension registry to track enqueue, dispatch, completion, retry,
// dead-letter, and agent health counts.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/muhammadiwa/youtube-automation-sub005/agent"
	"github.com/muhammadiwa/youtube-automation-sub005/ext"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobDispatched   = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.AgentUnhealthy  = (*MetricsExtension)(nil)
	_ ext.AgentRecovered  = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events. Counters carry the job type
// (or agent type) as an attribute so dashboards can slice per kind.
type MetricsExtension struct {
	jobsEnqueued    metric.Int64Counter
	jobsDispatched  metric.Int64Counter
	jobsCompleted   metric.Int64Counter
	jobsRetried     metric.Int64Counter
	jobsDeadLetter  metric.Int64Counter
	jobDuration     metric.Float64Histogram
	agentsUnhealthy metric.Int64Counter
	agentsRecovered metric.Int64Counter
	jobsReassigned  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	meter := otel.GetMeterProvider().Meter("github.com/muhammadiwa/youtube-automation-sub005/observability")
	return NewMetricsExtensionWithMeter(meter)
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the given
// meter. Use a custom provider in tests or multi-tenant processes.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}

	var err error
	if m.jobsEnqueued, err = meter.Int64Counter("dispatch.jobs.enqueued"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobsDispatched, err = meter.Int64Counter("dispatch.jobs.dispatched"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobsCompleted, err = meter.Int64Counter("dispatch.jobs.completed"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobsRetried, err = meter.Int64Counter("dispatch.jobs.retried"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobsDeadLetter, err = meter.Int64Counter("dispatch.jobs.dead_lettered"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobDuration, err = meter.Float64Histogram("dispatch.jobs.duration_seconds"); err != nil {
		return nil, fmt.Errorf("observability: create histogram: %w", err)
	}
	if m.agentsUnhealthy, err = meter.Int64Counter("dispatch.agents.marked_unhealthy"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.agentsRecovered, err = meter.Int64Counter("dispatch.agents.recovered"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobsReassigned, err = meter.Int64Counter("dispatch.jobs.reassigned"); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}

	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_type", j.Type))
}

func agentAttrs(a *agent.Agent) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("agent_type", string(a.Type)))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobsEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobDispatched implements ext.JobDispatched.
func (m *MetricsExtension) OnJobDispatched(ctx context.Context, j *job.Job, _ *agent.Agent) error {
	m.jobsDispatched.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.jobsCompleted.Add(ctx, 1, jobAttrs(j))
	m.jobDuration.Record(ctx, elapsed.Seconds(), jobAttrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobsRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, _ string) error {
	m.jobsDeadLetter.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnAgentUnhealthy implements ext.AgentUnhealthy.
func (m *MetricsExtension) OnAgentUnhealthy(ctx context.Context, a *agent.Agent, jobsReassigned int) error {
	m.agentsUnhealthy.Add(ctx, 1, agentAttrs(a))
	m.jobsReassigned.Add(ctx, int64(jobsReassigned), agentAttrs(a))
	return nil
}

// OnAgentRecovered implements ext.AgentRecovered.
func (m *MetricsExtension) OnAgentRecovered(ctx context.Context, a *agent.Agent) error {
	m.agentsRecovered.Add(ctx, 1, agentAttrs(a))
	return nil
}
