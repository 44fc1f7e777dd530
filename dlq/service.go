package dlq

import (
	"context"
	"fmt"
	"log/slog"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/clock"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
	"github.com/muhammadiwa/youtube-automation-sub005/job"
)

// Notifier delivers an alert over one external channel (log, webhook,
// pub/sub). Implementations live in the notify package.
type Notifier interface {
	// Name identifies the channel, recorded on the alert after delivery.
	Name() string
	// Send delivers the alert. A returned error leaves the alert
	// pending for the next sweep.
	Send(ctx context.Context, a *Alert) error
}

// Service provides DLQ operations over a Store: raising alerts for
// dead-lettered jobs, delivering pending notifications, and the
// operator acknowledge/requeue surface.
type Service struct {
	store     Store
	jobs      job.Store
	clock     clock.Clock
	notifiers []Notifier
	logger    *slog.Logger
}

// NewService creates a DLQ service.
func NewService(store Store, jobs job.Store, clk clock.Clock, logger *slog.Logger, notifiers ...Notifier) *Service {
	return &Service{
		store:     store,
		jobs:      jobs,
		clock:     clk,
		notifiers: notifiers,
		logger:    logger,
	}
}

// CreateForJob raises the alert for a job that just moved to the dead
// letter queue. The store enforces exactly-once per job: a duplicate
// create surfaces ErrAlertAlreadyExists to the caller.
func (s *Service) CreateForJob(ctx context.Context, j *job.Job) (*Alert, error) {
	now := s.clock.Now().UTC()
	a := &Alert{
		Entity:       dispatch.NewEntityAt(now),
		ID:           id.NewAlertID(),
		JobID:        j.ID,
		JobType:      j.Type,
		ErrorMessage: j.Error,
		Attempts:     j.Attempts,
	}
	if err := s.store.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("dlq: alert for job %s: %w", j.ID, err)
	}

	s.logger.Warn("job dead-lettered, alert raised",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("attempts", j.Attempts),
		slog.String("alert_id", a.ID.String()),
	)
	return a, nil
}

// ProcessPendingAlerts attempts delivery of every unacknowledged,
// not-yet-notified alert over all configured channels. Delivery is
// at-least-once: an alert is marked sent only when every channel
// succeeded; otherwise it stays pending for the next sweep. Returns the
// number of alerts delivered.
func (s *Service) ProcessPendingAlerts(ctx context.Context) (int, error) {
	pending, err := s.store.ListAlerts(ctx, ListOpts{PendingOnly: true})
	if err != nil {
		return 0, fmt.Errorf("dlq: list pending alerts: %w", err)
	}

	delivered := 0
	for _, a := range pending {
		if !s.deliver(ctx, a) {
			continue
		}

		now := s.clock.Now().UTC()
		a.NotificationSent = true
		a.NotifiedAt = &now
		a.Channels = s.channelNames()
		if updateErr := s.store.UpdateAlert(ctx, a); updateErr != nil {
			s.logger.Error("failed to mark alert as sent",
				slog.String("alert_id", a.ID.String()),
				slog.String("error", updateErr.Error()),
			)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// deliver sends the alert over every channel, reporting whether all
// succeeded.
func (s *Service) deliver(ctx context.Context, a *Alert) bool {
	ok := true
	for _, n := range s.notifiers {
		if err := n.Send(ctx, a); err != nil {
			s.logger.Warn("alert delivery failed, will retry on next sweep",
				slog.String("alert_id", a.ID.String()),
				slog.String("channel", n.Name()),
				slog.String("error", err.Error()),
			)
			ok = false
		}
	}
	return ok
}

func (s *Service) channelNames() []string {
	names := make([]string, 0, len(s.notifiers))
	for _, n := range s.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Acknowledge records operator bookkeeping on the alert. It does not
// mutate the underlying job. Acknowledging twice is a no-op.
func (s *Service) Acknowledge(ctx context.Context, alertID id.AlertID, by string) (*Alert, error) {
	a, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Acknowledged {
		return a, nil
	}

	now := s.clock.Now().UTC()
	a.Acknowledged = true
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &now
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("dlq: acknowledge %s: %w", alertID, err)
	}
	return a, nil
}

// Requeue moves a dead-lettered (or failed) job back to queued. With
// resetAttempts the retry budget starts over; without it the existing
// count is kept, so the job may immediately re-exhaust its budget — an
// explicit operator choice. Any other source status is ErrInvalidState.
func (s *Service) Requeue(ctx context.Context, jobID id.JobID, resetAttempts bool) (*job.Job, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusDeadLetter && j.Status != job.StatusFailed {
		return nil, fmt.Errorf("dlq: requeue %s from %q: %w", jobID, j.Status, dispatch.ErrInvalidState)
	}

	j.Status = job.StatusQueued
	j.AgentID = id.Nil
	j.NextRetryAt = nil
	j.MovedToDLQAt = nil
	j.StartedAt = nil
	if resetAttempts {
		j.Attempts = 0
	}

	if err := s.jobs.UpdateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("dlq: requeue %s: %w", jobID, err)
	}

	s.logger.Info("job requeued from dead letter queue",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Bool("reset_attempts", resetAttempts),
		slog.Int("attempts", j.Attempts),
	)
	return j, nil
}

// RequeueMany requeues a batch of jobs, collecting per-job failures
// without aborting the batch. Returns the successfully requeued jobs.
func (s *Service) RequeueMany(ctx context.Context, jobIDs []id.JobID, resetAttempts bool) ([]*job.Job, error) {
	var requeued []*job.Job
	var firstErr error
	for _, jid := range jobIDs {
		j, err := s.Requeue(ctx, jid, resetAttempts)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		requeued = append(requeued, j)
	}
	return requeued, firstErr
}

// ListDeadLetterJobs returns jobs currently in the dead letter queue.
func (s *Service) ListDeadLetterJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return s.jobs.ListJobsByStatus(ctx, job.StatusDeadLetter, opts)
}

// Alerts exposes the underlying alert store for listing and counting.
func (s *Service) Alerts() Store { return s.store }
