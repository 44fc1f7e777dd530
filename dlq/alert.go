// Package dlq holds jobs that exhausted their retry budget and the
// operator alerts raised for them. Every dead-lettered job gets exactly
// one Alert; delivery to notification channels is at-least-once, and
// acknowledge/requeue are the operator's recovery surface.
package dlq

import (
	"time"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// Alert is the operator-facing record created when a job moves to the
// dead letter queue. Job fields are denormalized for cheap listing.
type Alert struct {
	dispatch.Entity

	ID           id.AlertID `json:"id"`
	JobID        id.JobID   `json:"job_id"`
	JobType      string     `json:"job_type"`
	ErrorMessage string     `json:"error_message"`
	Attempts     int        `json:"attempts"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	NotificationSent bool       `json:"notification_sent"`
	NotifiedAt       *time.Time `json:"notified_at,omitempty"`
	Channels         []string   `json:"channels,omitempty"`
}

// Pending reports whether the alert still needs notification delivery.
func (a *Alert) Pending() bool {
	return !a.Acknowledged && !a.NotificationSent
}
