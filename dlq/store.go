package dlq

import (
	"context"
	"time"

	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

// ListOpts controls pagination and filtering for alert list queries.
type ListOpts struct {
	// Limit is the maximum number of alerts to return. Zero means no limit.
	Limit int
	// Offset is the number of alerts to skip.
	Offset int
	// PendingOnly restricts the result to unacknowledged alerts whose
	// notification has not yet been delivered.
	PendingOnly bool
}

// Store defines the persistence contract for DLQ alerts.
type Store interface {
	// CreateAlert persists a new alert. Returns ErrAlertAlreadyExists
	// when the job already has one; a job is alerted exactly once.
	CreateAlert(ctx context.Context, a *Alert) error

	// GetAlert retrieves an alert by ID.
	GetAlert(ctx context.Context, alertID id.AlertID) (*Alert, error)

	// UpdateAlert persists changes to an existing alert.
	UpdateAlert(ctx context.Context, a *Alert) error

	// ListAlerts returns alerts matching the given options, oldest first.
	ListAlerts(ctx context.Context, opts ListOpts) ([]*Alert, error)

	// PurgeAlerts removes alerts created before the given time.
	// Returns the number removed.
	PurgeAlerts(ctx context.Context, before time.Time) (int64, error)

	// CountAlerts returns the total number of alerts.
	CountAlerts(ctx context.Context) (int64, error)
}
