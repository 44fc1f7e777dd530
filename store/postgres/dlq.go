package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/muhammadiwa/youtube-automation-sub005"
	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
	"github.com/muhammadiwa/youtube-automation-sub005/id"
)

const alertColumns = `
	id, job_id, job_type, error_message, attempts,
	acknowledged, acknowledged_by, acknowledged_at,
	notification_sent, notified_at, channels, created_at, updated_at`

// CreateAlert persists a new alert. The unique index on job_id makes
// the one-alert-per-job rule hold across concurrent dead-letter paths.
func (s *Store) CreateAlert(ctx context.Context, a *dlq.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_alerts (
			id, job_id, job_type, error_message, attempts,
			acknowledged, acknowledged_by, acknowledged_at,
			notification_sent, notified_at, channels, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.JobID, a.JobType, a.ErrorMessage, a.Attempts,
		a.Acknowledged, a.AcknowledgedBy, a.AcknowledgedAt,
		a.NotificationSent, a.NotifiedAt, a.Channels,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrAlertAlreadyExists
		}
		return fmt.Errorf("dispatch/postgres: create alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID.
func (s *Store) GetAlert(ctx context.Context, alertID id.AlertID) (*dlq.Alert, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+alertColumns+` FROM dispatch_alerts WHERE id = $1`,
		alertID,
	)

	a, err := scanAlert(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrAlertNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get alert: %w", err)
	}
	return a, nil
}

// UpdateAlert persists changes to an existing alert.
func (s *Store) UpdateAlert(ctx context.Context, a *dlq.Alert) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_alerts SET
			job_type = $2, error_message = $3, attempts = $4,
			acknowledged = $5, acknowledged_by = $6, acknowledged_at = $7,
			notification_sent = $8, notified_at = $9, channels = $10,
			updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.JobType, a.ErrorMessage, a.Attempts,
		a.Acknowledged, a.AcknowledgedBy, a.AcknowledgedAt,
		a.NotificationSent, a.NotifiedAt, a.Channels,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrAlertNotFound
	}
	return nil
}

// ListAlerts returns alerts matching the given options, oldest first.
func (s *Store) ListAlerts(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM dispatch_alerts WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.PendingOnly {
		query += " AND NOT acknowledged AND NOT notification_sent"
	}

	query += " ORDER BY created_at ASC"

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
		return nil, fmt.Errorf("dispatch/postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*dlq.Alert
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan alert row: %w", scanErr)
		}
		alerts = append(alerts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate alert rows: %w", err)
	}
	return alerts, nil
}

// PurgeAlerts removes alerts created before the given time.
func (s *Store) PurgeAlerts(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM dispatch_alerts WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("dispatch/postgres: purge alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountAlerts returns the total number of alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dispatch_alerts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("dispatch/postgres: count alerts: %w", err)
	}
	return count, nil
}

// scanAlert scans a single alert row.
func scanAlert(row pgx.Row) (*dlq.Alert, error) {
	var a dlq.Alert
	err := row.Scan(
		&a.ID, &a.JobID, &a.JobType, &a.ErrorMessage, &a.Attempts,
		&a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt,
		&a.NotificationSent, &a.NotifiedAt, &a.Channels,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
