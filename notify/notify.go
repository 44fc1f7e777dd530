// Package notify provides alert delivery channels for the dead letter
// queue: structured log, HTTP webhook, and Redis pub/sub. Each channel
// implements dlq.Notifier and is fanned out by the DLQ service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muhammadiwa/youtube-automation-sub005/dlq"
)

// payload is the wire form of an alert sent to external channels.
type payload struct {
	AlertID      string    `json:"alert_id"`
	JobID        string    `json:"job_id"`
	JobType      string    `json:"job_type"`
	ErrorMessage string    `json:"error_message"`
	Attempts     int       `json:"attempts"`
	RaisedAt     time.Time `json:"raised_at"`
}

func alertPayload(a *dlq.Alert) payload {
	return payload{
		AlertID:      a.ID.String(),
		JobID:        a.JobID.String(),
		JobType:      a.JobType,
		ErrorMessage: a.ErrorMessage,
		Attempts:     a.Attempts,
		RaisedAt:     a.CreatedAt,
	}
}

// ──────────────────────────────────────────────────
// Log channel
// ──────────────────────────────────────────────────

// LogNotifier writes alerts to the structured log. It never fails, so
// it is a safe default channel for development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log channel.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, a *dlq.Alert) error {
	n.logger.Error("dead letter alert",
		slog.String("alert_id", a.ID.String()),
		slog.String("job_id", a.JobID.String()),
		slog.String("job_type", a.JobType),
		slog.Int("attempts", a.Attempts),
		slog.String("error", a.ErrorMessage),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Webhook channel
// ──────────────────────────────────────────────────

// WebhookNotifier POSTs alerts as JSON to a configured endpoint.
// Any non-2xx response counts as a delivery failure, leaving the alert
// pending for the next sweep.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel. A nil client uses a
// default with a 10 second timeout.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Send(ctx context.Context, a *dlq.Alert) error {
	body, err := json.Marshal(alertPayload(a))
	if err != nil {
		return fmt.Errorf("notify: marshal alert %s: %w", a.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Redis channel
// ──────────────────────────────────────────────────

// RedisNotifier publishes alerts as JSON on a Redis pub/sub channel so
// external dashboards and bots can subscribe.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisNotifier creates a Redis pub/sub channel.
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Name() string { return "redis" }

func (n *RedisNotifier) Send(ctx context.Context, a *dlq.Alert) error {
	body, err := json.Marshal(alertPayload(a))
	if err != nil {
		return fmt.Errorf("notify: marshal alert %s: %w", a.ID, err)
	}
	if err := n.client.Publish(ctx, n.channel, body).Err(); err != nil {
		return fmt.Errorf("notify: publish to %q: %w", n.channel, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ dlq.Notifier = (*LogNotifier)(nil)
	_ dlq.Notifier = (*WebhookNotifier)(nil)
	_ dlq.Notifier = (*RedisNotifier)(nil)
)
