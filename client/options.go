package client

import (
	"log/slog"
	"net/http"
)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
