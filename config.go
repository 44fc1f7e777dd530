package dispatch

import "time"

// Config holds core-wide configuration.
type Config struct {
	// UnhealthyThreshold is how long an agent may go without a
	// heartbeat before a health sweep marks it unhealthy.
	UnhealthyThreshold time.Duration

	// SweepInterval is the cadence at which the sweeper invokes the
	// health monitor. The monitor itself is not self-scheduling.
	SweepInterval time.Duration

	// AlertSweepInterval is the cadence at which pending DLQ alerts
	// are (re)delivered.
	AlertSweepInterval time.Duration

	// DefaultMaxAttempts is the retry budget for jobs created without
	// an explicit one.
	DefaultMaxAttempts int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UnhealthyThreshold: 60 * time.Second,
		SweepInterval:      30 * time.Second,
		AlertSweepInterval: time.Minute,
		DefaultMaxAttempts: 3,
		ShutdownTimeout:    30 * time.Second,
	}
}
