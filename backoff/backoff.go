// Package backoff computes retry delays for failed jobs. A Policy is a
// pure function of (configuration, attempt number); the package holds
// no state beyond the registry of named policies, so everything here is
// safe for concurrent use.
package backoff

import (
	"fmt"
	"math"
	"time"
)

// Policy is the retry configuration for one job kind.
type Policy struct {
	// MaxAttempts is the total attempt budget before dead-letter.
	MaxAttempts int `json:"max_attempts"`

	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration `json:"initial_delay"`

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `json:"max_delay"`

	// Multiplier is the exponential growth factor between attempts.
	Multiplier float64 `json:"multiplier"`
}

// Validate checks the policy invariants: at least one attempt, a
// positive initial delay, a cap no smaller than the initial delay, and
// a multiplier of at least 1 (so delays never shrink).
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("backoff: max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("backoff: initial_delay must be > 0, got %v", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("backoff: max_delay %v must be >= initial_delay %v", p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("backoff: multiplier must be >= 1, got %v", p.Multiplier)
	}
	return nil
}

// Delay returns the wait before retry attempt n (1-indexed):
// min(InitialDelay × Multiplier^(n−1), MaxDelay). It is monotonically
// non-decreasing in the attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.MaxDelay || d < 0 {
		// A negative value means the float math overflowed.
		return p.MaxDelay
	}
	return d
}

// DefaultPolicy returns the policy applied to job kinds with no named
// configuration: 3 attempts, 5s initial, 60s cap, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2,
	}
}

// Presets returns the built-in named policies for the platform's job
// kinds. Callers may extend or override them via the Registry.
func Presets() map[string]Policy {
	return map[string]Policy{
		"upload": {
			MaxAttempts:  3,
			InitialDelay: 5 * time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2,
		},
		"webhook": {
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Minute,
			Multiplier:   2,
		},
		"stream-reconnect": {
			MaxAttempts:  5,
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   1.5,
		},
	}
}
