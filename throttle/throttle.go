// Package throttle applies per-job-type dispatch limits: a token-bucket
// rate limit on assignments and a cap on concurrently processing jobs.
// The dispatcher calls Acquire before assigning a job; whoever moves the
// job out of processing (completion handler or health monitor) calls
// Release.
package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines dispatch limits for one job type.
type Config struct {
	// Type is the job type the limits apply to.
	Type string

	// MaxConcurrent caps how many jobs of this type may be processing
	// at once across all agents. Zero means no cap.
	MaxConcurrent int

	// RateLimit is the maximum sustained dispatches per second.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single job type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Limiter controls per-job-type dispatch throttling.
// It is safe for concurrent use. Job types without a Config are
// unlimited.
type Limiter struct {
	mu    sync.Mutex
	types map[string]*typeState
}

// NewLimiter creates a Limiter with the given configurations.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{types: make(map[string]*typeState, len(configs))}
	for _, cfg := range configs {
		l.types[cfg.Type] = newTypeState(cfg)
	}
	return l
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Acquire checks the rate limit and concurrency cap for the job type.
// If the dispatch is allowed it increments the active count and returns
// true; the caller MUST call Release when the job leaves processing.
func (l *Limiter) Acquire(jobType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.types[jobType]
	if ts == nil {
		return true
	}

	if ts.limiter != nil && !ts.limiter.Allow() {
		return false
	}
	if ts.config.MaxConcurrent > 0 && ts.active >= ts.config.MaxConcurrent {
		return false
	}

	ts.active++
	return true
}

// Release decrements the active count for the job type.
func (l *Limiter) Release(jobType string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts := l.types[jobType]; ts != nil && ts.active > 0 {
		ts.active--
	}
}

// Active returns the current processing count for the job type.
func (l *Limiter) Active(jobType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ts := l.types[jobType]; ts != nil {
		return ts.active
	}
	return 0
}
