package backoff

import "sync"

// Registry maps job kinds to retry policies. Unknown kinds fall back to
// the default policy. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
	fallback Policy
}

// NewRegistry creates a registry seeded with the built-in presets and
// the default fallback policy.
func NewRegistry() *Registry {
	return &Registry{
		policies: Presets(),
		fallback: DefaultPolicy(),
	}
}

// Register installs or replaces the policy for a job kind.
// Invalid policies are rejected.
func (r *Registry) Register(jobType string, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[jobType] = p
	return nil
}

// Lookup returns the policy for the given job kind, or the fallback
// when no policy is registered for it.
func (r *Registry) Lookup(jobType string) Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.policies[jobType]; ok {
		return p
	}
	return r.fallback
}

// Kinds returns all job kinds with a registered policy.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.policies))
	for k := range r.policies {
		kinds = append(kinds, k)
	}
	return kinds
}
