package session

import "sync"

// Registry hands out one Guard per session key. Guards belong to a period,
// such as a calendar day, and are dropped when the period changes.
type Registry struct {
	mu     sync.Mutex
	limits Limits
	period string
	guards map[string]*Guard
}

// NewRegistry creates a Registry whose guards enforce limits.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		limits: limits,
		guards: make(map[string]*Guard),
	}
}

// Guard returns the guard for key, creating it on first use.
func (r *Registry) Guard(key string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.guards[key]
	if !ok {
		g = NewGuard(r.limits)
		r.guards[key] = g
	}
	return g
}

// Rotate moves the registry to period. When period differs from the current
// one every guard is dropped, so question counts start over. It returns the
// number of guards dropped.
func (r *Registry) Rotate(period string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if period == r.period {
		return 0
	}
	r.period = period

	dropped := len(r.guards)
	if dropped > 0 {
		r.guards = make(map[string]*Guard)
	}
	return dropped
}

// Len returns the number of sessions seen.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.guards)
}
