// Package ratelimit keeps one token bucket per caller identity. Both
// transports consult the same Registry so a user's budget is shared.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Registry maps hashed identities to token buckets.
type Registry struct {
	mu       sync.Mutex
	visitors map[[32]byte]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRegistry allows rps requests per second with the given burst per
// identity. A non-positive rps disables limiting.
func NewRegistry(rps float64, burst int) *Registry {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Registry{
		visitors: make(map[[32]byte]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// getVisitor returns the bucket for identifier and scope, creating it on
// first use.
func (r *Registry) getVisitor(identifier, scope string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	idHash := blake2b.Sum256([]byte(identifier + "\x00" + scope))
	v, exists := r.visitors[idHash]
	if !exists {
		limiter := rate.NewLimiter(r.limit, r.burst)
		r.visitors[idHash] = &visitor{limiter: limiter, lastSeen: r.now()}
		return limiter
	}

	v.lastSeen = r.now()
	return v.limiter
}

// Allow spends one token from the bucket of identifier within scope.
func (r *Registry) Allow(identifier, scope string) bool {
	return r.getVisitor(identifier, scope).AllowN(r.now(), 1)
}

// Prune drops buckets not used for idle and returns how many were removed.
func (r *Registry) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	removed := 0
	for k, v := range r.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(r.visitors, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}
