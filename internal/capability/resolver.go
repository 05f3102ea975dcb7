// Package capability resolves and caches actor capabilities from a policy
// source. Lifecycle guards treat the resolver as a boolean oracle; the
// policy internals behind it are an external concern.
package capability

import (
	"sync"
	"time"

	"github.com/veridoc/veridoc/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.CapabilityResolver with an in-memory cache.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		cache:     make(map[string]cacheEntry),
	}
}

// Resolve returns the full capability set for the given actor. Results are
// cached for the configured TTL.
func (r *Resolver) Resolve(actx *model.ActorContext) (model.CapabilitySet, error) {
	key := actx.ActorID

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		return entry.caps, nil
	}
	r.mu.RUnlock()

	caps, err := r.evaluator.ResolveCapabilities(actx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given actor.
func (r *Resolver) Invalidate(actorID string) {
	r.mu.Lock()
	delete(r.cache, actorID)
	r.mu.Unlock()
}
