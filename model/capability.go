package model

import "strings"

// Capabilities consulted by lifecycle guards. The permission layer behind
// them is external; guards treat the resolver as a boolean oracle.
const (
	CapDocumentsWrite    = "documents:write"
	CapDocumentsReview   = "documents:review"
	CapDocumentsApprove  = "documents:approve"
	CapDocumentsObsolete = "documents:obsolete"
	CapDocumentsRestore  = "documents:restore"
)

// CapabilitySet is a set of capabilities granted to an actor. Each key is a
// capability string (e.g. "documents:review") and may include wildcards
// (e.g. "documents:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if the set matches all given capabilities (including
// via wildcards).
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if the set matches at least one of the given
// capabilities (including via wildcards).
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
// Examples:
//
//	"*"            matches anything
//	"documents:*"  matches "documents:review"
//	"documents"    does NOT match "documents:review" (exact only)
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1]
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for an actor.
type CapabilityResolver interface {
	// Resolve returns all capabilities for the given actor.
	Resolve(actx *ActorContext) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given actor.
	Invalidate(actorID string)
}

// PolicyEvaluator is the backend implementation that resolves capabilities
// from roles and external policy configuration.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the full capability set for the actor.
	ResolveCapabilities(actx *ActorContext) (CapabilitySet, error)

	// Sync refreshes policy data from the external source.
	Sync() error
}
