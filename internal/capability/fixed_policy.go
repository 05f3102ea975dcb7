package capability

import "github.com/veridoc/veridoc/model"

// FixedPolicyEvaluator grants the same capability set to every actor.
// Used by operator tooling running as the system actor and by tests.
type FixedPolicyEvaluator struct {
	caps []string
}

// NewFixedPolicyEvaluator creates an evaluator granting exactly caps.
func NewFixedPolicyEvaluator(caps ...string) *FixedPolicyEvaluator {
	return &FixedPolicyEvaluator{caps: caps}
}

// ResolveCapabilities returns the fixed set for any actor.
func (e *FixedPolicyEvaluator) ResolveCapabilities(_ *model.ActorContext) (model.CapabilitySet, error) {
	set := make(model.CapabilitySet, len(e.caps))
	for _, c := range e.caps {
		set[c] = true
	}
	return set, nil
}

// Sync is a no-op; the set is fixed at construction.
func (e *FixedPolicyEvaluator) Sync() error { return nil }
