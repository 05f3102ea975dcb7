package model

import (
	"context"
	"errors"
	"fmt"
)

// ActorContext carries the identity of the person or system performing a
// lifecycle operation. It is immutable after construction and safe for
// concurrent reads. Authentication happens outside this module; callers
// construct an ActorContext from whatever identity layer they run behind.
type ActorContext struct {
	ActorID       string
	Email         string
	Roles         []string
	CorrelationID string
}

// Validate checks that all mandatory fields are present.
func (ac *ActorContext) Validate() error {
	var errs []error
	if ac.ActorID == "" {
		errs = append(errs, fmt.Errorf("ActorID is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasRole returns true if the ActorContext contains the given role.
func (ac *ActorContext) HasRole(role string) bool {
	for _, r := range ac.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SystemActor is the ActorContext used for scheduler-driven transitions.
func SystemActor() *ActorContext {
	return &ActorContext{ActorID: "system", Roles: []string{"system"}}
}

type contextKey struct{}

// WithActorContext attaches an ActorContext to the given context.
func WithActorContext(ctx context.Context, actx *ActorContext) context.Context {
	return context.WithValue(ctx, contextKey{}, actx)
}

// ActorContextFrom extracts the ActorContext from the context, or returns
// nil if not present.
func ActorContextFrom(ctx context.Context) *ActorContext {
	actx, _ := ctx.Value(contextKey{}).(*ActorContext)
	return actx
}
