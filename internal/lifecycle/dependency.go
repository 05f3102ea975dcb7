package lifecycle

import (
	"context"

	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// Guard evaluates whether a document may be obsoleted, given the documents
// that reference it. It reads dependency edges through the store and never
// writes them.
type Guard struct {
	store store.DocumentStore
}

// NewGuard creates a dependency guard over the given store.
func NewGuard(st store.DocumentStore) *Guard {
	return &Guard{store: st}
}

// blockingStatuses are the document statuses that prevent obsoletion of a
// document they depend on.
var blockingStatuses = map[string]bool{
	model.StateEffective:                true,
	model.StateApprovedPendingEffective: true,
}

// CanObsolete returns false, with the blocking document numbers, if any
// document depending on the given one is effective or approved and awaiting
// effectiveness.
func (g *Guard) CanObsolete(ctx context.Context, number string) (bool, []string, error) {
	edges, err := g.store.ListDependents(ctx, number)
	if err != nil {
		return false, nil, err
	}

	var blockers []string
	for _, edge := range edges {
		doc, err := g.store.GetDocument(ctx, edge.DocumentNumber)
		if err != nil {
			if model.IsCode(err, model.ErrNotFound) {
				// Stale edge; the dependent no longer exists.
				continue
			}
			return false, nil, err
		}
		if blockingStatuses[doc.Status] {
			blockers = append(blockers, doc.Number)
		}
	}
	return len(blockers) == 0, blockers, nil
}

// Impact describes the blast radius of up-versioning or obsoleting a
// document: the documents that depend on it and the people to notify.
type Impact struct {
	Dependents   []model.Document `json:"dependents"`
	Stakeholders []string         `json:"stakeholders"`
}

// ImpactAnalysis returns the set of documents depending on the given one
// plus the union of their authors and approvers. It is informational only:
// no side effects, and it never blocks a transition.
func (g *Guard) ImpactAnalysis(ctx context.Context, number string) (Impact, error) {
	edges, err := g.store.ListDependents(ctx, number)
	if err != nil {
		return Impact{}, err
	}

	impact := Impact{}
	seen := make(map[string]bool)
	addStakeholder := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		impact.Stakeholders = append(impact.Stakeholders, id)
	}

	for _, edge := range edges {
		doc, err := g.store.GetDocument(ctx, edge.DocumentNumber)
		if err != nil {
			if model.IsCode(err, model.ErrNotFound) {
				continue
			}
			return Impact{}, err
		}
		impact.Dependents = append(impact.Dependents, doc)
		addStakeholder(doc.Author)

		wf, err := g.store.GetWorkflow(ctx, model.WorkflowKey{
			DocumentNumber: doc.Number,
			WorkflowType:   model.WorkflowTypeLifecycle,
		})
		if err != nil {
			if model.IsCode(err, model.ErrNotFound) {
				continue
			}
			return Impact{}, err
		}
		addStakeholder(wf.Approver)
	}
	return impact, nil
}
