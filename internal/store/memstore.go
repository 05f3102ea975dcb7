package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/veridoc/veridoc/model"
)

// MemoryStore is an in-memory DocumentStore for tests.
type MemoryStore struct {
	mu          sync.RWMutex
	states      map[string]model.DocumentState         // key: state code
	documents   map[string]model.Document              // key: document number
	workflows   map[model.WorkflowKey]model.WorkflowInstance
	transitions map[model.WorkflowKey][]model.Transition
	edges       []model.DependencyEdge
}

// NewMemoryStore creates a new in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]model.DocumentState),
		documents:   make(map[string]model.Document),
		workflows:   make(map[model.WorkflowKey]model.WorkflowInstance),
		transitions: make(map[model.WorkflowKey][]model.Transition),
	}
}

// CreateState inserts a lifecycle state definition.
func (s *MemoryStore) CreateState(_ context.Context, state model.DocumentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state.Code]; exists {
		return model.NewConflictError(
			fmt.Sprintf("state %q already exists", state.Code),
		)
	}
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	s.states[state.Code] = state
	return nil
}

// GetState retrieves a state definition by code.
func (s *MemoryStore) GetState(_ context.Context, code string) (model.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.states[code]
	if !exists {
		return model.DocumentState{}, model.NewNotFoundError(
			fmt.Sprintf("state %q not found", code),
		)
	}
	return state, nil
}

// ListStates returns all state definitions sorted by code.
func (s *MemoryStore) ListStates(_ context.Context) ([]model.DocumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.DocumentState, 0, len(s.states))
	for _, st := range s.states {
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// CreateDocument inserts a new document.
func (s *MemoryStore) CreateDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.Number]; exists {
		return model.NewConflictError(
			fmt.Sprintf("document %q already exists", doc.Number),
		)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	s.documents[doc.Number] = doc
	return nil
}

// GetDocument retrieves a document by number.
func (s *MemoryStore) GetDocument(_ context.Context, number string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.documents[number]
	if !exists {
		return model.Document{}, model.NewNotFoundError(
			fmt.Sprintf("document %q not found", number),
		)
	}
	return doc, nil
}

// UpdateDocument overwrites a document row by number.
func (s *MemoryStore) UpdateDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDocumentLocked(doc)
}

func (s *MemoryStore) updateDocumentLocked(doc model.Document) error {
	if _, exists := s.documents[doc.Number]; !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("document %q not found", doc.Number),
		)
	}
	doc.UpdatedAt = time.Now().UTC()
	s.documents[doc.Number] = doc
	return nil
}

// ListDocuments returns all documents ordered by number.
func (s *MemoryStore) ListDocuments(_ context.Context) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		result = append(result, doc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// CreateWorkflow inserts a new workflow instance.
func (s *MemoryStore) CreateWorkflow(_ context.Context, wf model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := wf.Key()
	if _, exists := s.workflows[key]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q already exists", key),
		)
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	if wf.Version == 0 {
		wf.Version = 1
	}
	s.workflows[key] = wf
	return nil
}

// GetWorkflow retrieves a workflow instance by natural key.
func (s *MemoryStore) GetWorkflow(_ context.Context, key model.WorkflowKey) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, exists := s.workflows[key]
	if !exists {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", key),
		)
	}
	return wf, nil
}

// UpdateWorkflow persists an updated instance with optimistic locking.
func (s *MemoryStore) UpdateWorkflow(_ context.Context, wf model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateWorkflowLocked(wf)
}

func (s *MemoryStore) updateWorkflowLocked(wf model.WorkflowInstance) error {
	key := wf.Key()
	existing, exists := s.workflows[key]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", key),
		)
	}
	if existing.Version != wf.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", key, wf.Version, existing.Version),
		)
	}
	wf.Version++
	wf.UpdatedAt = time.Now().UTC()
	s.workflows[key] = wf
	return nil
}

// ListWorkflows returns all workflow instances sorted by key.
func (s *MemoryStore) ListWorkflows(_ context.Context) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.WorkflowInstance, 0, len(s.workflows))
	for _, wf := range s.workflows {
		result = append(result, wf)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key().String() < result[j].Key().String()
	})
	return result, nil
}

// FindDueEffective returns workflows awaiting activation whose effective
// date is at or before the cutoff.
func (s *MemoryStore) FindDueEffective(_ context.Context, cutoff time.Time) ([]model.WorkflowInstance, error) {
	return s.findDue(model.StateApprovedPendingEffective, cutoff, func(wf model.WorkflowInstance) *time.Time {
		return wf.EffectiveDate
	})
}

// FindDueObsoleting returns workflows awaiting obsoletion whose obsoleting
// date is set and at or before the cutoff.
func (s *MemoryStore) FindDueObsoleting(_ context.Context, cutoff time.Time) ([]model.WorkflowInstance, error) {
	return s.findDue(model.StatePendingObsoletion, cutoff, func(wf model.WorkflowInstance) *time.Time {
		return wf.ObsoletingDate
	})
}

func (s *MemoryStore) findDue(state string, cutoff time.Time, dateOf func(model.WorkflowInstance) *time.Time) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowInstance
	for _, wf := range s.workflows {
		if wf.CurrentState != state || wf.IsTerminated {
			continue
		}
		due := dateOf(wf)
		if due == nil || due.After(cutoff) {
			continue
		}
		result = append(result, wf)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key().String() < result[j].Key().String()
	})
	return result, nil
}

// GetTransitions returns a workflow's ledger in ascending Seq order.
func (s *MemoryStore) GetTransitions(_ context.Context, key model.WorkflowKey) ([]model.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger := s.transitions[key]
	result := make([]model.Transition, len(ledger))
	copy(result, ledger)
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

// AppendTransition inserts a single ledger row.
func (s *MemoryStore) AppendTransition(_ context.Context, tr model.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendTransitionLocked(tr)
}

func (s *MemoryStore) appendTransitionLocked(tr model.Transition) error {
	key := model.WorkflowKey{DocumentNumber: tr.DocumentNumber, WorkflowType: tr.WorkflowType}
	for _, existing := range s.transitions[key] {
		if existing.Seq == tr.Seq {
			return model.NewConflictError(
				fmt.Sprintf("transition %q seq %d already exists", key, tr.Seq),
			)
		}
	}
	s.transitions[key] = append(s.transitions[key], tr)
	return nil
}

// Commit applies one or more transition commits atomically. On any failure
// all changes made by earlier commits in the batch are rolled back.
func (s *MemoryStore) Commit(_ context.Context, commits ...model.TransitionCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Snapshot for rollback.
	type prevWorkflow struct {
		wf     model.WorkflowInstance
		exists bool
	}
	type prevDocument struct {
		doc    model.Document
		exists bool
	}
	prevWorkflows := make(map[model.WorkflowKey]prevWorkflow, len(commits))
	prevDocs := make(map[string]prevDocument, len(commits))
	prevLedgerLens := make(map[model.WorkflowKey]int, len(commits))

	rollback := func() {
		for key, prev := range prevWorkflows {
			if prev.exists {
				s.workflows[key] = prev.wf
			} else {
				delete(s.workflows, key)
			}
		}
		for number, prev := range prevDocs {
			if prev.exists {
				s.documents[number] = prev.doc
			} else {
				delete(s.documents, number)
			}
		}
		for key, n := range prevLedgerLens {
			s.transitions[key] = s.transitions[key][:n]
		}
	}

	for _, c := range commits {
		key := c.Workflow.Key()
		if _, tracked := prevWorkflows[key]; !tracked {
			wf, exists := s.workflows[key]
			prevWorkflows[key] = prevWorkflow{wf: wf, exists: exists}
			prevLedgerLens[key] = len(s.transitions[key])
		}
		if _, tracked := prevDocs[c.Document.Number]; !tracked {
			doc, exists := s.documents[c.Document.Number]
			prevDocs[c.Document.Number] = prevDocument{doc: doc, exists: exists}
		}

		if err := s.appendTransitionLocked(c.Transition); err != nil {
			rollback()
			return err
		}
		if err := s.updateWorkflowLocked(c.Workflow); err != nil {
			rollback()
			return err
		}
		if err := s.updateDocumentLocked(c.Document); err != nil {
			rollback()
			return err
		}
	}
	return nil
}

// AddDependencyEdge records that a document depends on another.
func (s *MemoryStore) AddDependencyEdge(_ context.Context, edge model.DependencyEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	s.edges = append(s.edges, edge)
	return nil
}

// ListDependents returns edges pointing at the given document number.
func (s *MemoryStore) ListDependents(_ context.Context, number string) ([]model.DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.DependencyEdge
	for _, edge := range s.edges {
		if edge.DependsOn == number {
			result = append(result, edge)
		}
	}
	return result, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Counts returns per-entity row counts, used by tests and the restore
// idempotency check.
func (s *MemoryStore) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, ledger := range s.transitions {
		total += len(ledger)
	}
	return map[string]int{
		"states":      len(s.states),
		"documents":   len(s.documents),
		"workflows":   len(s.workflows),
		"transitions": total,
	}
}

// String summarizes store contents for debugging.
func (s *MemoryStore) String() string {
	counts := s.Counts()
	parts := make([]string, 0, len(counts))
	for _, k := range []string{"states", "documents", "workflows", "transitions"} {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return "memstore(" + strings.Join(parts, " ") + ")"
}
