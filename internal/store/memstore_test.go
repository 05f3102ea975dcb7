package store

import (
	"context"
	"testing"
	"time"

	"github.com/veridoc/veridoc/model"
)

func seedDocument(t *testing.T, s *MemoryStore, number string) model.WorkflowInstance {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateDocument(ctx, model.Document{Number: number, Title: "T", Status: model.StateDraft}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	wf := model.WorkflowInstance{
		DocumentNumber: number,
		WorkflowType:   model.WorkflowTypeLifecycle,
		CurrentState:   model.StateDraft,
		InitiatedBy:    "u-1",
	}
	if err := s.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	created, err := s.GetWorkflow(ctx, wf.Key())
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	return created
}

// --- States ---

func TestMemoryStore_CreateState_conflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateState(ctx, model.DocumentState{Code: model.StateDraft, Name: "Draft"}); err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	err := s.CreateState(ctx, model.DocumentState{Code: model.StateDraft, Name: "Draft"})
	if !model.IsCode(err, model.ErrConflict) {
		t.Errorf("duplicate CreateState error = %v, want CONFLICT", err)
	}
}

func TestMemoryStore_GetState_not_found(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetState(context.Background(), "NOPE")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("GetState error = %v, want NOT_FOUND", err)
	}
}

// --- Documents ---

func TestMemoryStore_CreateDocument_conflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc := model.Document{Number: "POL-0001-v01.00", Status: model.StateDraft}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	err := s.CreateDocument(ctx, doc)
	if !model.IsCode(err, model.ErrConflict) {
		t.Errorf("duplicate CreateDocument error = %v, want CONFLICT", err)
	}
}

func TestMemoryStore_UpdateDocument_missing(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateDocument(context.Background(), model.Document{Number: "POL-0001-v01.00"})
	if !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("UpdateDocument error = %v, want NOT_FOUND", err)
	}
}

// --- Workflows ---

func TestMemoryStore_UpdateWorkflow_optimistic_lock(t *testing.T) {
	s := NewMemoryStore()
	wf := seedDocument(t, s, "POL-0001-v01.00")
	ctx := context.Background()

	// First update with the loaded version succeeds and bumps the version.
	wf.CurrentState = model.StatePendingReview
	if err := s.UpdateWorkflow(ctx, wf); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	// A second update with the stale version conflicts.
	wf.CurrentState = model.StateReviewed
	err := s.UpdateWorkflow(ctx, wf)
	if !model.IsCode(err, model.ErrConflict) {
		t.Errorf("stale UpdateWorkflow error = %v, want CONFLICT", err)
	}

	current, err := s.GetWorkflow(ctx, wf.Key())
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if current.CurrentState != model.StatePendingReview {
		t.Errorf("CurrentState = %s, stale write must not apply", current.CurrentState)
	}
	if current.Version != wf.Version+1 {
		t.Errorf("Version = %d, want %d", current.Version, wf.Version+1)
	}
}

// --- Transitions ---

func TestMemoryStore_AppendTransition_seq_conflict(t *testing.T) {
	s := NewMemoryStore()
	seedDocument(t, s, "POL-0001-v01.00")
	ctx := context.Background()

	tr := model.Transition{
		DocumentNumber: "POL-0001-v01.00",
		WorkflowType:   model.WorkflowTypeLifecycle,
		Seq:            1,
		FromState:      model.StateDraft,
		ToState:        model.StatePendingReview,
		Action:         model.ActionSubmitForReview,
	}
	if err := s.AppendTransition(ctx, tr); err != nil {
		t.Fatalf("AppendTransition: %v", err)
	}
	err := s.AppendTransition(ctx, tr)
	if !model.IsCode(err, model.ErrConflict) {
		t.Errorf("duplicate seq error = %v, want CONFLICT", err)
	}
}

func TestMemoryStore_GetTransitions_sorted_by_seq(t *testing.T) {
	s := NewMemoryStore()
	seedDocument(t, s, "POL-0001-v01.00")
	ctx := context.Background()
	key := model.WorkflowKey{DocumentNumber: "POL-0001-v01.00", WorkflowType: model.WorkflowTypeLifecycle}

	for _, seq := range []int{3, 1, 2} {
		tr := model.Transition{DocumentNumber: key.DocumentNumber, WorkflowType: key.WorkflowType, Seq: seq}
		if err := s.AppendTransition(ctx, tr); err != nil {
			t.Fatalf("AppendTransition seq %d: %v", seq, err)
		}
	}

	ledger, err := s.GetTransitions(ctx, key)
	if err != nil {
		t.Fatalf("GetTransitions: %v", err)
	}
	for i, tr := range ledger {
		if tr.Seq != i+1 {
			t.Errorf("ledger[%d].Seq = %d, want %d", i, tr.Seq, i+1)
		}
	}
}

// --- Commit ---

func commitFor(wf model.WorkflowInstance, doc model.Document, seq int, toState string) model.TransitionCommit {
	tr := model.Transition{
		DocumentNumber: wf.DocumentNumber,
		WorkflowType:   wf.WorkflowType,
		Seq:            seq,
		FromState:      wf.CurrentState,
		ToState:        toState,
		Action:         model.ActionSubmitForReview,
		Timestamp:      time.Now().UTC(),
	}
	wf.CurrentState = toState
	doc.Status = toState
	return model.TransitionCommit{Workflow: wf, Transition: tr, Document: doc}
}

func TestMemoryStore_Commit_applies_all_three_writes(t *testing.T) {
	s := NewMemoryStore()
	wf := seedDocument(t, s, "POL-0001-v01.00")
	ctx := context.Background()
	doc, _ := s.GetDocument(ctx, "POL-0001-v01.00")

	if err := s.Commit(ctx, commitFor(wf, doc, 1, model.StatePendingReview)); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := s.GetWorkflow(ctx, wf.Key())
	if got.CurrentState != model.StatePendingReview {
		t.Errorf("workflow state = %s, want PENDING_REVIEW", got.CurrentState)
	}
	gotDoc, _ := s.GetDocument(ctx, "POL-0001-v01.00")
	if gotDoc.Status != model.StatePendingReview {
		t.Errorf("document status = %s, want PENDING_REVIEW", gotDoc.Status)
	}
	ledger, _ := s.GetTransitions(ctx, wf.Key())
	if len(ledger) != 1 {
		t.Errorf("ledger length = %d, want 1", len(ledger))
	}
}

func TestMemoryStore_Commit_stale_version_rolls_back_ledger(t *testing.T) {
	s := NewMemoryStore()
	wf := seedDocument(t, s, "POL-0001-v01.00")
	ctx := context.Background()
	doc, _ := s.GetDocument(ctx, "POL-0001-v01.00")

	stale := wf
	stale.Version = wf.Version + 7
	err := s.Commit(ctx, commitFor(stale, doc, 1, model.StatePendingReview))
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("Commit error = %v, want CONFLICT", err)
	}

	ledger, _ := s.GetTransitions(ctx, wf.Key())
	if len(ledger) != 0 {
		t.Errorf("ledger length after failed commit = %d, want 0", len(ledger))
	}
	got, _ := s.GetWorkflow(ctx, wf.Key())
	if got.CurrentState != model.StateDraft {
		t.Errorf("workflow state after failed commit = %s, want DRAFT", got.CurrentState)
	}
}

func TestMemoryStore_Commit_multi_is_all_or_nothing(t *testing.T) {
	s := NewMemoryStore()
	wfA := seedDocument(t, s, "POL-0001-v01.00")
	wfB := seedDocument(t, s, "POL-0001-v02.00")
	ctx := context.Background()
	docA, _ := s.GetDocument(ctx, "POL-0001-v01.00")
	docB, _ := s.GetDocument(ctx, "POL-0001-v02.00")

	good := commitFor(wfA, docA, 1, model.StatePendingReview)
	bad := commitFor(wfB, docB, 1, model.StatePendingReview)
	bad.Workflow.Version += 5 // stale, second commit must fail

	err := s.Commit(ctx, good, bad)
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("Commit error = %v, want CONFLICT", err)
	}

	// The first commit's writes must be rolled back too.
	gotA, _ := s.GetWorkflow(ctx, wfA.Key())
	if gotA.CurrentState != model.StateDraft {
		t.Errorf("workflow A state = %s, want DRAFT after rollback", gotA.CurrentState)
	}
	if gotA.Version != wfA.Version {
		t.Errorf("workflow A version = %d, want %d after rollback", gotA.Version, wfA.Version)
	}
	ledgerA, _ := s.GetTransitions(ctx, wfA.Key())
	if len(ledgerA) != 0 {
		t.Errorf("workflow A ledger = %d rows, want 0 after rollback", len(ledgerA))
	}
	gotDocA, _ := s.GetDocument(ctx, "POL-0001-v01.00")
	if gotDocA.Status != model.StateDraft {
		t.Errorf("document A status = %s, want DRAFT after rollback", gotDocA.Status)
	}
}

// --- Due queries ---

func TestMemoryStore_FindDueEffective_cutoff_is_inclusive(t *testing.T) {
	s := NewMemoryStore()
	wf := seedDocument(t, s, "POL-0001-v01.00")
	ctx := context.Background()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	wf.CurrentState = model.StateApprovedPendingEffective
	wf.EffectiveDate = &cutoff
	if err := s.UpdateWorkflow(ctx, wf); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	due, err := s.FindDueEffective(ctx, cutoff)
	if err != nil {
		t.Fatalf("FindDueEffective: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("due at exact cutoff = %d workflows, want 1", len(due))
	}

	due, _ = s.FindDueEffective(ctx, cutoff.Add(-time.Second))
	if len(due) != 0 {
		t.Errorf("due before cutoff = %d workflows, want 0", len(due))
	}
}

func TestMemoryStore_FindDueObsoleting_skips_terminated_and_undated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)

	due := seedDocument(t, s, "POL-0001-v01.00")
	due.CurrentState = model.StatePendingObsoletion
	due.ObsoletingDate = &past
	if err := s.UpdateWorkflow(ctx, due); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	undated := seedDocument(t, s, "POL-0002-v01.00")
	undated.CurrentState = model.StatePendingObsoletion
	if err := s.UpdateWorkflow(ctx, undated); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	terminated := seedDocument(t, s, "POL-0003-v01.00")
	terminated.CurrentState = model.StatePendingObsoletion
	terminated.ObsoletingDate = &past
	terminated.IsTerminated = true
	if err := s.UpdateWorkflow(ctx, terminated); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	got, err := s.FindDueObsoleting(ctx, now)
	if err != nil {
		t.Fatalf("FindDueObsoleting: %v", err)
	}
	if len(got) != 1 || got[0].DocumentNumber != "POL-0001-v01.00" {
		t.Errorf("FindDueObsoleting = %v, want only POL-0001-v01.00", got)
	}
}

// --- Dependency edges ---

func TestMemoryStore_ListDependents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	edges := []model.DependencyEdge{
		{DocumentNumber: "WI-0001-v01.00", DependsOn: "SOP-0001-v01.00"},
		{DocumentNumber: "WI-0002-v01.00", DependsOn: "SOP-0001-v01.00"},
		{DocumentNumber: "WI-0003-v01.00", DependsOn: "SOP-0002-v01.00"},
	}
	for _, e := range edges {
		if err := s.AddDependencyEdge(ctx, e); err != nil {
			t.Fatalf("AddDependencyEdge: %v", err)
		}
	}

	got, err := s.ListDependents(ctx, "SOP-0001-v01.00")
	if err != nil {
		t.Fatalf("ListDependents: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListDependents = %d edges, want 2", len(got))
	}
}
