package lifecycle

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// stubResolver maps actor IDs to fixed capability sets.
type stubResolver struct {
	caps map[string]model.CapabilitySet
}

func (s *stubResolver) Resolve(actx *model.ActorContext) (model.CapabilitySet, error) {
	return s.caps[actx.ActorID], nil
}

func (s *stubResolver) Invalidate(string) {}

var (
	author   = &model.ActorContext{ActorID: "u-author", Roles: []string{"author"}}
	reviewer = &model.ActorContext{ActorID: "u-reviewer", Roles: []string{"reviewer"}}
	approver = &model.ActorContext{ActorID: "u-approver", Roles: []string{"quality"}}
	stranger = &model.ActorContext{ActorID: "u-stranger"}
)

func newTestMachine(t *testing.T) (*Machine, *store.MemoryStore, *audit.MemoryRecorder) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := audit.NewMemoryRecorder()
	caps := &stubResolver{caps: map[string]model.CapabilitySet{
		"u-author":   {model.CapDocumentsWrite: true},
		"u-reviewer": {model.CapDocumentsReview: true},
		"u-approver": {model.CapDocumentsApprove: true, model.CapDocumentsObsolete: true},
	}}
	m := NewMachine(st, NewGuard(st), caps, rec, zap.NewNop(), nil)
	return m, st, rec
}

func createDraft(t *testing.T, m *Machine, number string) {
	t.Helper()
	_, _, err := m.CreateDocument(context.Background(), author, model.Document{
		Number: number,
		Title:  "Quality Policy",
	})
	if err != nil {
		t.Fatalf("CreateDocument(%s): %v", number, err)
	}
}

// driveToEffective walks a document through the full approval path and the
// scheduled activation.
func driveToEffective(t *testing.T, m *Machine, number string) {
	t.Helper()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour).UTC()

	if _, err := m.SubmitForReview(ctx, author, number, "u-reviewer", ""); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if _, err := m.CompleteReview(ctx, reviewer, number, true, "looks good"); err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if _, err := m.SubmitForApproval(ctx, author, number, "u-approver", ""); err != nil {
		t.Fatalf("SubmitForApproval: %v", err)
	}
	if _, err := m.CompleteApproval(ctx, approver, number, true, &past, ""); err != nil {
		t.Fatalf("CompleteApproval: %v", err)
	}
	key := model.WorkflowKey{DocumentNumber: number, WorkflowType: model.WorkflowTypeLifecycle}
	if _, err := m.ScheduledActivate(ctx, key, time.Now().UTC()); err != nil {
		t.Fatalf("ScheduledActivate: %v", err)
	}
}

// --- Happy path ---

func TestMachine_full_lifecycle_to_effective(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")
	driveToEffective(t, m, "POL-0001-v01.00")

	doc, err := st.GetDocument(ctx, "POL-0001-v01.00")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != model.StateEffective {
		t.Errorf("document status = %s, want EFFECTIVE", doc.Status)
	}

	ledger, err := m.Ledger(ctx, "POL-0001-v01.00")
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if len(ledger) != 5 {
		t.Fatalf("ledger has %d transitions, want 5", len(ledger))
	}

	wantActions := []string{
		model.ActionSubmitForReview,
		model.ActionCompleteReview,
		model.ActionSubmitForApproval,
		model.ActionCompleteApproval,
		model.ActionScheduledActivate,
	}
	for i, tr := range ledger {
		if tr.Action != wantActions[i] {
			t.Errorf("ledger[%d].Action = %s, want %s", i, tr.Action, wantActions[i])
		}
		if tr.Seq != i+1 {
			t.Errorf("ledger[%d].Seq = %d, want %d", i, tr.Seq, i+1)
		}
	}
}

func TestMachine_ledger_replays_to_current_state(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")
	driveToEffective(t, m, "POL-0001-v01.00")

	key := model.WorkflowKey{DocumentNumber: "POL-0001-v01.00", WorkflowType: model.WorkflowTypeLifecycle}
	wf, err := st.GetWorkflow(ctx, key)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	ledger, _ := m.Ledger(ctx, "POL-0001-v01.00")

	// An empty ledger means DRAFT; otherwise each row chains onto the
	// previous and the final ToState is the workflow's current state.
	state := model.StateDraft
	for i, tr := range ledger {
		if tr.FromState != state {
			t.Errorf("ledger[%d].FromState = %s, want %s", i, tr.FromState, state)
		}
		state = tr.ToState
	}
	if state != wf.CurrentState {
		t.Errorf("replayed state = %s, workflow state = %s", state, wf.CurrentState)
	}
}

// --- Rejections ---

func TestMachine_review_rejection_returns_to_draft(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	if _, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", ""); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	wf, err := m.CompleteReview(ctx, reviewer, "POL-0001-v01.00", false, "needs work")
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if wf.CurrentState != model.StateDraft {
		t.Errorf("state after rejection = %s, want DRAFT", wf.CurrentState)
	}
	doc, _ := st.GetDocument(ctx, "POL-0001-v01.00")
	if doc.Status != model.StateDraft {
		t.Errorf("document status = %s, want DRAFT", doc.Status)
	}
}

func TestMachine_approval_rejection_returns_to_draft(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	if _, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CompleteReview(ctx, reviewer, "POL-0001-v01.00", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SubmitForApproval(ctx, author, "POL-0001-v01.00", "u-approver", ""); err != nil {
		t.Fatal(err)
	}
	wf, err := m.CompleteApproval(ctx, approver, "POL-0001-v01.00", false, nil, "")
	if err != nil {
		t.Fatalf("CompleteApproval: %v", err)
	}
	if wf.CurrentState != model.StateDraft {
		t.Errorf("state after rejection = %s, want DRAFT", wf.CurrentState)
	}
	if wf.EffectiveDate != nil {
		t.Error("rejected approval must not set an effective date")
	}
}

// --- Guards ---

func TestMachine_wrong_source_state_is_guard_violation(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	_, err := m.SubmitForApproval(ctx, author, "POL-0001-v01.00", "u-approver", "")
	if !model.IsCode(err, model.ErrGuardViolation) {
		t.Errorf("SubmitForApproval from DRAFT error = %v, want GUARD_VIOLATION", err)
	}

	ledger, _ := m.Ledger(ctx, "POL-0001-v01.00")
	if len(ledger) != 0 {
		t.Errorf("rejected transition left %d ledger rows, want 0", len(ledger))
	}
}

func TestMachine_missing_capability_is_forbidden(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	if _, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", ""); err != nil {
		t.Fatal(err)
	}
	_, err := m.CompleteReview(ctx, stranger, "POL-0001-v01.00", true, "")
	if !model.IsCode(err, model.ErrForbidden) {
		t.Errorf("CompleteReview without capability error = %v, want FORBIDDEN", err)
	}
}

func TestMachine_unknown_document_is_not_found(t *testing.T) {
	m, _, _ := newTestMachine(t)
	_, err := m.SubmitForReview(context.Background(), author, "NOPE-v01.00", "u-reviewer", "")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

// --- Obsoletion ---

func addDependent(t *testing.T, m *Machine, st *store.MemoryStore, dependent, dependsOn string) {
	t.Helper()
	createDraft(t, m, dependent)
	driveToEffective(t, m, dependent)
	err := st.AddDependencyEdge(context.Background(), model.DependencyEdge{
		DocumentNumber: dependent,
		DependsOn:      dependsOn,
	})
	if err != nil {
		t.Fatalf("AddDependencyEdge: %v", err)
	}
}

func TestMachine_obsoletion_blocked_by_effective_dependent(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "SOP-0001-v01.00")
	driveToEffective(t, m, "SOP-0001-v01.00")
	addDependent(t, m, st, "WI-0001-v01.00", "SOP-0001-v01.00")

	_, err := m.StartObsolete(ctx, approver, "SOP-0001-v01.00", "")
	if !model.IsCode(err, model.ErrGuardViolation) {
		t.Fatalf("StartObsolete with dependent error = %v, want GUARD_VIOLATION", err)
	}

	wf, _ := st.GetWorkflow(ctx, model.WorkflowKey{DocumentNumber: "SOP-0001-v01.00", WorkflowType: model.WorkflowTypeLifecycle})
	if wf.CurrentState != model.StateEffective {
		t.Errorf("state = %s, want EFFECTIVE after blocked obsoletion", wf.CurrentState)
	}
}

func TestMachine_obsoletion_full_path(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "SOP-0001-v01.00")
	driveToEffective(t, m, "SOP-0001-v01.00")

	wf, err := m.StartObsolete(ctx, approver, "SOP-0001-v01.00", "retired process")
	if err != nil {
		t.Fatalf("StartObsolete: %v", err)
	}
	if wf.CurrentState != model.StatePendingObsoletion {
		t.Fatalf("state = %s, want PENDING_OBSOLETION", wf.CurrentState)
	}

	past := time.Now().Add(-time.Minute).UTC()
	wf, err = m.ApproveObsoleting(ctx, approver, "SOP-0001-v01.00", true, &past, "")
	if err != nil {
		t.Fatalf("ApproveObsoleting: %v", err)
	}
	if wf.CurrentState != model.StatePendingObsoletion {
		t.Errorf("state after approval = %s, want PENDING_OBSOLETION until the sweep", wf.CurrentState)
	}
	if wf.ObsoletingDate == nil {
		t.Fatal("ObsoletingDate not set by approval")
	}

	key := model.WorkflowKey{DocumentNumber: "SOP-0001-v01.00", WorkflowType: model.WorkflowTypeLifecycle}
	wf, err = m.ScheduledActivate(ctx, key, time.Now().UTC())
	if err != nil {
		t.Fatalf("ScheduledActivate: %v", err)
	}
	if wf.CurrentState != model.StateObsolete {
		t.Errorf("state = %s, want OBSOLETE", wf.CurrentState)
	}
	doc, _ := st.GetDocument(ctx, "SOP-0001-v01.00")
	if doc.Status != model.StateObsolete {
		t.Errorf("document status = %s, want OBSOLETE", doc.Status)
	}
}

func TestMachine_obsoletion_rejection_is_audit_only(t *testing.T) {
	m, _, rec := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "SOP-0001-v01.00")
	driveToEffective(t, m, "SOP-0001-v01.00")
	if _, err := m.StartObsolete(ctx, approver, "SOP-0001-v01.00", ""); err != nil {
		t.Fatal(err)
	}
	before, _ := m.Ledger(ctx, "SOP-0001-v01.00")

	wf, err := m.ApproveObsoleting(ctx, approver, "SOP-0001-v01.00", false, nil, "keep it")
	if err != nil {
		t.Fatalf("ApproveObsoleting(reject): %v", err)
	}
	if wf.CurrentState != model.StatePendingObsoletion {
		t.Errorf("state = %s, want PENDING_OBSOLETION unchanged", wf.CurrentState)
	}

	after, _ := m.Ledger(ctx, "SOP-0001-v01.00")
	if len(after) != len(before) {
		t.Errorf("rejection appended %d ledger rows, want 0", len(after)-len(before))
	}

	found := false
	for _, e := range rec.Entries() {
		if e.Action == model.ActionApproveObsoleting && e.Object == "SOP-0001-v01.00" {
			found = true
		}
	}
	if !found {
		t.Error("rejection left no audit entry")
	}
}

func TestMachine_obsoletion_approval_recheck_forces_termination(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "SOP-0001-v01.00")
	driveToEffective(t, m, "SOP-0001-v01.00")
	if _, err := m.StartObsolete(ctx, approver, "SOP-0001-v01.00", ""); err != nil {
		t.Fatal(err)
	}

	// A dependent turns effective between the start and the approval.
	addDependent(t, m, st, "WI-0001-v01.00", "SOP-0001-v01.00")

	wf, err := m.ApproveObsoleting(ctx, approver, "SOP-0001-v01.00", true, nil, "")
	if err != nil {
		t.Fatalf("ApproveObsoleting: %v", err)
	}
	if wf.CurrentState != model.StateTerminated {
		t.Errorf("state = %s, want TERMINATED when the re-check finds dependents", wf.CurrentState)
	}
	if !wf.IsTerminated {
		t.Error("IsTerminated = false, want true")
	}
}

// --- Up-versioning and supersession ---

func TestMachine_up_version_creates_linked_draft(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")
	driveToEffective(t, m, "POL-0001-v01.00")

	doc, wf, err := m.StartUpVersion(ctx, author, "POL-0001-v01.00", "", "annual revision")
	if err != nil {
		t.Fatalf("StartUpVersion: %v", err)
	}
	if doc.Number != "POL-0001-v02.00" {
		t.Errorf("new number = %s, want POL-0001-v02.00", doc.Number)
	}
	if doc.Status != model.StateDraft {
		t.Errorf("new document status = %s, want DRAFT", doc.Status)
	}
	if doc.Supersedes == nil || *doc.Supersedes != "POL-0001-v01.00" {
		t.Errorf("Supersedes = %v, want POL-0001-v01.00", doc.Supersedes)
	}
	if doc.VersionMajor != 2 || doc.VersionMinor != 0 {
		t.Errorf("version = %d.%d, want 2.0", doc.VersionMajor, doc.VersionMinor)
	}
	if wf.CurrentState != model.StateDraft {
		t.Errorf("new workflow state = %s, want DRAFT", wf.CurrentState)
	}
}

func TestMachine_up_version_requires_effective_source(t *testing.T) {
	m, _, _ := newTestMachine(t)
	createDraft(t, m, "POL-0001-v01.00")

	_, _, err := m.StartUpVersion(context.Background(), author, "POL-0001-v01.00", "", "")
	if !model.IsCode(err, model.ErrGuardViolation) {
		t.Errorf("StartUpVersion on DRAFT error = %v, want GUARD_VIOLATION", err)
	}
}

func TestMachine_activation_supersedes_parent_atomically(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")
	driveToEffective(t, m, "POL-0001-v01.00")

	if _, _, err := m.StartUpVersion(ctx, author, "POL-0001-v01.00", "", ""); err != nil {
		t.Fatal(err)
	}
	driveToEffective(t, m, "POL-0001-v02.00")

	parent, _ := st.GetDocument(ctx, "POL-0001-v01.00")
	if parent.Status != model.StateSuperseded {
		t.Errorf("parent status = %s, want SUPERSEDED", parent.Status)
	}
	if parent.SupersededBy == nil || *parent.SupersededBy != "POL-0001-v02.00" {
		t.Errorf("parent SupersededBy = %v, want POL-0001-v02.00", parent.SupersededBy)
	}

	parentLedger, _ := m.Ledger(ctx, "POL-0001-v01.00")
	last := parentLedger[len(parentLedger)-1]
	if last.Action != model.ActionSupersede || last.ToState != model.StateSuperseded {
		t.Errorf("parent last transition = %s -> %s, want supersede -> SUPERSEDED", last.Action, last.ToState)
	}
	if last.Actor != "system" {
		t.Errorf("supersession actor = %s, want system", last.Actor)
	}
}

// --- Termination ---

func TestMachine_terminate_reverts_to_last_approved_state(t *testing.T) {
	m, st, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	if _, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CompleteReview(ctx, reviewer, "POL-0001-v01.00", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SubmitForApproval(ctx, author, "POL-0001-v01.00", "u-approver", ""); err != nil {
		t.Fatal(err)
	}

	wf, err := m.Terminate(ctx, author, "POL-0001-v01.00", "withdrawn")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if wf.CurrentState != model.StateReviewed {
		t.Errorf("state = %s, want REVIEWED (last approval-reached state)", wf.CurrentState)
	}
	if !wf.IsTerminated {
		t.Error("IsTerminated = false, want true")
	}
	doc, _ := st.GetDocument(ctx, "POL-0001-v01.00")
	if doc.Status != model.StateReviewed {
		t.Errorf("document status = %s, want REVIEWED", doc.Status)
	}
}

func TestMachine_terminate_without_approvals_reverts_to_draft(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")
	if _, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", ""); err != nil {
		t.Fatal(err)
	}

	wf, err := m.Terminate(ctx, author, "POL-0001-v01.00", "")
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if wf.CurrentState != model.StateDraft {
		t.Errorf("state = %s, want DRAFT", wf.CurrentState)
	}
}

func TestMachine_terminate_is_initiator_only(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	_, err := m.Terminate(ctx, approver, "POL-0001-v01.00", "")
	if !model.IsCode(err, model.ErrGuardViolation) {
		t.Errorf("Terminate by non-initiator error = %v, want GUARD_VIOLATION", err)
	}
}

func TestMachine_terminated_workflow_rejects_transitions(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")
	if _, err := m.Terminate(ctx, author, "POL-0001-v01.00", ""); err != nil {
		t.Fatal(err)
	}

	_, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", "")
	if !model.IsCode(err, model.ErrGuardViolation) {
		t.Errorf("transition on terminated workflow error = %v, want GUARD_VIOLATION", err)
	}
}

// --- Scheduled activation guards ---

func TestMachine_scheduled_activate_not_due(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	createDraft(t, m, "POL-0001-v01.00")

	future := time.Now().Add(24 * time.Hour).UTC()
	if _, err := m.SubmitForReview(ctx, author, "POL-0001-v01.00", "u-reviewer", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CompleteReview(ctx, reviewer, "POL-0001-v01.00", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SubmitForApproval(ctx, author, "POL-0001-v01.00", "u-approver", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CompleteApproval(ctx, approver, "POL-0001-v01.00", true, &future, ""); err != nil {
		t.Fatal(err)
	}

	key := model.WorkflowKey{DocumentNumber: "POL-0001-v01.00", WorkflowType: model.WorkflowTypeLifecycle}
	_, err := m.ScheduledActivate(ctx, key, time.Now().UTC())
	if !model.IsCode(err, model.ErrGuardViolation) {
		t.Errorf("ScheduledActivate before due date error = %v, want GUARD_VIOLATION", err)
	}
}

// --- Version suffix parsing ---

func TestNextVersionNumber(t *testing.T) {
	tests := []struct {
		number  string
		major   int
		want    string
		wantErr bool
	}{
		{"SOP-2025-0001-v01.00", 2, "SOP-2025-0001-v02.00", false},
		{"POL-0001-v09.03", 10, "POL-0001-v10.00", false},
		{"POL-0001", 2, "", true},
		{"POL-0001-v1", 2, "", true},
	}
	for _, tt := range tests {
		got, err := nextVersionNumber(tt.number, tt.major)
		if (err != nil) != tt.wantErr {
			t.Errorf("nextVersionNumber(%q) error = %v, wantErr %v", tt.number, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("nextVersionNumber(%q) = %q, want %q", tt.number, got, tt.want)
		}
	}
}
