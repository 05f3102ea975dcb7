// Package integration exercises the lifecycle core end to end: documents
// driven through the full state graph by the machine, activated by the
// sweeper, and carried across a data wipe by export and restore. Everything
// runs against the in-memory store; no external services are required.
package integration

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/archive"
	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/capability"
	"github.com/veridoc/veridoc/internal/lifecycle"
	"github.com/veridoc/veridoc/internal/scheduler"
	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// Actors used across the suite.
var (
	Author   = &model.ActorContext{ActorID: "alice", Roles: []string{"author"}}
	Reviewer = &model.ActorContext{ActorID: "bob", Roles: []string{"reviewer"}}
	Approver = &model.ActorContext{ActorID: "carol", Roles: []string{"quality"}}
)

// Harness wires a complete lifecycle stack over a fresh in-memory store.
type Harness struct {
	Store   *store.MemoryStore
	Machine *lifecycle.Machine
	Sweeper *scheduler.Sweeper
	Audit   *audit.MemoryRecorder
}

type roleEvaluator struct{}

func (roleEvaluator) ResolveCapabilities(actx *model.ActorContext) (model.CapabilitySet, error) {
	caps := make(model.CapabilitySet)
	for _, role := range actx.Roles {
		switch role {
		case "author":
			caps[model.CapDocumentsWrite] = true
		case "reviewer":
			caps[model.CapDocumentsReview] = true
		case "quality":
			caps[model.CapDocumentsApprove] = true
			caps[model.CapDocumentsObsolete] = true
		case "system":
			caps["documents:*"] = true
		}
	}
	return caps, nil
}

func (roleEvaluator) Sync() error { return nil }

// NewHarness builds the stack with states seeded.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	for _, s := range model.AllStates() {
		if err := st.CreateState(ctx, s); err != nil {
			t.Fatalf("seed state %s: %v", s.Code, err)
		}
	}

	logger := zap.NewNop()
	rec := audit.NewMemoryRecorder()
	caps := capability.NewResolver(roleEvaluator{}, time.Minute)
	machine := lifecycle.NewMachine(st, lifecycle.NewGuard(st), caps, rec, logger, nil)
	return &Harness{
		Store:   st,
		Machine: machine,
		Sweeper: scheduler.NewSweeper(st, machine, logger, nil, 5),
		Audit:   rec,
	}
}

// CreateDraft creates a document as Author.
func (h *Harness) CreateDraft(t *testing.T, number, title string) {
	t.Helper()
	_, _, err := h.Machine.CreateDocument(context.Background(), Author, model.Document{
		Number:       number,
		Title:        title,
		DocumentType: "policy",
		VersionMajor: 1,
	})
	if err != nil {
		t.Fatalf("CreateDocument(%s): %v", number, err)
	}
}

// Approve drives a document from DRAFT to APPROVED_PENDING_EFFECTIVE with
// the given effective date.
func (h *Harness) Approve(t *testing.T, number string, effective time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.Machine.SubmitForReview(ctx, Author, number, Reviewer.ActorID, ""); err != nil {
		t.Fatalf("SubmitForReview(%s): %v", number, err)
	}
	if _, err := h.Machine.CompleteReview(ctx, Reviewer, number, true, ""); err != nil {
		t.Fatalf("CompleteReview(%s): %v", number, err)
	}
	if _, err := h.Machine.SubmitForApproval(ctx, Author, number, Approver.ActorID, ""); err != nil {
		t.Fatalf("SubmitForApproval(%s): %v", number, err)
	}
	if _, err := h.Machine.CompleteApproval(ctx, Approver, number, true, &effective, ""); err != nil {
		t.Fatalf("CompleteApproval(%s): %v", number, err)
	}
}

// MakeEffective approves and sweeps a document into EFFECTIVE.
func (h *Harness) MakeEffective(t *testing.T, number string) {
	t.Helper()
	h.Approve(t, number, time.Now().Add(-time.Hour).UTC())
	h.MustSweep(t)
	h.AssertStatus(t, number, model.StateEffective)
}

// MustSweep runs one sweep at the current time and fails on any failure.
func (h *Harness) MustSweep(t *testing.T) scheduler.Report {
	t.Helper()
	report, err := h.Sweeper.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(report.Failures) > 0 {
		t.Fatalf("sweep failures: %v", report.Failures)
	}
	return report
}

// AssertStatus checks both the document status and the workflow state.
func (h *Harness) AssertStatus(t *testing.T, number, want string) {
	t.Helper()
	ctx := context.Background()
	doc, err := h.Store.GetDocument(ctx, number)
	if err != nil {
		t.Fatalf("GetDocument(%s): %v", number, err)
	}
	if doc.Status != want {
		t.Errorf("%s document status = %s, want %s", number, doc.Status, want)
	}
	wf, err := h.Store.GetWorkflow(ctx, model.WorkflowKey{DocumentNumber: number, WorkflowType: model.WorkflowTypeLifecycle})
	if err != nil {
		t.Fatalf("GetWorkflow(%s): %v", number, err)
	}
	if wf.CurrentState != want {
		t.Errorf("%s workflow state = %s, want %s", number, wf.CurrentState, want)
	}
}

// Export writes an archive of the harness store to a temp file.
func (h *Harness) Export(t *testing.T, path string) {
	t.Helper()
	exporter := archive.NewExporter(h.Store, zap.NewNop(), nil)
	if _, err := exporter.Export(context.Background(), path, archive.Selector{}); err != nil {
		t.Fatalf("Export: %v", err)
	}
}

// RestoreInto loads the archive into a fresh harness, simulating a restore
// after a full data wipe with infrastructure re-seeded.
func RestoreInto(t *testing.T, h *Harness, path string) *archive.Report {
	t.Helper()
	proc := archive.NewRestoreProcessor(h.Store, h.Audit, zap.NewNop(), nil)
	report, err := proc.Restore(context.Background(), path, archive.Options{Mode: archive.ModeInfraPreserved})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if report.HasFailures() {
		t.Fatalf("restore failures:\n%s", report.Summary())
	}
	return report
}
