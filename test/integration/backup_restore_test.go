package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/veridoc/veridoc/model"
)

// The disaster-recovery scenario: documents mid-lifecycle are exported,
// the store is wiped and re-seeded, the archive restored, and the
// lifecycle continues exactly where it stopped.
func TestBackupRestore_lifecycle_continues_after_wipe(t *testing.T) {
	src := NewHarness(t)
	ctx := context.Background()

	// One effective document and one waiting on its effective date.
	src.CreateDraft(t, "POL-0001-v01.00", "Quality Policy")
	src.MakeEffective(t, "POL-0001-v01.00")
	src.CreateDraft(t, "SOP-0002-v01.00", "Calibration SOP")
	src.Approve(t, "SOP-0002-v01.00", time.Now().Add(-time.Minute).UTC())

	path := filepath.Join(t.TempDir(), "pre-wipe.tar.gz")
	src.Export(t, path)

	// "Wipe": a brand-new store with only infrastructure seeded.
	dst := NewHarness(t)
	report := RestoreInto(t, dst, path)
	if n := report.Kinds["state"].Created; n != 0 {
		t.Errorf("restore created %d state rows over a seeded store, want 0", n)
	}

	dst.AssertStatus(t, "POL-0001-v01.00", model.StateEffective)
	dst.AssertStatus(t, "SOP-0002-v01.00", model.StateApprovedPendingEffective)

	// Restored ledgers replay onto the restored workflow states.
	for _, number := range []string{"POL-0001-v01.00", "SOP-0002-v01.00"} {
		key := model.WorkflowKey{DocumentNumber: number, WorkflowType: model.WorkflowTypeLifecycle}
		wf, err := dst.Store.GetWorkflow(ctx, key)
		if err != nil {
			t.Fatalf("GetWorkflow(%s): %v", number, err)
		}
		ledger, err := dst.Store.GetTransitions(ctx, key)
		if err != nil {
			t.Fatalf("GetTransitions(%s): %v", number, err)
		}
		state := model.StateDraft
		for _, tr := range ledger {
			if tr.FromState != state {
				t.Errorf("%s ledger breaks at seq %d: from %s, expected %s", number, tr.Seq, tr.FromState, state)
			}
			state = tr.ToState
		}
		if state != wf.CurrentState {
			t.Errorf("%s replayed state = %s, workflow state = %s", number, state, wf.CurrentState)
		}
	}

	// The pending document activates on the restored side.
	dst.MustSweep(t)
	dst.AssertStatus(t, "SOP-0002-v01.00", model.StateEffective)

	// And the restored effective document can still be obsoleted.
	if _, err := dst.Machine.StartObsolete(ctx, Approver, "POL-0001-v01.00", ""); err != nil {
		t.Fatalf("StartObsolete after restore: %v", err)
	}
}

func TestBackupRestore_double_restore_is_noop(t *testing.T) {
	src := NewHarness(t)
	src.CreateDraft(t, "POL-0001-v01.00", "Quality Policy")
	src.MakeEffective(t, "POL-0001-v01.00")

	path := filepath.Join(t.TempDir(), "backup.tar.gz")
	src.Export(t, path)

	dst := NewHarness(t)
	RestoreInto(t, dst, path)
	countsAfterFirst := dst.Store.Counts()

	second := RestoreInto(t, dst, path)
	for kind, c := range second.Kinds {
		if c.Created != 0 || c.Updated != 0 {
			t.Errorf("second restore wrote %s records (created=%d updated=%d)", kind, c.Created, c.Updated)
		}
	}
	if got := dst.Store.Counts(); got["transitions"] != countsAfterFirst["transitions"] {
		t.Errorf("transition count changed on second restore: %v -> %v", countsAfterFirst, got)
	}
}
