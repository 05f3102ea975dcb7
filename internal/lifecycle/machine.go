// Package lifecycle implements the document lifecycle state machine: a
// fixed, guarded state graph driving every controlled document from DRAFT
// through review, approval, effectiveness, and supersession or obsolescence.
// Every transition is committed atomically together with its ledger row and
// the mirrored document status.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/observability"
	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// maxCommitRetries bounds optimistic-lock retries before a
// CONCURRENT_MODIFICATION error is surfaced to the caller.
const maxCommitRetries = 3

// Machine applies guarded transitions to document lifecycle workflows.
// Transitions on the same workflow are serialized through a per-workflow
// lock; different workflows proceed independently.
type Machine struct {
	store   store.DocumentStore
	guard   *Guard
	caps    model.CapabilityResolver
	audit   audit.Recorder
	logger  *zap.Logger
	metrics *observability.Metrics

	locks keyedLocks
}

// NewMachine creates a lifecycle state machine. metrics may be nil.
func NewMachine(
	st store.DocumentStore,
	guard *Guard,
	caps model.CapabilityResolver,
	rec audit.Recorder,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Machine {
	return &Machine{
		store:   st,
		guard:   guard,
		caps:    caps,
		audit:   rec,
		logger:  logger,
		metrics: metrics,
		locks:   keyedLocks{locks: make(map[string]*sync.Mutex)},
	}
}

// keyedLocks serializes transition application per workflow natural key.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// lifecycleKey returns the natural key of a document's lifecycle workflow.
func lifecycleKey(number string) model.WorkflowKey {
	return model.WorkflowKey{DocumentNumber: number, WorkflowType: model.WorkflowTypeLifecycle}
}

// CreateDocument creates a document in DRAFT together with its lifecycle
// workflow. The workflow ledger starts empty; DRAFT is the initial state.
func (m *Machine) CreateDocument(ctx context.Context, actx *model.ActorContext, doc model.Document) (model.Document, model.WorkflowInstance, error) {
	if err := actx.Validate(); err != nil {
		return model.Document{}, model.WorkflowInstance{}, model.NewValidationError(err.Error())
	}
	if err := m.requireCapability(actx, model.CapDocumentsWrite); err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}
	if doc.Number == "" {
		return model.Document{}, model.WorkflowInstance{}, model.NewValidationError("document number is required")
	}

	doc.Status = model.StateDraft
	if doc.Author == "" {
		doc.Author = actx.ActorID
	}
	if err := m.store.CreateDocument(ctx, doc); err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}

	wf := model.WorkflowInstance{
		DocumentNumber: doc.Number,
		WorkflowType:   model.WorkflowTypeLifecycle,
		CurrentState:   model.StateDraft,
		InitiatedBy:    actx.ActorID,
	}
	if err := m.store.CreateWorkflow(ctx, wf); err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}

	m.audit.LogUserAction(ctx, actx.ActorID, "create_document", doc.Number,
		fmt.Sprintf("created document %s in DRAFT", doc.Number), nil)

	created, err := m.store.GetWorkflow(ctx, wf.Key())
	if err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}
	doc, err = m.store.GetDocument(ctx, doc.Number)
	return doc, created, err
}

// SubmitForReview moves a DRAFT document to PENDING_REVIEW and records the
// selected reviewer. The actor must be the document's author or hold the
// write capability.
func (m *Machine) SubmitForReview(ctx context.Context, actx *model.ActorContext, number, reviewer, comment string) (model.WorkflowInstance, error) {
	return m.apply(ctx, actx, number, model.ActionSubmitForReview, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if wf.CurrentState != model.StateDraft {
			return "", wrongStateError(model.ActionSubmitForReview, wf.CurrentState, model.StateDraft)
		}
		if doc.Author != actx.ActorID {
			if err := m.requireCapability(actx, model.CapDocumentsWrite); err != nil {
				return "", err
			}
		}
		wf.Reviewer = reviewer
		return model.StatePendingReview, nil
	}, comment)
}

// CompleteReview records the reviewer's decision: approval moves the
// document to REVIEWED, rejection returns it to DRAFT.
func (m *Machine) CompleteReview(ctx context.Context, actx *model.ActorContext, number string, approve bool, comment string) (model.WorkflowInstance, error) {
	return m.apply(ctx, actx, number, model.ActionCompleteReview, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if wf.CurrentState != model.StatePendingReview {
			return "", wrongStateError(model.ActionCompleteReview, wf.CurrentState, model.StatePendingReview)
		}
		if err := m.requireCapability(actx, model.CapDocumentsReview); err != nil {
			return "", err
		}
		if !approve {
			return model.StateDraft, nil
		}
		wf.LastApprovedState = model.StateReviewed
		return model.StateReviewed, nil
	}, comment)
}

// SubmitForApproval moves a REVIEWED document to PENDING_APPROVAL and
// records the selected approver.
func (m *Machine) SubmitForApproval(ctx context.Context, actx *model.ActorContext, number, approver, comment string) (model.WorkflowInstance, error) {
	return m.apply(ctx, actx, number, model.ActionSubmitForApproval, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if wf.CurrentState != model.StateReviewed {
			return "", wrongStateError(model.ActionSubmitForApproval, wf.CurrentState, model.StateReviewed)
		}
		if doc.Author != actx.ActorID {
			if err := m.requireCapability(actx, model.CapDocumentsWrite); err != nil {
				return "", err
			}
		}
		wf.Approver = approver
		return model.StatePendingApproval, nil
	}, comment)
}

// CompleteApproval records the approver's decision. Approval sets the
// effective date (defaulting to now) and moves the document to
// APPROVED_PENDING_EFFECTIVE, where it waits for the scheduler. Rejection
// returns it to DRAFT.
func (m *Machine) CompleteApproval(ctx context.Context, actx *model.ActorContext, number string, approve bool, effectiveDate *time.Time, comment string) (model.WorkflowInstance, error) {
	return m.apply(ctx, actx, number, model.ActionCompleteApproval, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if wf.CurrentState != model.StatePendingApproval {
			return "", wrongStateError(model.ActionCompleteApproval, wf.CurrentState, model.StatePendingApproval)
		}
		if err := m.requireCapability(actx, model.CapDocumentsApprove); err != nil {
			return "", err
		}
		if !approve {
			return model.StateDraft, nil
		}
		when := time.Now().UTC()
		if effectiveDate != nil {
			when = effectiveDate.UTC()
		}
		wf.EffectiveDate = &when
		wf.LastApprovedState = model.StateApprovedPendingEffective
		return model.StateApprovedPendingEffective, nil
	}, comment)
}

// StartObsolete begins obsoletion of an EFFECTIVE document, pending the
// approver's decision. The dependency guard must pass: documents that other
// effective documents depend on cannot be obsoleted.
func (m *Machine) StartObsolete(ctx context.Context, actx *model.ActorContext, number, comment string) (model.WorkflowInstance, error) {
	return m.apply(ctx, actx, number, model.ActionStartObsolete, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if wf.CurrentState != model.StateEffective {
			return "", wrongStateError(model.ActionStartObsolete, wf.CurrentState, model.StateEffective)
		}
		if err := m.requireCapability(actx, model.CapDocumentsObsolete); err != nil {
			return "", err
		}
		ok, blockers, err := m.guard.CanObsolete(ctx, number)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", dependencyError(blockers)
		}
		return model.StatePendingObsoletion, nil
	}, comment)
}

// ApproveObsoleting records the approver's decision on a pending
// obsoletion. Rejection is a no-op on state: the workflow stays in
// PENDING_OBSOLETION and only an audit entry is written. Approval re-checks
// the dependency guard; if dependents have appeared since StartObsolete the
// workflow is forced to TERMINATED, otherwise the obsoleting date is set
// (defaulting to now) and the workflow stays PENDING_OBSOLETION until the
// scheduler finds it due.
func (m *Machine) ApproveObsoleting(ctx context.Context, actx *model.ActorContext, number string, approve bool, obsoletingDate *time.Time, comment string) (model.WorkflowInstance, error) {
	key := lifecycleKey(number)

	if !approve {
		wf, err := m.store.GetWorkflow(ctx, key)
		if err != nil {
			return model.WorkflowInstance{}, err
		}
		if wf.CurrentState != model.StatePendingObsoletion {
			return model.WorkflowInstance{}, wrongStateError(model.ActionApproveObsoleting, wf.CurrentState, model.StatePendingObsoletion)
		}
		if err := m.requireCapability(actx, model.CapDocumentsApprove); err != nil {
			return model.WorkflowInstance{}, err
		}
		m.audit.LogUserAction(ctx, actx.ActorID, model.ActionApproveObsoleting, number,
			fmt.Sprintf("rejected obsoletion of %s, document unchanged", number),
			map[string]any{"approved": false, "comment": comment})
		return wf, nil
	}

	return m.apply(ctx, actx, number, model.ActionApproveObsoleting, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if wf.CurrentState != model.StatePendingObsoletion {
			return "", wrongStateError(model.ActionApproveObsoleting, wf.CurrentState, model.StatePendingObsoletion)
		}
		if err := m.requireCapability(actx, model.CapDocumentsApprove); err != nil {
			return "", err
		}

		ok, _, err := m.guard.CanObsolete(ctx, number)
		if err != nil {
			return "", err
		}
		if !ok {
			// Dependents appeared between start and approval: the
			// obsoletion cannot proceed and the workflow is terminated.
			wf.IsTerminated = true
			return model.StateTerminated, nil
		}

		when := time.Now().UTC()
		if obsoletingDate != nil {
			when = obsoletingDate.UTC()
		}
		wf.ObsoletingDate = &when
		return model.StatePendingObsoletion, nil
	}, comment)
}

// ScheduledActivate applies a date-due transition: a workflow in
// APPROVED_PENDING_EFFECTIVE whose effective date has arrived becomes
// EFFECTIVE, and a workflow in PENDING_OBSOLETION whose obsoleting date has
// arrived becomes OBSOLETE. When activation makes an up-versioned document
// effective, the parent document's EFFECTIVE workflow is superseded in the
// same atomic commit.
func (m *Machine) ScheduledActivate(ctx context.Context, key model.WorkflowKey, now time.Time) (model.WorkflowInstance, error) {
	unlock := m.locks.lock(key.String())
	defer unlock()

	var result model.WorkflowInstance
	err := m.withRetry(key, func() error {
		wf, err := m.store.GetWorkflow(ctx, key)
		if err != nil {
			return err
		}
		doc, err := m.store.GetDocument(ctx, key.DocumentNumber)
		if err != nil {
			return err
		}
		if wf.IsTerminated {
			return model.NewGuardViolationError(
				fmt.Sprintf("workflow %q is terminated", key))
		}

		var toState string
		switch wf.CurrentState {
		case model.StateApprovedPendingEffective:
			if wf.EffectiveDate == nil || wf.EffectiveDate.After(now) {
				return model.NewGuardViolationError(
					fmt.Sprintf("workflow %q effective date is not due", key))
			}
			toState = model.StateEffective
		case model.StatePendingObsoletion:
			if wf.ObsoletingDate == nil || wf.ObsoletingDate.After(now) {
				return model.NewGuardViolationError(
					fmt.Sprintf("workflow %q obsoleting date is not due", key))
			}
			toState = model.StateObsolete
		default:
			return model.NewGuardViolationError(
				fmt.Sprintf("workflow %q is in %s, not awaiting activation", key, wf.CurrentState))
		}

		commit, err := m.buildCommit(ctx, doc, wf, model.ActionScheduledActivate, toState, "system", "")
		if err != nil {
			return err
		}
		commits := []model.TransitionCommit{commit}

		// Supersession coupling: activating an up-versioned document
		// supersedes its parent atomically.
		if toState == model.StateEffective && doc.ParentDocument != nil {
			parentCommit, ok, err := m.buildSupersedeCommit(ctx, *doc.ParentDocument, doc.Number)
			if err != nil {
				return err
			}
			if ok {
				commits = append(commits, parentCommit)
			}
		}

		if err := m.store.Commit(ctx, commits...); err != nil {
			return err
		}

		for _, c := range commits {
			m.recordTransition(c.Transition)
			m.audit.LogSystemEvent(ctx, c.Transition.Action, c.Transition.DocumentNumber,
				fmt.Sprintf("%s: %s -> %s", c.Transition.Action, c.Transition.FromState, c.Transition.ToState),
				map[string]any{"seq": c.Transition.Seq})
		}

		result, err = m.store.GetWorkflow(ctx, key)
		return err
	})
	return result, err
}

// buildSupersedeCommit prepares the parent side of an up-version
// activation. Returns ok=false when the parent workflow is no longer
// EFFECTIVE, in which case supersession is skipped.
func (m *Machine) buildSupersedeCommit(ctx context.Context, parentNumber, childNumber string) (model.TransitionCommit, bool, error) {
	parentKey := lifecycleKey(parentNumber)
	parentWf, err := m.store.GetWorkflow(ctx, parentKey)
	if err != nil {
		if model.IsCode(err, model.ErrNotFound) {
			return model.TransitionCommit{}, false, nil
		}
		return model.TransitionCommit{}, false, err
	}
	if parentWf.CurrentState != model.StateEffective || parentWf.IsTerminated {
		return model.TransitionCommit{}, false, nil
	}
	parentDoc, err := m.store.GetDocument(ctx, parentNumber)
	if err != nil {
		return model.TransitionCommit{}, false, err
	}
	parentDoc.SupersededBy = &childNumber

	commit, err := m.buildCommit(ctx, parentDoc, parentWf, model.ActionSupersede, model.StateSuperseded, "system",
		fmt.Sprintf("superseded by %s", childNumber))
	if err != nil {
		return model.TransitionCommit{}, false, err
	}
	return commit, true, nil
}

// StartUpVersion creates the next version of an EFFECTIVE document: a new
// document in DRAFT with up-versioning lineage, running its own lifecycle
// workflow. The source document is untouched until the new version becomes
// effective, at which point it is superseded.
func (m *Machine) StartUpVersion(ctx context.Context, actx *model.ActorContext, sourceNumber, title, comment string) (model.Document, model.WorkflowInstance, error) {
	if err := m.requireCapability(actx, model.CapDocumentsWrite); err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}

	source, err := m.store.GetDocument(ctx, sourceNumber)
	if err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}
	if source.Status != model.StateEffective {
		return model.Document{}, model.WorkflowInstance{}, model.NewGuardViolationError(
			fmt.Sprintf("document %q is %s; only EFFECTIVE documents can be up-versioned", sourceNumber, source.Status))
	}

	newNumber, err := nextVersionNumber(source.Number, source.VersionMajor+1)
	if err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}
	if title == "" {
		title = source.Title
	}

	next := model.Document{
		Number:         newNumber,
		Title:          title,
		DocumentType:   source.DocumentType,
		Status:         model.StateDraft,
		VersionMajor:   source.VersionMajor + 1,
		VersionMinor:   0,
		Author:         actx.ActorID,
		Supersedes:     &source.Number,
		ParentDocument: &source.Number,
	}
	if err := m.store.CreateDocument(ctx, next); err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}

	wf := model.WorkflowInstance{
		DocumentNumber: next.Number,
		WorkflowType:   model.WorkflowTypeLifecycle,
		CurrentState:   model.StateDraft,
		InitiatedBy:    actx.ActorID,
	}
	if err := m.store.CreateWorkflow(ctx, wf); err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}

	m.audit.LogUserAction(ctx, actx.ActorID, model.ActionStartUpVersion, sourceNumber,
		fmt.Sprintf("started up-version %s of %s", next.Number, sourceNumber),
		map[string]any{"new_document": next.Number, "comment": comment})

	created, err := m.store.GetWorkflow(ctx, wf.Key())
	if err != nil {
		return model.Document{}, model.WorkflowInstance{}, err
	}
	next, err = m.store.GetDocument(ctx, next.Number)
	return next, created, err
}

// Terminate aborts a workflow that has not reached a terminal state. Only
// the original initiator may terminate. The workflow reverts to the most
// recent state in its own ledger that was reached via an approval
// transition (REVIEWED or APPROVED_PENDING_EFFECTIVE), or DRAFT when there
// is none; it never moves forward.
func (m *Machine) Terminate(ctx context.Context, actx *model.ActorContext, number, comment string) (model.WorkflowInstance, error) {
	return m.apply(ctx, actx, number, model.ActionTerminate, func(doc *model.Document, wf *model.WorkflowInstance) (string, error) {
		if model.IsTerminalState(wf.CurrentState) {
			return "", model.NewGuardViolationError(
				fmt.Sprintf("workflow for %q already reached terminal state %s", number, wf.CurrentState))
		}
		if wf.InitiatedBy != actx.ActorID {
			return "", model.NewGuardViolationError(
				fmt.Sprintf("only the workflow initiator %q may terminate", wf.InitiatedBy))
		}

		ledger, err := m.store.GetTransitions(ctx, wf.Key())
		if err != nil {
			return "", err
		}
		target := lastApprovedState(ledger)
		wf.IsTerminated = true
		wf.LastApprovedState = target
		return target, nil
	}, comment)
}

// lastApprovedState scans a ledger backwards for the most recent state
// reached via an approval transition. States reached only via rejection do
// not count. Defaults to DRAFT.
func lastApprovedState(ledger []model.Transition) string {
	for i := len(ledger) - 1; i >= 0; i-- {
		t := ledger[i]
		switch {
		case t.Action == model.ActionCompleteReview && t.ToState == model.StateReviewed:
			return model.StateReviewed
		case t.Action == model.ActionCompleteApproval && t.ToState == model.StateApprovedPendingEffective:
			return model.StateApprovedPendingEffective
		}
	}
	return model.StateDraft
}

// Ledger returns a document's lifecycle transition history in order.
func (m *Machine) Ledger(ctx context.Context, number string) ([]model.Transition, error) {
	return m.store.GetTransitions(ctx, lifecycleKey(number))
}

// Impact exposes the dependency guard's impact analysis.
func (m *Machine) Impact(ctx context.Context, number string) (Impact, error) {
	return m.guard.ImpactAnalysis(ctx, number)
}

// apply runs one actor-driven transition under the per-workflow lock with
// bounded conflict retries. The decide callback validates guards, mutates
// the workflow/document in place, and returns the target state.
func (m *Machine) apply(
	ctx context.Context,
	actx *model.ActorContext,
	number, action string,
	decide func(doc *model.Document, wf *model.WorkflowInstance) (string, error),
	comment string,
) (model.WorkflowInstance, error) {
	if err := actx.Validate(); err != nil {
		return model.WorkflowInstance{}, model.NewValidationError(err.Error())
	}

	key := lifecycleKey(number)
	unlock := m.locks.lock(key.String())
	defer unlock()

	ctx, span := observability.StartSpan(ctx, "lifecycle."+action,
		observability.AttrDocumentNumber.String(number),
		observability.AttrAction.String(action),
		observability.AttrActorID.String(actx.ActorID),
	)
	var result model.WorkflowInstance
	err := m.withRetry(key, func() error {
		wf, err := m.store.GetWorkflow(ctx, key)
		if err != nil {
			return err
		}
		doc, err := m.store.GetDocument(ctx, number)
		if err != nil {
			return err
		}
		if wf.IsTerminated {
			return model.NewGuardViolationError(
				fmt.Sprintf("workflow for %q is terminated", number))
		}

		toState, err := decide(&doc, &wf)
		if err != nil {
			if model.IsCode(err, model.ErrGuardViolation) && m.metrics != nil {
				m.metrics.GuardViolationsTotal.WithLabelValues(action).Inc()
			}
			return err
		}

		commit, err := m.buildCommit(ctx, doc, wf, action, toState, actx.ActorID, comment)
		if err != nil {
			return err
		}

		start := time.Now()
		if err := m.store.Commit(ctx, commit); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.TransitionCommitSeconds.WithLabelValues(action).Observe(time.Since(start).Seconds())
		}
		m.recordTransition(commit.Transition)

		m.audit.LogUserAction(ctx, actx.ActorID, action, number,
			fmt.Sprintf("%s: %s -> %s", action, commit.Transition.FromState, commit.Transition.ToState),
			map[string]any{"seq": commit.Transition.Seq, "comment": comment})

		m.logger.Info("transition committed",
			zap.String("document", number),
			zap.String("action", action),
			zap.String("from_state", commit.Transition.FromState),
			zap.String("to_state", commit.Transition.ToState),
			zap.Int("seq", commit.Transition.Seq),
			zap.String("actor", actx.ActorID),
		)

		result, err = m.store.GetWorkflow(ctx, key)
		return err
	})
	observability.EndSpan(span, err)
	return result, err
}

// withRetry retries op a bounded number of times on optimistic-lock
// conflicts, then surfaces CONCURRENT_MODIFICATION.
func (m *Machine) withRetry(key model.WorkflowKey, op func() error) error {
	var err error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		err = op()
		if err == nil || !model.IsCode(err, model.ErrConflict) {
			return err
		}
		if m.metrics != nil {
			m.metrics.ConflictRetriesTotal.Inc()
		}
	}
	return model.NewConcurrentModificationError(
		fmt.Sprintf("workflow %q was modified concurrently; retry", key))
}

// buildCommit assembles the atomic unit for one transition: the next
// ledger row, the workflow moved to toState, and the document with
// mirrored status.
func (m *Machine) buildCommit(ctx context.Context, doc model.Document, wf model.WorkflowInstance, action, toState, actor, comment string) (model.TransitionCommit, error) {
	ledger, err := m.store.GetTransitions(ctx, wf.Key())
	if err != nil {
		return model.TransitionCommit{}, err
	}

	tr := model.Transition{
		ID:             uuid.New().String(),
		DocumentNumber: wf.DocumentNumber,
		WorkflowType:   wf.WorkflowType,
		Seq:            len(ledger) + 1,
		FromState:      wf.CurrentState,
		ToState:        toState,
		Action:         action,
		Actor:          actor,
		Comment:        comment,
		Timestamp:      time.Now().UTC(),
	}
	wf.CurrentState = toState
	doc.Status = toState

	return model.TransitionCommit{Workflow: wf, Transition: tr, Document: doc}, nil
}

func (m *Machine) recordTransition(tr model.Transition) {
	if m.metrics == nil {
		return
	}
	m.metrics.TransitionsTotal.WithLabelValues(tr.Action, tr.ToState).Inc()
}

// requireCapability resolves the actor's capabilities and checks one.
func (m *Machine) requireCapability(actx *model.ActorContext, capability string) error {
	caps, err := m.caps.Resolve(actx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	if !caps.Has(capability) {
		return model.NewForbiddenError(
			fmt.Sprintf("actor %q lacks capability %q", actx.ActorID, capability))
	}
	return nil
}

func wrongStateError(action, current string, expected ...string) error {
	return model.NewGuardViolationError(
		fmt.Sprintf("%s requires state %s, workflow is in %s", action, strings.Join(expected, " or "), current))
}

func dependencyError(blockers []string) error {
	return model.NewGuardViolationError(
		fmt.Sprintf("%d documents depend on this document: %s", len(blockers), strings.Join(blockers, ", ")))
}

// nextVersionNumber derives the next document number from a versioned one,
// e.g. "SOP-2025-0001-v01.00" with major 2 becomes "SOP-2025-0001-v02.00".
func nextVersionNumber(number string, major int) (string, error) {
	idx := strings.LastIndex(number, "-v")
	if idx < 0 {
		return "", model.NewValidationError(
			fmt.Sprintf("document number %q has no version suffix", number))
	}
	suffix := number[idx+2:]
	parts := strings.SplitN(suffix, ".", 2)
	if len(parts) != 2 || len(parts[0]) == 0 {
		return "", model.NewValidationError(
			fmt.Sprintf("document number %q has a malformed version suffix", number))
	}
	return fmt.Sprintf("%s-v%02d.00", number[:idx], major), nil
}
