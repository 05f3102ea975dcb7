package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/audit"
	"github.com/veridoc/veridoc/internal/observability"
	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// Mode selects how a restore treats infrastructure rows.
type Mode string

const (
	// ModeFull restores every kind, creating state rows that are missing.
	ModeFull Mode = "full"

	// ModeInfraPreserved never writes state reference rows; the target's
	// seeded states are assumed authoritative and archive state records are
	// skipped when present.
	ModeInfraPreserved Mode = "infra-preserved"
)

// Options configures one restore run.
type Options struct {
	Mode Mode

	// DryRun validates and counts without writing anything.
	DryRun bool

	// UpdateExisting overwrites documents and workflows that already exist
	// in the target instead of skipping them.
	UpdateExisting bool
}

func (o Options) validate() error {
	switch o.Mode {
	case ModeFull, ModeInfraPreserved:
		return nil
	case "":
		return model.NewValidationError("restore mode is required")
	default:
		return model.NewValidationError(fmt.Sprintf("unknown restore mode %q", o.Mode))
	}
}

// RestoreProcessor loads archives into a store. Records are applied
// sequentially in kind order; a failure on one record is recorded in the
// report and never aborts the run. Restoring the same archive twice is a
// no-op on the second run.
type RestoreProcessor struct {
	store   store.DocumentStore
	audit   audit.Recorder
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRestoreProcessor creates a restore processor. metrics may be nil.
func NewRestoreProcessor(st store.DocumentStore, rec audit.Recorder, logger *zap.Logger, metrics *observability.Metrics) *RestoreProcessor {
	return &RestoreProcessor{store: st, audit: rec, logger: logger, metrics: metrics}
}

// Restore verifies and loads the archive at path. The checksum is verified
// before any record is applied; an unreadable or tampered archive aborts
// with ARCHIVE_INTEGRITY and an untouched store.
func (p *RestoreProcessor) Restore(ctx context.Context, path string, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "archive.restore",
		observability.AttrArchivePath.String(path),
		observability.AttrRestoreMode.String(string(opts.Mode)),
	)
	report, err := p.restore(ctx, path, opts)
	observability.EndSpan(span, err)

	if p.metrics != nil {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case report.HasFailures():
			status = "partial"
		}
		p.metrics.RestoresTotal.WithLabelValues(status, string(opts.Mode)).Inc()
	}
	return report, err
}

func (p *RestoreProcessor) restore(ctx context.Context, path string, opts Options) (*Report, error) {
	manifest, records, err := OpenContainer(path)
	if err != nil {
		return nil, err
	}

	// Archives are written in load order already; re-sort defensively so a
	// hand-assembled archive still loads. The sort is stable, preserving
	// seq order within each workflow's transitions.
	sort.SliceStable(records, func(i, j int) bool {
		return kindOrder[records[i].Kind] < kindOrder[records[j].Kind]
	})

	p.logger.Info("restoring archive",
		zap.String("path", path),
		zap.String("mode", string(opts.Mode)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("records", len(records)),
		zap.Time("exported_at", manifest.ExportedAt),
	)
	if p.metrics != nil {
		p.metrics.RestoreRecordCount.Observe(float64(len(records)))
	}

	run := &restoreRun{
		proc:   p,
		opts:   opts,
		report: newReport(opts.Mode, opts.DryRun),
		states: make(map[string]bool),
		docs:   make(map[string]bool),
		flows:  make(map[string]bool),
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return run.report, err
		}
		run.applyRecord(ctx, rec)
	}

	if !opts.DryRun {
		p.audit.LogSystemEvent(ctx, "restore_archive", path,
			fmt.Sprintf("restored archive in %s mode", opts.Mode),
			map[string]any{"kinds": run.report.Kinds, "failed": len(run.report.Failed)})
	}
	return run.report, nil
}

// restoreRun tracks which natural keys are usable as reference targets:
// keys already in the store plus keys this run has restored. A record whose
// reference resolves to neither is skipped as unresolved.
type restoreRun struct {
	proc   *RestoreProcessor
	opts   Options
	report *Report

	states map[string]bool
	docs   map[string]bool
	flows  map[string]bool
}

func (r *restoreRun) applyRecord(ctx context.Context, rec Record) {
	var outcome string
	switch rec.Kind {
	case KindState:
		outcome = r.applyState(ctx, rec)
	case KindDocument:
		outcome = r.applyDocument(ctx, rec)
	case KindWorkflow:
		outcome = r.applyWorkflow(ctx, rec)
	case KindTransition:
		outcome = r.applyTransition(ctx, rec)
	}
	if r.proc.metrics != nil {
		r.proc.metrics.RestoreRecordsTotal.WithLabelValues(string(rec.Kind), outcome).Inc()
	}
}

func (r *restoreRun) applyState(ctx context.Context, rec Record) string {
	var state model.DocumentState
	if err := json.Unmarshal(rec.Fields, &state); err != nil {
		r.report.failed(rec.Kind, rec.Key, err)
		return "failed"
	}
	if state.Code == "" {
		r.report.failed(rec.Kind, rec.Key, model.NewValidationError("state record has no code"))
		return "failed"
	}

	if r.stateResolves(ctx, state.Code) {
		// Already present, whether seeded or restored earlier this run.
		// Infra-preserved and full mode agree here: never duplicate.
		r.report.skipped(rec.Kind)
		return "skipped"
	}
	if r.opts.Mode == ModeInfraPreserved {
		r.states[state.Code] = true
		r.report.skipped(rec.Kind)
		return "skipped"
	}

	if !r.opts.DryRun {
		if err := r.proc.store.CreateState(ctx, state); err != nil {
			if model.IsCode(err, model.ErrConflict) {
				r.states[state.Code] = true
				r.report.skipped(rec.Kind)
				return "skipped"
			}
			r.report.failed(rec.Kind, rec.Key, err)
			return "failed"
		}
	}
	r.states[state.Code] = true
	r.report.created(rec.Kind)
	return "created"
}

func (r *restoreRun) applyDocument(ctx context.Context, rec Record) string {
	var doc model.Document
	if err := json.Unmarshal(rec.Fields, &doc); err != nil {
		r.report.failed(rec.Kind, rec.Key, err)
		return "failed"
	}
	if doc.Number == "" {
		r.report.failed(rec.Kind, rec.Key, model.NewValidationError("document record has no number"))
		return "failed"
	}
	if doc.Status != "" && !r.stateResolves(ctx, doc.Status) {
		r.report.unresolved(rec.Kind, rec.Key, fmt.Sprintf("unknown state %q", doc.Status))
		return "unresolved"
	}

	exists := r.documentInStore(ctx, doc.Number)
	switch {
	case exists && !r.opts.UpdateExisting:
		r.docs[doc.Number] = true
		r.report.skipped(rec.Kind)
		return "skipped"
	case exists:
		if !r.opts.DryRun {
			if err := r.proc.store.UpdateDocument(ctx, doc); err != nil {
				r.report.failed(rec.Kind, rec.Key, err)
				return "failed"
			}
		}
		r.docs[doc.Number] = true
		r.report.updated(rec.Kind)
		return "updated"
	default:
		if !r.opts.DryRun {
			if err := r.proc.store.CreateDocument(ctx, doc); err != nil {
				r.report.failed(rec.Kind, rec.Key, err)
				return "failed"
			}
		}
		r.docs[doc.Number] = true
		r.report.created(rec.Kind)
		return "created"
	}
}

func (r *restoreRun) applyWorkflow(ctx context.Context, rec Record) string {
	var wf model.WorkflowInstance
	if err := json.Unmarshal(rec.Fields, &wf); err != nil {
		r.report.failed(rec.Kind, rec.Key, err)
		return "failed"
	}
	if wf.DocumentNumber == "" || wf.WorkflowType == "" {
		r.report.failed(rec.Kind, rec.Key, model.NewValidationError("workflow record has an incomplete natural key"))
		return "failed"
	}
	if !r.documentResolves(ctx, wf.DocumentNumber) {
		r.report.unresolved(rec.Kind, rec.Key,
			fmt.Sprintf("document %q not found", wf.DocumentNumber))
		return "unresolved"
	}
	if wf.CurrentState != "" && !r.stateResolves(ctx, wf.CurrentState) {
		r.report.unresolved(rec.Kind, rec.Key, fmt.Sprintf("unknown state %q", wf.CurrentState))
		return "unresolved"
	}

	key := wf.Key()
	exists := r.workflowInStore(ctx, key)
	switch {
	case exists && !r.opts.UpdateExisting:
		r.flows[key.String()] = true
		r.report.skipped(rec.Kind)
		return "skipped"
	case exists:
		if !r.opts.DryRun {
			current, err := r.proc.store.GetWorkflow(ctx, key)
			if err != nil {
				r.report.failed(rec.Kind, rec.Key, err)
				return "failed"
			}
			wf.Version = current.Version
			if err := r.proc.store.UpdateWorkflow(ctx, wf); err != nil {
				r.report.failed(rec.Kind, rec.Key, err)
				return "failed"
			}
		}
		r.flows[key.String()] = true
		r.report.updated(rec.Kind)
		return "updated"
	default:
		if !r.opts.DryRun {
			if err := r.proc.store.CreateWorkflow(ctx, wf); err != nil {
				r.report.failed(rec.Kind, rec.Key, err)
				return "failed"
			}
		}
		r.flows[key.String()] = true
		r.report.created(rec.Kind)
		return "created"
	}
}

func (r *restoreRun) applyTransition(ctx context.Context, rec Record) string {
	var tr model.Transition
	if err := json.Unmarshal(rec.Fields, &tr); err != nil {
		r.report.failed(rec.Kind, rec.Key, err)
		return "failed"
	}
	if tr.DocumentNumber == "" || tr.WorkflowType == "" || tr.Seq < 1 {
		r.report.failed(rec.Kind, rec.Key, model.NewValidationError("transition record has an incomplete natural key"))
		return "failed"
	}
	key := model.WorkflowKey{DocumentNumber: tr.DocumentNumber, WorkflowType: tr.WorkflowType}
	if !r.workflowResolves(ctx, key) {
		r.report.unresolved(rec.Kind, rec.Key,
			fmt.Sprintf("workflow %q not found", key))
		return "unresolved"
	}

	if r.opts.DryRun {
		if r.transitionInStore(ctx, key, tr.Seq) {
			r.report.skipped(rec.Kind)
			return "skipped"
		}
		r.report.created(rec.Kind)
		return "created"
	}

	if err := r.proc.store.AppendTransition(ctx, tr); err != nil {
		if model.IsCode(err, model.ErrConflict) {
			// Seq already present: the ledger row survived or an earlier
			// restore wrote it. Append-only, so it is never overwritten.
			r.report.skipped(rec.Kind)
			return "skipped"
		}
		r.report.failed(rec.Kind, rec.Key, err)
		return "failed"
	}
	r.report.created(rec.Kind)
	return "created"
}

func (r *restoreRun) stateResolves(ctx context.Context, code string) bool {
	if r.states[code] {
		return true
	}
	if _, err := r.proc.store.GetState(ctx, code); err == nil {
		r.states[code] = true
		return true
	}
	return false
}

func (r *restoreRun) documentInStore(ctx context.Context, number string) bool {
	_, err := r.proc.store.GetDocument(ctx, number)
	return err == nil
}

func (r *restoreRun) documentResolves(ctx context.Context, number string) bool {
	return r.docs[number] || r.documentInStore(ctx, number)
}

func (r *restoreRun) workflowInStore(ctx context.Context, key model.WorkflowKey) bool {
	_, err := r.proc.store.GetWorkflow(ctx, key)
	return err == nil
}

func (r *restoreRun) workflowResolves(ctx context.Context, key model.WorkflowKey) bool {
	return r.flows[key.String()] || r.workflowInStore(ctx, key)
}

func (r *restoreRun) transitionInStore(ctx context.Context, key model.WorkflowKey, seq int) bool {
	ledger, err := r.proc.store.GetTransitions(ctx, key)
	if err != nil {
		return false
	}
	for _, t := range ledger {
		if t.Seq == seq {
			return true
		}
	}
	return false
}
