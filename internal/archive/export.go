package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/observability"
	"github.com/veridoc/veridoc/internal/store"
)

// Selector narrows an export to specific documents. An empty selector
// exports everything. State reference data is always exported in full so
// the archive restores into an empty store without prior seeding.
type Selector struct {
	Documents []string
}

func (s Selector) wants(number string) bool {
	if len(s.Documents) == 0 {
		return true
	}
	for _, n := range s.Documents {
		if n == number {
			return true
		}
	}
	return false
}

// Exporter serializes lifecycle data to natural-key records.
type Exporter struct {
	store   store.DocumentStore
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewExporter creates an exporter. metrics may be nil.
func NewExporter(st store.DocumentStore, logger *zap.Logger, metrics *observability.Metrics) *Exporter {
	return &Exporter{store: st, logger: logger, metrics: metrics}
}

// WriteRecords writes NDJSON records to w in load order: states, then
// documents, then workflows, then each workflow's ledger in ascending seq.
// Returns per-kind record counts.
func (e *Exporter) WriteRecords(ctx context.Context, w io.Writer, sel Selector) (map[string]int, error) {
	records, err := e.collect(ctx, sel)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
		counts[string(rec.Kind)]++
	}
	return counts, nil
}

// Export writes a complete archive file to path and returns its manifest.
func (e *Exporter) Export(ctx context.Context, path string, sel Selector) (Manifest, error) {
	ctx, span := observability.StartSpan(ctx, "archive.export",
		observability.AttrArchivePath.String(path),
	)
	manifest, err := e.export(ctx, path, sel)
	observability.EndSpan(span, err)

	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.ExportsTotal.WithLabelValues(status).Inc()
	}
	return manifest, err
}

func (e *Exporter) export(ctx context.Context, path string, sel Selector) (Manifest, error) {
	var buf bytes.Buffer
	counts, err := e.WriteRecords(ctx, &buf, sel)
	if err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		FormatVersion: FormatVersion,
		ExportedAt:    time.Now().UTC(),
		Counts:        counts,
		Checksum:      ChecksumHex(buf.Bytes()),
	}
	if err := WriteContainer(path, manifest, buf.Bytes()); err != nil {
		return Manifest{}, err
	}

	e.logger.Info("archive written",
		zap.String("path", path),
		zap.Any("counts", counts),
		zap.String("checksum", manifest.Checksum),
	)
	return manifest, nil
}

func (e *Exporter) collect(ctx context.Context, sel Selector) ([]Record, error) {
	var records []Record

	states, err := e.store.ListStates(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Code < states[j].Code })
	for _, s := range states {
		rec, err := stateRecord(s)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Number < docs[j].Number })
	selected := make(map[string]bool)
	for _, d := range docs {
		if !sel.wants(d.Number) {
			continue
		}
		selected[d.Number] = true
		rec, err := documentRecord(d)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	workflows, err := e.store.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].Key().String() < workflows[j].Key().String()
	})
	for _, wf := range workflows {
		if !selected[wf.DocumentNumber] {
			continue
		}
		rec, err := workflowRecord(wf)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)

		ledger, err := e.store.GetTransitions(ctx, wf.Key())
		if err != nil {
			return nil, err
		}
		for _, tr := range ledger {
			trec, err := transitionRecord(tr)
			if err != nil {
				return nil, err
			}
			records = append(records, trec)
		}
	}
	return records, nil
}
