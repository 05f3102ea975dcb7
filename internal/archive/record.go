// Package archive implements natural-key export and restore of lifecycle
// data. Archives carry no database identifiers: every record and every
// reference inside a record uses human-readable natural keys, so an archive
// written before a full data wipe restores cleanly into an empty store.
package archive

import (
	"encoding/json"
	"fmt"

	"github.com/veridoc/veridoc/model"
)

// Kind identifies a record type in an archive. The set is closed: a record
// with any other kind fails restore validation rather than being guessed at.
type Kind string

const (
	KindState      Kind = "state"
	KindDocument   Kind = "document"
	KindWorkflow   Kind = "workflow"
	KindTransition Kind = "transition"
)

// kindOrder is the load order a restore requires: states before the
// documents that carry their codes, documents before their workflows,
// workflows before their ledgers.
var kindOrder = map[Kind]int{
	KindState:      0,
	KindDocument:   1,
	KindWorkflow:   2,
	KindTransition: 3,
}

// KnownKind reports whether k is part of the closed kind set.
func KnownKind(k Kind) bool {
	_, ok := kindOrder[k]
	return ok
}

// Record is one line of records.ndjson. Key repeats the record's natural
// key so reports and logs can name a record without decoding Fields.
type Record struct {
	Kind   Kind            `json:"kind"`
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

func newRecord(kind Kind, key string, fields any) (Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s %q: %w", kind, key, err)
	}
	return Record{Kind: kind, Key: key, Fields: raw}, nil
}

func stateRecord(s model.DocumentState) (Record, error) {
	return newRecord(KindState, s.Code, s)
}

func documentRecord(d model.Document) (Record, error) {
	return newRecord(KindDocument, d.Number, d)
}

func workflowRecord(w model.WorkflowInstance) (Record, error) {
	// Version is a row-local optimistic-locking counter, meaningless across
	// stores; archives never carry it.
	w.Version = 0
	return newRecord(KindWorkflow, w.Key().String(), w)
}

func transitionRecord(t model.Transition) (Record, error) {
	key := fmt.Sprintf("%s/%s/%d", t.DocumentNumber, t.WorkflowType, t.Seq)
	return newRecord(KindTransition, key, t)
}
