// Package store persists documents, lifecycle workflows, transition ledgers,
// state reference data, and dependency edges. Two implementations are
// provided: an in-memory store for tests and a PostgreSQL store for
// production.
package store

import (
	"context"
	"time"

	"github.com/veridoc/veridoc/model"
)

// DocumentStore owns document records and reference data. State rows are
// infrastructure: seeded once, preserved across data wipes, never duplicated
// by a restore.
type DocumentStore interface {
	// CreateState inserts a lifecycle state definition. Returns CONFLICT if
	// the code already exists.
	CreateState(ctx context.Context, state model.DocumentState) error

	// GetState retrieves a state definition by code.
	GetState(ctx context.Context, code string) (model.DocumentState, error)

	// ListStates returns all state definitions.
	ListStates(ctx context.Context) ([]model.DocumentState, error)

	// CreateDocument inserts a new document. Returns CONFLICT if the
	// document number already exists.
	CreateDocument(ctx context.Context, doc model.Document) error

	// GetDocument retrieves a document by number.
	GetDocument(ctx context.Context, number string) (model.Document, error)

	// UpdateDocument overwrites a document row by number.
	UpdateDocument(ctx context.Context, doc model.Document) error

	// ListDocuments returns all documents ordered by number.
	ListDocuments(ctx context.Context) ([]model.Document, error)

	// CreateWorkflow inserts a new workflow instance. Returns CONFLICT if
	// an instance with the same natural key exists.
	CreateWorkflow(ctx context.Context, wf model.WorkflowInstance) error

	// GetWorkflow retrieves a workflow instance by natural key.
	GetWorkflow(ctx context.Context, key model.WorkflowKey) (model.WorkflowInstance, error)

	// UpdateWorkflow persists an updated workflow instance with optimistic
	// locking on Version. Returns CONFLICT if the version has changed.
	UpdateWorkflow(ctx context.Context, wf model.WorkflowInstance) error

	// ListWorkflows returns all workflow instances.
	ListWorkflows(ctx context.Context) ([]model.WorkflowInstance, error)

	// FindDueEffective returns APPROVED_PENDING_EFFECTIVE workflows whose
	// effective date is at or before the cutoff.
	FindDueEffective(ctx context.Context, cutoff time.Time) ([]model.WorkflowInstance, error)

	// FindDueObsoleting returns PENDING_OBSOLETION workflows whose
	// obsoleting date is set and at or before the cutoff.
	FindDueObsoleting(ctx context.Context, cutoff time.Time) ([]model.WorkflowInstance, error)

	// GetTransitions returns a workflow's ledger in ascending Seq order.
	GetTransitions(ctx context.Context, key model.WorkflowKey) ([]model.Transition, error)

	// AppendTransition inserts a single ledger row outside a commit. Used
	// by restore, which rebuilds ledgers record by record. Returns CONFLICT
	// if the (workflow, seq) natural key already exists.
	AppendTransition(ctx context.Context, tr model.Transition) error

	// Commit applies one or more transition commits as a single atomic
	// unit: each appends a ledger row, updates the workflow (optimistic
	// lock on Version), and writes the document with mirrored status.
	// All commits apply or none do.
	Commit(ctx context.Context, commits ...model.TransitionCommit) error

	// AddDependencyEdge records that a document depends on another.
	AddDependencyEdge(ctx context.Context, edge model.DependencyEdge) error

	// ListDependents returns edges whose DependsOn is the given document
	// number, i.e. the documents that depend on it.
	ListDependents(ctx context.Context, number string) ([]model.DependencyEdge, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}
