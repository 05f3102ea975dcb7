package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridoc/veridoc/model"
)

// PgStore is a PostgreSQL-backed DocumentStore using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL document store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Schema creates all tables if they do not exist. Intended for fresh
// installs and the post-wipe restore path; production deployments run
// managed migrations instead.
const Schema = `
CREATE TABLE IF NOT EXISTS document_states (
	code        TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	terminal    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	number          TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	document_type   TEXT NOT NULL,
	status          TEXT NOT NULL REFERENCES document_states(code),
	version_major   INT NOT NULL,
	version_minor   INT NOT NULL,
	author          TEXT NOT NULL,
	supersedes      TEXT,
	superseded_by   TEXT,
	parent_document TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_instances (
	document_number     TEXT NOT NULL REFERENCES documents(number),
	workflow_type       TEXT NOT NULL,
	current_state       TEXT NOT NULL REFERENCES document_states(code),
	initiated_by        TEXT NOT NULL,
	reviewer            TEXT NOT NULL DEFAULT '',
	approver            TEXT NOT NULL DEFAULT '',
	effective_date      TIMESTAMPTZ,
	obsoleting_date     TIMESTAMPTZ,
	is_terminated       BOOLEAN NOT NULL DEFAULT FALSE,
	last_approved_state TEXT NOT NULL DEFAULT '',
	version             INT NOT NULL DEFAULT 1,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_number, workflow_type)
);

CREATE TABLE IF NOT EXISTS workflow_transitions (
	id              TEXT NOT NULL,
	document_number TEXT NOT NULL,
	workflow_type   TEXT NOT NULL,
	seq             INT NOT NULL,
	from_state      TEXT NOT NULL,
	to_state        TEXT NOT NULL,
	action          TEXT NOT NULL,
	actor           TEXT NOT NULL,
	comment         TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_number, workflow_type, seq),
	FOREIGN KEY (document_number, workflow_type)
		REFERENCES workflow_instances(document_number, workflow_type)
);

CREATE TABLE IF NOT EXISTS dependency_edges (
	document_number TEXT NOT NULL,
	depends_on      TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (document_number, depends_on)
);
`

// EnsureSchema applies the embedded schema.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique or primary key
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateState inserts a lifecycle state definition.
func (s *PgStore) CreateState(ctx context.Context, state model.DocumentState) error {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_states (code, name, terminal, created_at)
		VALUES ($1, $2, $3, $4)`,
		state.Code, state.Name, state.Terminal, state.CreatedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(fmt.Sprintf("state %q already exists", state.Code))
	}
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

// GetState retrieves a state definition by code.
func (s *PgStore) GetState(ctx context.Context, code string) (model.DocumentState, error) {
	var st model.DocumentState
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, terminal, created_at
		FROM document_states WHERE code = $1`, code,
	).Scan(&st.Code, &st.Name, &st.Terminal, &st.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.DocumentState{}, model.NewNotFoundError(
			fmt.Sprintf("state %q not found", code),
		)
	}
	if err != nil {
		return model.DocumentState{}, fmt.Errorf("query state: %w", err)
	}
	return st, nil
}

// ListStates returns all state definitions.
func (s *PgStore) ListStates(ctx context.Context) ([]model.DocumentState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, terminal, created_at
		FROM document_states ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	var result []model.DocumentState
	for rows.Next() {
		var st model.DocumentState
		if err := rows.Scan(&st.Code, &st.Name, &st.Terminal, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// CreateDocument inserts a new document.
func (s *PgStore) CreateDocument(ctx context.Context, doc model.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (
			number, title, document_type, status,
			version_major, version_minor, author,
			supersedes, superseded_by, parent_document,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		doc.Number, doc.Title, doc.DocumentType, doc.Status,
		doc.VersionMajor, doc.VersionMinor, doc.Author,
		doc.Supersedes, doc.SupersededBy, doc.ParentDocument,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(fmt.Sprintf("document %q already exists", doc.Number))
	}
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by number.
func (s *PgStore) GetDocument(ctx context.Context, number string) (model.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, `
		SELECT number, title, document_type, status,
		       version_major, version_minor, author,
		       supersedes, superseded_by, parent_document,
		       created_at, updated_at
		FROM documents WHERE number = $1`, number))
	if err == pgx.ErrNoRows {
		return model.Document{}, model.NewNotFoundError(
			fmt.Sprintf("document %q not found", number),
		)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("query document: %w", err)
	}
	return doc, nil
}

// UpdateDocument overwrites a document row by number.
func (s *PgStore) UpdateDocument(ctx context.Context, doc model.Document) error {
	tag, err := s.pool.Exec(ctx, updateDocumentSQL, documentUpdateArgs(doc)...)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("document %q not found", doc.Number))
	}
	return nil
}

const updateDocumentSQL = `
	UPDATE documents SET
		title = $1, document_type = $2, status = $3,
		version_major = $4, version_minor = $5, author = $6,
		supersedes = $7, superseded_by = $8, parent_document = $9,
		updated_at = $10
	WHERE number = $11`

func documentUpdateArgs(doc model.Document) []any {
	return []any{
		doc.Title, doc.DocumentType, doc.Status,
		doc.VersionMajor, doc.VersionMinor, doc.Author,
		doc.Supersedes, doc.SupersededBy, doc.ParentDocument,
		time.Now().UTC(), doc.Number,
	}
}

// ListDocuments returns all documents ordered by number.
func (s *PgStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT number, title, document_type, status,
		       version_major, version_minor, author,
		       supersedes, superseded_by, parent_document,
		       created_at, updated_at
		FROM documents ORDER BY number ASC`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var result []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (model.Document, error) {
	var doc model.Document
	err := row.Scan(
		&doc.Number, &doc.Title, &doc.DocumentType, &doc.Status,
		&doc.VersionMajor, &doc.VersionMinor, &doc.Author,
		&doc.Supersedes, &doc.SupersededBy, &doc.ParentDocument,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	return doc, err
}

// CreateWorkflow inserts a new workflow instance.
func (s *PgStore) CreateWorkflow(ctx context.Context, wf model.WorkflowInstance) error {
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	if wf.Version == 0 {
		wf.Version = 1
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (
			document_number, workflow_type, current_state, initiated_by,
			reviewer, approver, effective_date, obsoleting_date,
			is_terminated, last_approved_state, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		wf.DocumentNumber, wf.WorkflowType, wf.CurrentState, wf.InitiatedBy,
		wf.Reviewer, wf.Approver, wf.EffectiveDate, wf.ObsoletingDate,
		wf.IsTerminated, wf.LastApprovedState, wf.Version,
		wf.CreatedAt, wf.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(fmt.Sprintf("workflow %q already exists", wf.Key()))
	}
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

const selectWorkflowSQL = `
	SELECT document_number, workflow_type, current_state, initiated_by,
	       reviewer, approver, effective_date, obsoleting_date,
	       is_terminated, last_approved_state, version,
	       created_at, updated_at
	FROM workflow_instances`

func scanWorkflow(row rowScanner) (model.WorkflowInstance, error) {
	var wf model.WorkflowInstance
	err := row.Scan(
		&wf.DocumentNumber, &wf.WorkflowType, &wf.CurrentState, &wf.InitiatedBy,
		&wf.Reviewer, &wf.Approver, &wf.EffectiveDate, &wf.ObsoletingDate,
		&wf.IsTerminated, &wf.LastApprovedState, &wf.Version,
		&wf.CreatedAt, &wf.UpdatedAt,
	)
	return wf, err
}

// GetWorkflow retrieves a workflow instance by natural key.
func (s *PgStore) GetWorkflow(ctx context.Context, key model.WorkflowKey) (model.WorkflowInstance, error) {
	wf, err := scanWorkflow(s.pool.QueryRow(ctx,
		selectWorkflowSQL+` WHERE document_number = $1 AND workflow_type = $2`,
		key.DocumentNumber, key.WorkflowType))
	if err == pgx.ErrNoRows {
		return model.WorkflowInstance{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", key),
		)
	}
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("query workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflow persists an updated instance with optimistic locking.
func (s *PgStore) UpdateWorkflow(ctx context.Context, wf model.WorkflowInstance) error {
	tag, err := s.pool.Exec(ctx, updateWorkflowSQL, workflowUpdateArgs(wf)...)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d)", wf.Key(), wf.Version),
		)
	}
	return nil
}

const updateWorkflowSQL = `
	UPDATE workflow_instances SET
		current_state = $1, reviewer = $2, approver = $3,
		effective_date = $4, obsoleting_date = $5,
		is_terminated = $6, last_approved_state = $7,
		version = $8, updated_at = $9
	WHERE document_number = $10 AND workflow_type = $11 AND version = $12`

func workflowUpdateArgs(wf model.WorkflowInstance) []any {
	return []any{
		wf.CurrentState, wf.Reviewer, wf.Approver,
		wf.EffectiveDate, wf.ObsoletingDate,
		wf.IsTerminated, wf.LastApprovedState,
		wf.Version + 1, time.Now().UTC(),
		wf.DocumentNumber, wf.WorkflowType, wf.Version,
	}
}

// ListWorkflows returns all workflow instances.
func (s *PgStore) ListWorkflows(ctx context.Context) ([]model.WorkflowInstance, error) {
	return s.queryWorkflows(ctx,
		selectWorkflowSQL+` ORDER BY document_number, workflow_type ASC`)
}

// FindDueEffective returns workflows awaiting activation at the cutoff.
func (s *PgStore) FindDueEffective(ctx context.Context, cutoff time.Time) ([]model.WorkflowInstance, error) {
	return s.queryWorkflows(ctx, selectWorkflowSQL+`
		WHERE current_state = $1 AND NOT is_terminated
		  AND effective_date IS NOT NULL AND effective_date <= $2
		ORDER BY effective_date ASC`,
		model.StateApprovedPendingEffective, cutoff)
}

// FindDueObsoleting returns workflows awaiting obsoletion at the cutoff.
func (s *PgStore) FindDueObsoleting(ctx context.Context, cutoff time.Time) ([]model.WorkflowInstance, error) {
	return s.queryWorkflows(ctx, selectWorkflowSQL+`
		WHERE current_state = $1 AND NOT is_terminated
		  AND obsoleting_date IS NOT NULL AND obsoleting_date <= $2
		ORDER BY obsoleting_date ASC`,
		model.StatePendingObsoletion, cutoff)
}

func (s *PgStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]model.WorkflowInstance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var result []model.WorkflowInstance
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

// GetTransitions returns a workflow's ledger in ascending Seq order.
func (s *PgStore) GetTransitions(ctx context.Context, key model.WorkflowKey) ([]model.Transition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_number, workflow_type, seq,
		       from_state, to_state, action, actor, comment, created_at
		FROM workflow_transitions
		WHERE document_number = $1 AND workflow_type = $2
		ORDER BY seq ASC`,
		key.DocumentNumber, key.WorkflowType,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var result []model.Transition
	for rows.Next() {
		var tr model.Transition
		if err := rows.Scan(
			&tr.ID, &tr.DocumentNumber, &tr.WorkflowType, &tr.Seq,
			&tr.FromState, &tr.ToState, &tr.Action, &tr.Actor, &tr.Comment, &tr.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

// AppendTransition inserts a single ledger row.
func (s *PgStore) AppendTransition(ctx context.Context, tr model.Transition) error {
	return appendTransition(ctx, s.pool, tr)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendTransition(ctx context.Context, db execer, tr model.Transition) error {
	_, err := db.Exec(ctx, `
		INSERT INTO workflow_transitions (
			id, document_number, workflow_type, seq,
			from_state, to_state, action, actor, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tr.ID, tr.DocumentNumber, tr.WorkflowType, tr.Seq,
		tr.FromState, tr.ToState, tr.Action, tr.Actor, tr.Comment, tr.Timestamp,
	)
	if isUniqueViolation(err) {
		key := model.WorkflowKey{DocumentNumber: tr.DocumentNumber, WorkflowType: tr.WorkflowType}
		return model.NewConflictError(
			fmt.Sprintf("transition %q seq %d already exists", key, tr.Seq),
		)
	}
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Commit applies one or more transition commits inside a single database
// transaction. All commits apply or none do.
func (s *PgStore) Commit(ctx context.Context, commits ...model.TransitionCommit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range commits {
		if err := appendTransition(ctx, tx, c.Transition); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, updateWorkflowSQL, workflowUpdateArgs(c.Workflow)...)
		if err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.NewConflictError(
				fmt.Sprintf("workflow %q version conflict (expected %d)", c.Workflow.Key(), c.Workflow.Version),
			)
		}

		tag, err = tx.Exec(ctx, updateDocumentSQL, documentUpdateArgs(c.Document)...)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.NewNotFoundError(
				fmt.Sprintf("document %q not found", c.Document.Number),
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AddDependencyEdge records that a document depends on another.
func (s *PgStore) AddDependencyEdge(ctx context.Context, edge model.DependencyEdge) error {
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dependency_edges (document_number, depends_on, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_number, depends_on) DO NOTHING`,
		edge.DocumentNumber, edge.DependsOn, edge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dependency edge: %w", err)
	}
	return nil
}

// ListDependents returns edges pointing at the given document number.
func (s *PgStore) ListDependents(ctx context.Context, number string) ([]model.DependencyEdge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_number, depends_on, created_at
		FROM dependency_edges
		WHERE depends_on = $1
		ORDER BY document_number ASC`, number,
	)
	if err != nil {
		return nil, fmt.Errorf("query dependency edges: %w", err)
	}
	defer rows.Close()

	var result []model.DependencyEdge
	for rows.Next() {
		var edge model.DependencyEdge
		if err := rows.Scan(&edge.DocumentNumber, &edge.DependsOn, &edge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dependency edge: %w", err)
		}
		result = append(result, edge)
	}
	return result, rows.Err()
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
