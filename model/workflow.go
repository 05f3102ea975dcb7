package model

import "time"

// Workflow types. A single lifecycle workflow drives the whole document
// state graph; the type is part of the workflow's natural key so further
// workflow kinds can coexist per document.
const (
	WorkflowTypeLifecycle = "lifecycle"
)

// Transition actions recorded in the ledger.
const (
	ActionSubmitForReview   = "submit_for_review"
	ActionCompleteReview    = "complete_review"
	ActionSubmitForApproval = "submit_for_approval"
	ActionCompleteApproval  = "complete_approval"
	ActionScheduledActivate = "scheduled_activate"
	ActionStartObsolete     = "start_obsolete"
	ActionApproveObsoleting = "approve_obsoleting"
	ActionStartUpVersion    = "start_up_version"
	ActionSupersede         = "supersede"
	ActionTerminate         = "terminate"
)

// WorkflowInstance is a running lifecycle workflow for one document.
// Natural key: (DocumentNumber, WorkflowType). Invariants: CurrentState
// always equals the ToState of the most recent Transition for this
// workflow, and at most one non-terminated, non-completed instance exists
// per document.
type WorkflowInstance struct {
	DocumentNumber string `json:"document_number"`
	WorkflowType   string `json:"workflow_type"`
	CurrentState   string `json:"current_state"`
	InitiatedBy    string `json:"initiated_by"`
	Reviewer       string `json:"reviewer,omitempty"`
	Approver       string `json:"approver,omitempty"`

	EffectiveDate  *time.Time `json:"effective_date,omitempty"`
	ObsoletingDate *time.Time `json:"obsoleting_date,omitempty"`

	IsTerminated      bool   `json:"is_terminated"`
	LastApprovedState string `json:"last_approved_state,omitempty"`

	// Version is the optimistic-locking row version, not part of the
	// natural key and not exported to archives.
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the workflow's natural key.
func (w WorkflowInstance) Key() WorkflowKey {
	return WorkflowKey{DocumentNumber: w.DocumentNumber, WorkflowType: w.WorkflowType}
}

// WorkflowKey is the durable natural key of a workflow instance.
type WorkflowKey struct {
	DocumentNumber string `json:"document_number"`
	WorkflowType   string `json:"workflow_type"`
}

func (k WorkflowKey) String() string {
	return k.DocumentNumber + "/" + k.WorkflowType
}

// Transition is one immutable entry in a workflow's ledger. Natural key:
// (workflow key, Seq). Rows are only ever appended, never updated or
// deleted; replaying a workflow's ledger in Seq order always ends on the
// workflow's CurrentState.
type Transition struct {
	ID             string    `json:"id"`
	DocumentNumber string    `json:"document_number"`
	WorkflowType   string    `json:"workflow_type"`
	Seq            int       `json:"seq"`
	FromState      string    `json:"from_state"`
	ToState        string    `json:"to_state"`
	Action         string    `json:"action"`
	Actor          string    `json:"actor"`
	Comment        string    `json:"comment,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TransitionCommit is the atomic unit of change: append one ledger row,
// update the workflow, and write the document with its status mirroring the
// new state, with no intermediate state observable. Supersession couples two
// commits into one store call.
type TransitionCommit struct {
	Workflow   WorkflowInstance
	Transition Transition
	Document   Document
}
