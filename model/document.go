package model

import "time"

// Lifecycle state codes. These are reference data: seeded once, preserved
// across data wipes, and never re-created by a restore that finds them
// already present.
const (
	StateDraft                    = "DRAFT"
	StatePendingReview            = "PENDING_REVIEW"
	StateUnderReview              = "UNDER_REVIEW"
	StateReviewed                 = "REVIEWED"
	StatePendingApproval          = "PENDING_APPROVAL"
	StateApprovedPendingEffective = "APPROVED_PENDING_EFFECTIVE"
	StateEffective                = "EFFECTIVE"
	StatePendingObsoletion        = "PENDING_OBSOLETION"
	StateObsolete                 = "OBSOLETE"
	StateSuperseded               = "SUPERSEDED"
	StateTerminated               = "TERMINATED"
)

// AllStates lists every lifecycle state in seeding order.
func AllStates() []DocumentState {
	return []DocumentState{
		{Code: StateDraft, Name: "Draft"},
		{Code: StatePendingReview, Name: "Pending Review"},
		{Code: StateUnderReview, Name: "Under Review"},
		{Code: StateReviewed, Name: "Reviewed"},
		{Code: StatePendingApproval, Name: "Pending Approval"},
		{Code: StateApprovedPendingEffective, Name: "Approved, Pending Effective"},
		{Code: StateEffective, Name: "Effective", Terminal: true},
		{Code: StatePendingObsoletion, Name: "Pending Obsoletion"},
		{Code: StateObsolete, Name: "Obsolete", Terminal: true},
		{Code: StateSuperseded, Name: "Superseded", Terminal: true},
		{Code: StateTerminated, Name: "Terminated", Terminal: true},
	}
}

// IsTerminalState reports whether a workflow in the given state has reached
// the end of the lifecycle. EFFECTIVE counts as terminal for ordinary
// actor-driven actions; it is left via start_obsolete or supersession only.
func IsTerminalState(code string) bool {
	switch code {
	case StateEffective, StateObsolete, StateSuperseded, StateTerminated:
		return true
	}
	return false
}

// DocumentState is a lifecycle state definition. Natural key: Code.
type DocumentState struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Terminal  bool      `json:"terminal"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is a controlled document. Natural key: Number, which is
// human-readable and versioned (e.g. "SOP-2025-0001-v01.00"). A document is
// created by an authoring action and afterwards mutated only through
// workflow transitions; it is never hard-deleted while a workflow
// references it.
type Document struct {
	Number       string    `json:"number"`
	Title        string    `json:"title"`
	DocumentType string    `json:"document_type"`
	Status       string    `json:"status"`
	VersionMajor int       `json:"version_major"`
	VersionMinor int       `json:"version_minor"`
	Author       string    `json:"author"`

	// Supersedes holds the number of the document this version replaces;
	// SupersededBy the number of the version that replaced this one.
	Supersedes   *string `json:"supersedes,omitempty"`
	SupersededBy *string `json:"superseded_by,omitempty"`

	// ParentDocument records up-versioning lineage: the source document
	// that StartUpVersion was invoked on.
	ParentDocument *string `json:"parent_document,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DependencyEdge relates a dependent document to the document it depends on.
// The dependency guard only ever reads these rows.
type DependencyEdge struct {
	DocumentNumber string    `json:"document_number"`
	DependsOn      string    `json:"depends_on"`
	CreatedAt      time.Time `json:"created_at"`
}
