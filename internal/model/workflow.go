package model

import (
	"time"
)

// WorkflowStatus is the lifecycle state of a maker-checker record.
type WorkflowStatus string

const (
	StatusDraft           WorkflowStatus = "DRAFT"
	StatusPendingApproval WorkflowStatus = "PENDING_APPROVAL"
	StatusApproved        WorkflowStatus = "APPROVED"
	StatusRejected        WorkflowStatus = "REJECTED"
)

// Terminal reports whether no further transition may leave the state.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// WorkflowMeta carries the maker-checker lifecycle fields embedded in every
// workflow-capable record. ApprovedBy doubles as the reviewer field on
// rejection.
type WorkflowMeta struct {
	Status          WorkflowStatus `json:"status" db:"status"`
	CreatedBy       string         `json:"created_by" db:"created_by"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	SubmittedBy     string         `json:"submitted_by,omitempty" db:"submitted_by"`
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty" db:"submitted_at"`
	ApprovedBy      string         `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
}

// Workflowable is implemented by business records subject to the
// DRAFT → PENDING_APPROVAL → APPROVED/REJECTED lifecycle.
type Workflowable interface {
	RecordID() string
	// RecordType is the category code used for permission scoping and audit
	// targeting, e.g. "order".
	RecordType() string
	DisplayName() string
	Workflow() *WorkflowMeta

	// Snapshot returns a flat field map of the domain fields (workflow fields
	// excluded) used for audit before/after values and field diffs.
	Snapshot() map[string]any

	// ApplyChanges mutates domain fields from a change map. Unknown keys and
	// invalid values return an error; workflow fields are never touched here.
	ApplyChanges(changes map[string]any) error

	// Clone returns a deep copy so stores can hand out records without
	// sharing mutable state.
	Clone() Workflowable
}
