package model

import (
	"reflect"
	"time"
	"unicode/utf8"
)

// ActionKind is the closed set of auditable action types.
type ActionKind string

const (
	ActionCreate       ActionKind = "CREATE"
	ActionRead         ActionKind = "READ"
	ActionUpdate       ActionKind = "UPDATE"
	ActionDelete       ActionKind = "DELETE"
	ActionSubmit       ActionKind = "SUBMIT"
	ActionApprove      ActionKind = "APPROVE"
	ActionReject       ActionKind = "REJECT"
	ActionLogin        ActionKind = "LOGIN"
	ActionLogout       ActionKind = "LOGOUT"
	ActionAccessDenied ActionKind = "ACCESS_DENIED"
	ActionExport       ActionKind = "EXPORT"
	ActionImport       ActionKind = "IMPORT"
)

// Outcome of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Severity of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ApprovalStatus tracks the secondary-review sub-record on events whose
// underlying action itself requires a second pair of eyes (e.g. RBAC grants).
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// FieldChange is one entry of a field-level diff.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// AuditEvent is one immutable fact describing an attempted or completed
// action. Once recorded it is never updated or deleted by normal operation;
// the retention job is a separate, explicitly privileged path.
type AuditEvent struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	ActorID   string     `json:"actor_id"`
	ActorName string     `json:"actor_name"` // snapshotted, survives actor removal
	Action    ActionKind `json:"action_kind"`
	Severity  Severity   `json:"severity"`

	TargetType    string `json:"target_type,omitempty"`
	TargetID      string `json:"target_id,omitempty"`
	TargetDisplay string `json:"target_display,omitempty"`

	OldValue  map[string]any         `json:"old_value,omitempty"`
	NewValue  map[string]any         `json:"new_value,omitempty"`
	FieldDiff map[string]FieldChange `json:"field_diff,omitempty"`

	Outcome     Outcome `json:"outcome"`
	Description string  `json:"description,omitempty"`

	// Request context, present when the action was HTTP-triggered.
	OriginAddress string `json:"origin_address,omitempty"`
	ClientAgent   string `json:"client_agent,omitempty"`
	RequestPath   string `json:"request_path,omitempty"`
	RequestMethod string `json:"request_method,omitempty"`

	ExtraContext map[string]any `json:"extra_context,omitempty"`

	// Secondary-review sub-record, distinct from the workflow fields on the
	// audited record itself.
	RequiresApproval bool           `json:"requires_approval,omitempty"`
	ApprovalStatus   ApprovalStatus `json:"approval_status,omitempty"`
	ApprovedBy       string         `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
}

// Length caps for free-text fields, applied before persistence so malformed
// or malicious input cannot grow storage without bound.
const (
	maxDisplayLen = 256
	maxTextLen    = 2000
)

// Sanitize truncates free-text fields to their caps and defaults severity.
func (e *AuditEvent) Sanitize() {
	e.ActorName = truncate(e.ActorName, maxDisplayLen)
	e.TargetType = truncate(e.TargetType, maxDisplayLen)
	e.TargetID = truncate(e.TargetID, maxDisplayLen)
	e.TargetDisplay = truncate(e.TargetDisplay, maxDisplayLen)
	e.Description = truncate(e.Description, maxTextLen)
	e.OriginAddress = truncate(e.OriginAddress, maxDisplayLen)
	e.ClientAgent = truncate(e.ClientAgent, maxDisplayLen)
	e.RequestPath = truncate(e.RequestPath, maxDisplayLen)
	e.RequestMethod = truncate(e.RequestMethod, 16)
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// ComputeFieldDiff returns the keys present in either map whose values
// differ, each carrying {old, new}. A key absent from one side is treated as
// nil, not as an empty string. Returns nil when either map is nil or nothing
// changed.
func ComputeFieldDiff(before, after map[string]any) map[string]FieldChange {
	if before == nil || after == nil {
		return nil
	}
	diff := make(map[string]FieldChange)
	for key, oldVal := range before {
		newVal, ok := after[key]
		if !ok {
			diff[key] = FieldChange{Old: oldVal, New: nil}
			continue
		}
		// Snapshots may carry nested maps and slices, which == cannot compare.
		if !reflect.DeepEqual(oldVal, newVal) {
			diff[key] = FieldChange{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range after {
		if _, ok := before[key]; !ok {
			diff[key] = FieldChange{Old: nil, New: newVal}
		}
	}
	if len(diff) == 0 {
		return nil
	}
	return diff
}

// AuditFilter narrows audit queries. Zero values mean "no constraint".
type AuditFilter struct {
	ActorID    string
	Action     ActionKind
	TargetType string
	TargetID   string
	Outcome    Outcome
	From       *time.Time
	To         *time.Time
	// Search matches description, target display and actor name.
	Search string
}

// AuditPage is offset-based paging for audit queries.
type AuditPage struct {
	Limit  int
	Offset int
}
