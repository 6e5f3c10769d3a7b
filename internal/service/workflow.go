package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/metrics"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"
)

// RecordStore is the persistence contract for one workflow-capable record
// type. UpdateWorkflow and Delete are compare-and-set on status: the write
// applies only if the stored status still matches the expected pre-state,
// which serializes concurrent transitions per record.
type RecordStore interface {
	Get(ctx context.Context, id string) (model.Workflowable, error)
	Create(ctx context.Context, rec model.Workflowable) error
	UpdateWorkflow(ctx context.Context, rec model.Workflowable, expected model.WorkflowStatus) error
	ApplyEdit(ctx context.Context, rec model.Workflowable) error
	Delete(ctx context.Context, id string, expected model.WorkflowStatus) error
	List(ctx context.Context) ([]model.Workflowable, error)
}

// Recorder receives audit events fire-and-forget; it must never fail or
// block the caller.
type Recorder interface {
	Record(event *model.AuditEvent)
}

// PermissionChecker is the slice of the permission resolver the engine needs.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, code string) bool
	HasAnyPermission(ctx context.Context, actorID string, codes ...string) bool
}

// ActorDirectory resolves actor display names for audit snapshots.
type ActorDirectory interface {
	GetActor(ctx context.Context, id string) (*model.Actor, error)
}

// TransitionResult is the outcome of one workflow operation attempt.
type TransitionResult struct {
	OK        bool                 `json:"ok"`
	NewStatus model.WorkflowStatus `json:"new_status,omitempty"`
	ErrorKind apperrors.ErrorType  `json:"error_kind,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// Rejection reasons are mandatory and bounded.
const (
	minRejectReasonLen = 10
	maxRejectReasonLen = 500
)

// WorkflowEngine drives the DRAFT → PENDING_APPROVAL → APPROVED/REJECTED
// lifecycle. Every operation attempt, allowed or refused, produces exactly
// one audit event whose outcome matches the result.
type WorkflowEngine struct {
	stores    map[string]RecordStore
	perms     PermissionChecker
	directory ActorDirectory
	audit     Recorder
	now       func() time.Time
}

func NewWorkflowEngine(perms PermissionChecker, directory ActorDirectory, audit Recorder) *WorkflowEngine {
	return &WorkflowEngine{
		stores:    make(map[string]RecordStore),
		perms:     perms,
		directory: directory,
		audit:     audit,
		now:       time.Now,
	}
}

// RegisterStore binds a record category to its store. Category codes double
// as the permission scope: "order" is gated by create_order/approve_order.
func (e *WorkflowEngine) RegisterStore(targetType string, store RecordStore) {
	e.stores[targetType] = store
}

// Create stores a new DRAFT record owned by the acting maker.
func (e *WorkflowEngine) Create(ctx context.Context, actorID string, rec model.Workflowable) (TransitionResult, error) {
	targetType := rec.RecordType()
	store, ok := e.stores[targetType]
	if !ok {
		return e.refuse(ctx, actorID, model.ActionCreate, targetType, rec.RecordID(), "",
			apperrors.ErrValidationFailed, fmt.Sprintf("unknown record type %q", targetType))
	}

	if !e.perms.HasPermission(ctx, actorID, createCode(targetType)) {
		return e.refuse(ctx, actorID, model.ActionCreate, targetType, rec.RecordID(), rec.DisplayName(),
			apperrors.ErrPermissionDenied, fmt.Sprintf("actor lacks %s", createCode(targetType)))
	}

	meta := rec.Workflow()
	meta.Status = model.StatusDraft
	meta.CreatedBy = actorID
	meta.CreatedAt = e.now().UTC()

	if err := store.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return e.refuse(ctx, actorID, model.ActionCreate, targetType, rec.RecordID(), rec.DisplayName(),
				apperrors.ErrValidationFailed, "record id already exists")
		}
		return e.fail(ctx, actorID, model.ActionCreate, targetType, rec.RecordID(), err)
	}

	e.record(ctx, actorID, &model.AuditEvent{
		Action:        model.ActionCreate,
		Outcome:       model.OutcomeSuccess,
		TargetType:    targetType,
		TargetID:      rec.RecordID(),
		TargetDisplay: rec.DisplayName(),
		NewValue:      rec.Snapshot(),
		Description:   fmt.Sprintf("created %s %s", targetType, rec.RecordID()),
	})
	metrics.TransitionsTotal.WithLabelValues(string(model.ActionCreate), targetType, "success").Inc()
	return TransitionResult{OK: true, NewStatus: model.StatusDraft}, nil
}

// Submit moves a DRAFT to PENDING_APPROVAL. Only the creator may submit, and
// the ownership check runs before the permission check so the caller learns
// the most specific refusal.
func (e *WorkflowEngine) Submit(ctx context.Context, actorID, targetType, recordID string) (TransitionResult, error) {
	store, rec, res, err := e.load(ctx, actorID, model.ActionSubmit, targetType, recordID)
	if rec == nil {
		return res, err
	}
	meta := rec.Workflow()

	if meta.Status != model.StatusDraft {
		return e.refuseRecord(ctx, actorID, model.ActionSubmit, rec,
			apperrors.ErrInvalidState, fmt.Sprintf("submit is not allowed from %s", meta.Status))
	}
	if meta.CreatedBy != actorID {
		return e.refuseRecord(ctx, actorID, model.ActionSubmit, rec,
			apperrors.ErrNotOwner, "only the creator may submit a draft")
	}
	if !e.perms.HasAnyPermission(ctx, actorID, createCode(targetType), submitCode(targetType)) {
		return e.refuseRecord(ctx, actorID, model.ActionSubmit, rec,
			apperrors.ErrPermissionDenied,
			fmt.Sprintf("actor lacks %s or %s", createCode(targetType), submitCode(targetType)))
	}

	now := e.now().UTC()
	meta.Status = model.StatusPendingApproval
	meta.SubmittedBy = actorID
	meta.SubmittedAt = &now

	if err := store.UpdateWorkflow(ctx, rec, model.StatusDraft); err != nil {
		return e.casRefusal(ctx, actorID, model.ActionSubmit, rec, err)
	}

	e.record(ctx, actorID, &model.AuditEvent{
		Action:        model.ActionSubmit,
		Outcome:       model.OutcomeSuccess,
		TargetType:    targetType,
		TargetID:      recordID,
		TargetDisplay: rec.DisplayName(),
		Description:   fmt.Sprintf("submitted %s %s for approval", targetType, recordID),
	})
	metrics.TransitionsTotal.WithLabelValues(string(model.ActionSubmit), targetType, "success").Inc()
	return TransitionResult{OK: true, NewStatus: model.StatusPendingApproval}, nil
}

// Approve finalizes a PENDING_APPROVAL record. The four-eyes check rejects
// the record's own creator regardless of permissions.
func (e *WorkflowEngine) Approve(ctx context.Context, actorID, targetType, recordID string) (TransitionResult, error) {
	store, rec, res, err := e.load(ctx, actorID, model.ActionApprove, targetType, recordID)
	if rec == nil {
		return res, err
	}
	meta := rec.Workflow()

	if meta.Status != model.StatusPendingApproval {
		return e.refuseRecord(ctx, actorID, model.ActionApprove, rec,
			apperrors.ErrInvalidState, fmt.Sprintf("approve is not allowed from %s", meta.Status))
	}
	if meta.CreatedBy == actorID {
		return e.refuseRecord(ctx, actorID, model.ActionApprove, rec,
			apperrors.ErrSelfApproval, "creator may not approve their own record")
	}
	if !e.perms.HasPermission(ctx, actorID, approveCode(targetType)) {
		return e.refuseRecord(ctx, actorID, model.ActionApprove, rec,
			apperrors.ErrPermissionDenied, fmt.Sprintf("actor lacks %s", approveCode(targetType)))
	}

	now := e.now().UTC()
	meta.Status = model.StatusApproved
	meta.ApprovedBy = actorID
	meta.ApprovedAt = &now

	if err := store.UpdateWorkflow(ctx, rec, model.StatusPendingApproval); err != nil {
		return e.casRefusal(ctx, actorID, model.ActionApprove, rec, err)
	}

	e.record(ctx, actorID, &model.AuditEvent{
		Action:        model.ActionApprove,
		Outcome:       model.OutcomeSuccess,
		TargetType:    targetType,
		TargetID:      recordID,
		TargetDisplay: rec.DisplayName(),
		Description:   fmt.Sprintf("approved %s %s", targetType, recordID),
	})
	metrics.TransitionsTotal.WithLabelValues(string(model.ActionApprove), targetType, "success").Inc()
	return TransitionResult{OK: true, NewStatus: model.StatusApproved}, nil
}

// Reject refuses a PENDING_APPROVAL record with a mandatory reason. The
// four-eyes check applies symmetrically: a maker may not reject their own
// submission either.
func (e *WorkflowEngine) Reject(ctx context.Context, actorID, targetType, recordID, reason string) (TransitionResult, error) {
	store, rec, res, err := e.load(ctx, actorID, model.ActionReject, targetType, recordID)
	if rec == nil {
		return res, err
	}
	meta := rec.Workflow()

	if meta.Status != model.StatusPendingApproval {
		return e.refuseRecord(ctx, actorID, model.ActionReject, rec,
			apperrors.ErrInvalidState, fmt.Sprintf("reject is not allowed from %s", meta.Status))
	}
	if meta.CreatedBy == actorID {
		return e.refuseRecord(ctx, actorID, model.ActionReject, rec,
			apperrors.ErrSelfApproval, "creator may not reject their own record")
	}
	if !e.perms.HasPermission(ctx, actorID, approveCode(targetType)) {
		return e.refuseRecord(ctx, actorID, model.ActionReject, rec,
			apperrors.ErrPermissionDenied, fmt.Sprintf("actor lacks %s", approveCode(targetType)))
	}

	reason = strings.TrimSpace(reason)
	if len(reason) < minRejectReasonLen {
		return e.refuseRecord(ctx, actorID, model.ActionReject, rec,
			apperrors.ErrValidationFailed,
			fmt.Sprintf("rejection reason must be at least %d characters", minRejectReasonLen))
	}
	if len(reason) > maxRejectReasonLen {
		return e.refuseRecord(ctx, actorID, model.ActionReject, rec,
			apperrors.ErrValidationFailed,
			fmt.Sprintf("rejection reason must be at most %d characters", maxRejectReasonLen))
	}

	now := e.now().UTC()
	meta.Status = model.StatusRejected
	meta.ApprovedBy = actorID // the rejecting reviewer occupies the reviewer field
	meta.ApprovedAt = &now
	meta.RejectionReason = reason

	if err := store.UpdateWorkflow(ctx, rec, model.StatusPendingApproval); err != nil {
		return e.casRefusal(ctx, actorID, model.ActionReject, rec, err)
	}

	e.record(ctx, actorID, &model.AuditEvent{
		Action:        model.ActionReject,
		Outcome:       model.OutcomeSuccess,
		TargetType:    targetType,
		TargetID:      recordID,
		TargetDisplay: rec.DisplayName(),
		Description:   fmt.Sprintf("rejected %s %s: %s", targetType, recordID, reason),
	})
	metrics.TransitionsTotal.WithLabelValues(string(model.ActionReject), targetType, "success").Inc()
	return TransitionResult{OK: true, NewStatus: model.StatusRejected}, nil
}

// Edit applies domain-field changes to a DRAFT owned by the actor. Status is
// never touched.
func (e *WorkflowEngine) Edit(ctx context.Context, actorID, targetType, recordID string, changes map[string]any) (TransitionResult, error) {
	store, rec, res, err := e.load(ctx, actorID, model.ActionUpdate, targetType, recordID)
	if rec == nil {
		return res, err
	}
	meta := rec.Workflow()

	if meta.Status != model.StatusDraft {
		return e.refuseRecord(ctx, actorID, model.ActionUpdate, rec,
			apperrors.ErrInvalidState, fmt.Sprintf("edit is not allowed from %s", meta.Status))
	}
	if meta.CreatedBy != actorID {
		return e.refuseRecord(ctx, actorID, model.ActionUpdate, rec,
			apperrors.ErrNotOwner, "only the creator may edit a draft")
	}
	if !e.perms.HasPermission(ctx, actorID, createCode(targetType)) {
		return e.refuseRecord(ctx, actorID, model.ActionUpdate, rec,
			apperrors.ErrPermissionDenied, fmt.Sprintf("actor lacks %s", createCode(targetType)))
	}

	before := rec.Snapshot()
	if err := rec.ApplyChanges(changes); err != nil {
		return e.refuseRecord(ctx, actorID, model.ActionUpdate, rec,
			apperrors.ErrValidationFailed, err.Error())
	}

	if err := store.ApplyEdit(ctx, rec); err != nil {
		return e.casRefusal(ctx, actorID, model.ActionUpdate, rec, err)
	}

	e.record(ctx, actorID, &model.AuditEvent{
		Action:        model.ActionUpdate,
		Outcome:       model.OutcomeSuccess,
		TargetType:    targetType,
		TargetID:      recordID,
		TargetDisplay: rec.DisplayName(),
		OldValue:      before,
		NewValue:      rec.Snapshot(),
		Description:   fmt.Sprintf("edited %s %s", targetType, recordID),
	})
	metrics.TransitionsTotal.WithLabelValues(string(model.ActionUpdate), targetType, "success").Inc()
	return TransitionResult{OK: true, NewStatus: model.StatusDraft}, nil
}

// Delete hard-removes a DRAFT owned by the actor. Records in any other state
// are retained indefinitely.
func (e *WorkflowEngine) Delete(ctx context.Context, actorID, targetType, recordID string) (TransitionResult, error) {
	store, rec, res, err := e.load(ctx, actorID, model.ActionDelete, targetType, recordID)
	if rec == nil {
		return res, err
	}
	meta := rec.Workflow()

	if meta.Status != model.StatusDraft {
		return e.refuseRecord(ctx, actorID, model.ActionDelete, rec,
			apperrors.ErrInvalidState, fmt.Sprintf("delete is not allowed from %s", meta.Status))
	}
	if meta.CreatedBy != actorID {
		return e.refuseRecord(ctx, actorID, model.ActionDelete, rec,
			apperrors.ErrNotOwner, "only the creator may delete a draft")
	}
	if !e.perms.HasPermission(ctx, actorID, createCode(targetType)) {
		return e.refuseRecord(ctx, actorID, model.ActionDelete, rec,
			apperrors.ErrPermissionDenied, fmt.Sprintf("actor lacks %s", createCode(targetType)))
	}

	if err := store.Delete(ctx, recordID, model.StatusDraft); err != nil {
		return e.casRefusal(ctx, actorID, model.ActionDelete, rec, err)
	}

	e.record(ctx, actorID, &model.AuditEvent{
		Action:        model.ActionDelete,
		Outcome:       model.OutcomeSuccess,
		TargetType:    targetType,
		TargetID:      recordID,
		TargetDisplay: rec.DisplayName(),
		OldValue:      rec.Snapshot(),
		Description:   fmt.Sprintf("deleted draft %s %s", targetType, recordID),
	})
	metrics.TransitionsTotal.WithLabelValues(string(model.ActionDelete), targetType, "success").Inc()
	return TransitionResult{OK: true}, nil
}

// Get returns one record without auditing; callers gate reads themselves.
func (e *WorkflowEngine) Get(ctx context.Context, targetType, recordID string) (model.Workflowable, error) {
	store, ok := e.stores[targetType]
	if !ok {
		return nil, apperrors.NewValidationFailed(fmt.Sprintf("unknown record type %q", targetType))
	}
	rec, err := store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound(fmt.Sprintf("%s %s not found", targetType, recordID))
		}
		return nil, apperrors.Wrap(err)
	}
	return rec, nil
}

func (e *WorkflowEngine) List(ctx context.Context, targetType string) ([]model.Workflowable, error) {
	store, ok := e.stores[targetType]
	if !ok {
		return nil, apperrors.NewValidationFailed(fmt.Sprintf("unknown record type %q", targetType))
	}
	records, err := store.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	return records, nil
}

// load fetches the record, emitting the mandatory audit event when the
// target is missing or the type is unknown. rec == nil means the caller
// should return (res, err) as-is.
func (e *WorkflowEngine) load(ctx context.Context, actorID string, action model.ActionKind, targetType, recordID string) (RecordStore, model.Workflowable, TransitionResult, error) {
	store, ok := e.stores[targetType]
	if !ok {
		res, err := e.refuse(ctx, actorID, action, targetType, recordID, "",
			apperrors.ErrValidationFailed, fmt.Sprintf("unknown record type %q", targetType))
		return nil, nil, res, err
	}
	rec, err := store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			res, ferr := e.refuse(ctx, actorID, action, targetType, recordID, "",
				apperrors.ErrNotFound, fmt.Sprintf("%s %s not found", targetType, recordID))
			return nil, nil, res, ferr
		}
		res, ferr := e.fail(ctx, actorID, action, targetType, recordID, err)
		return nil, nil, res, ferr
	}
	return store, rec, TransitionResult{}, nil
}

func (e *WorkflowEngine) refuseRecord(ctx context.Context, actorID string, action model.ActionKind, rec model.Workflowable, kind apperrors.ErrorType, msg string) (TransitionResult, error) {
	return e.refuse(ctx, actorID, action, rec.RecordType(), rec.RecordID(), rec.DisplayName(), kind, msg)
}

func (e *WorkflowEngine) refuse(ctx context.Context, actorID string, action model.ActionKind, targetType, recordID, display string, kind apperrors.ErrorType, msg string) (TransitionResult, error) {
	e.record(ctx, actorID, &model.AuditEvent{
		Action:        action,
		Outcome:       model.OutcomeFailure,
		Severity:      model.SeverityWarning,
		TargetType:    targetType,
		TargetID:      recordID,
		TargetDisplay: display,
		Description:   fmt.Sprintf("%s refused: %s", strings.ToLower(string(action)), msg),
		ExtraContext:  map[string]any{"reason": string(kind)},
	})
	metrics.TransitionsTotal.WithLabelValues(string(action), targetType, "failure").Inc()
	metrics.TransitionRefusals.WithLabelValues(string(kind)).Inc()
	return TransitionResult{OK: false, ErrorKind: kind, Message: msg},
		apperrors.New(kind, msg, nil)
}

// casRefusal maps store compare-and-set failures onto the refusal taxonomy:
// a lost race is indistinguishable from a transition out of an illegal state.
func (e *WorkflowEngine) casRefusal(ctx context.Context, actorID string, action model.ActionKind, rec model.Workflowable, err error) (TransitionResult, error) {
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return e.refuseRecord(ctx, actorID, action, rec,
			apperrors.ErrInvalidState, "record status changed concurrently")
	case errors.Is(err, repository.ErrNotFound):
		return e.refuseRecord(ctx, actorID, action, rec,
			apperrors.ErrNotFound, "record no longer exists")
	default:
		return e.fail(ctx, actorID, action, rec.RecordType(), rec.RecordID(), err)
	}
}

func (e *WorkflowEngine) fail(ctx context.Context, actorID string, action model.ActionKind, targetType, recordID string, err error) (TransitionResult, error) {
	e.record(ctx, actorID, &model.AuditEvent{
		Action:      action,
		Outcome:     model.OutcomeFailure,
		Severity:    model.SeverityCritical,
		TargetType:  targetType,
		TargetID:    recordID,
		Description: fmt.Sprintf("%s failed: %s", strings.ToLower(string(action)), err.Error()),
	})
	metrics.TransitionsTotal.WithLabelValues(string(action), targetType, "failure").Inc()
	appErr := apperrors.Wrap(err)
	return TransitionResult{OK: false, ErrorKind: appErr.Type, Message: appErr.Message}, appErr
}

func (e *WorkflowEngine) record(ctx context.Context, actorID string, event *model.AuditEvent) {
	event.ActorID = actorID
	event.ActorName = e.actorName(ctx, actorID)
	applyRequestMeta(ctx, event)
	e.audit.Record(event)
}

func (e *WorkflowEngine) actorName(ctx context.Context, actorID string) string {
	if e.directory == nil {
		return actorID
	}
	actor, err := e.directory.GetActor(ctx, actorID)
	if err != nil || actor == nil {
		return actorID
	}
	return actor.Name
}

func createCode(targetType string) string  { return "create_" + targetType }
func submitCode(targetType string) string  { return "submit_" + targetType }
func approveCode(targetType string) string { return "approve_" + targetType }

// ViewCodes are the capabilities that grant read access to a category; any
// one of them is sufficient.
func ViewCodes(targetType string) []string {
	return []string{"view_" + targetType, createCode(targetType), approveCode(targetType)}
}
