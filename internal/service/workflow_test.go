package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderStub struct {
	mu     sync.Mutex
	events []*model.AuditEvent
}

func (r *recorderStub) Record(event *model.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	r.events = append(r.events, &clone)
}

func (r *recorderStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorderStub) last() *model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type engineFixture struct {
	engine   *WorkflowEngine
	recorder *recorderStub
	store    *repository.MemoryRBACStore
	resolver *PermissionResolver
}

// newEngineFixture seeds the default catalog and four actors: alice and dave
// are makers, bob is a checker, carol is a viewer.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryRBACStore()
	require.NoError(t, Seed(ctx, store, "Admin", "admin-key"))

	actors := map[string]string{
		"alice": model.RoleMaker,
		"dave":  model.RoleMaker,
		"bob":   model.RoleChecker,
		"carol": model.RoleViewer,
	}
	for id, role := range actors {
		require.NoError(t, store.CreateActor(ctx, &model.Actor{
			ID: id, Name: id, APIKey: "key-" + id, Active: true,
		}))
		require.NoError(t, store.AssignRole(ctx, id, role))
	}

	resolver := NewPermissionResolver(store, repository.NewMemoryGrantsCache(time.Minute))
	recorder := &recorderStub{}
	engine := NewWorkflowEngine(resolver, store, recorder)
	engine.RegisterStore("order", repository.NewMemoryRecordStore())
	engine.RegisterStore("portfolio", repository.NewMemoryRecordStore())

	return &engineFixture{engine: engine, recorder: recorder, store: store, resolver: resolver}
}

func draftOrder(id string) *model.Order {
	return &model.Order{
		ID:          id,
		PortfolioID: "pf-1",
		Symbol:      "AAPL",
		Side:        model.SideBuy,
		Quantity:    decimal.NewFromInt(100),
		LimitPrice:  decimal.RequireFromString("187.50"),
	}
}

func TestOrderLifecycleApproval(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	res, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, model.StatusDraft, res.NewStatus)

	res, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, res.NewStatus)

	res, err = fx.engine.Approve(ctx, "bob", "order", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.NewStatus)

	rec, err := fx.engine.Get(ctx, "order", "ord-1")
	require.NoError(t, err)
	meta := rec.Workflow()
	assert.Equal(t, model.StatusApproved, meta.Status)
	assert.Equal(t, "alice", meta.CreatedBy)
	assert.Equal(t, "alice", meta.SubmittedBy)
	assert.Equal(t, "bob", meta.ApprovedBy)
	require.NotNil(t, meta.ApprovedAt)
	assert.True(t, meta.Status.Terminal())

	assert.Equal(t, 3, fx.recorder.count())
	last := fx.recorder.last()
	assert.Equal(t, model.ActionApprove, last.Action)
	assert.Equal(t, model.OutcomeSuccess, last.Outcome)
	assert.Equal(t, "bob", last.ActorID)
}

func TestSelfApprovalForbidden(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	// alice holds both maker and checker roles, but four-eyes still blocks
	// her own record.
	require.NoError(t, fx.store.AssignRole(ctx, "alice", model.RoleChecker))

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)

	res, err := fx.engine.Approve(ctx, "alice", "order", "ord-1")
	require.Error(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, apperrors.ErrSelfApproval, res.ErrorKind)

	res, err = fx.engine.Reject(ctx, "alice", "order", "ord-1", "self-rejection is still a review")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSelfApproval, res.ErrorKind)

	rec, err := fx.engine.Get(ctx, "order", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, rec.Workflow().Status)
}

func TestApprovePermissionDenied(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)

	res, err := fx.engine.Approve(ctx, "carol", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrPermissionDenied, res.ErrorKind)

	last := fx.recorder.last()
	assert.Equal(t, model.OutcomeFailure, last.Outcome)
	assert.Equal(t, string(apperrors.ErrPermissionDenied), last.ExtraContext["reason"])
}

func TestSubmitRefusalNamesBothPermissionCodes(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)

	// alice loses her maker role before submitting; submit accepts either
	// create_order or submit_order, so the refusal must name both.
	require.NoError(t, fx.store.RevokeRole(ctx, "alice", model.RoleMaker))
	fx.resolver.Invalidate(ctx, "alice")

	res, err := fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrPermissionDenied, res.ErrorKind)
	assert.Contains(t, res.Message, "create_order")
	assert.Contains(t, res.Message, "submit_order")
}

func TestOwnershipCheckedBeforePermission(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)

	// bob is a checker without create_order, and not the creator. The refusal
	// must name ownership, the more specific failure.
	res, err := fx.engine.Submit(ctx, "bob", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotOwner, res.ErrorKind)

	// Same ordering for edit and delete by another maker who does hold
	// create_order.
	res, err = fx.engine.Edit(ctx, "dave", "order", "ord-1", map[string]any{"notes": "mine now"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotOwner, res.ErrorKind)

	res, err = fx.engine.Delete(ctx, "dave", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotOwner, res.ErrorKind)
}

func TestInvalidStateTransitions(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)

	// Approving a draft fails on state before anything else.
	res, err := fx.engine.Approve(ctx, "bob", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, res.ErrorKind)

	_, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)

	// Double submit.
	res, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, res.ErrorKind)

	// Pending records cannot be edited or deleted.
	res, err = fx.engine.Edit(ctx, "alice", "order", "ord-1", map[string]any{"notes": "late"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, res.ErrorKind)

	res, err = fx.engine.Delete(ctx, "alice", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, res.ErrorKind)

	// Terminal states accept nothing.
	_, err = fx.engine.Approve(ctx, "bob", "order", "ord-1")
	require.NoError(t, err)
	res, err = fx.engine.Approve(ctx, "bob", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidState, res.ErrorKind)
}

func TestRejectReasonValidation(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)

	res, err := fx.engine.Reject(ctx, "bob", "order", "ord-1", "  nope  ")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidationFailed, res.ErrorKind)

	rec, err := fx.engine.Get(ctx, "order", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, rec.Workflow().Status)

	res, err = fx.engine.Reject(ctx, "bob", "order", "ord-1", "limit price is off market by 40 percent")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, res.NewStatus)

	rec, err = fx.engine.Get(ctx, "order", "ord-1")
	require.NoError(t, err)
	meta := rec.Workflow()
	assert.Equal(t, "limit price is off market by 40 percent", meta.RejectionReason)
	assert.Equal(t, "bob", meta.ApprovedBy)
}

func TestEditRecordsFieldDiffSnapshots(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)

	res, err := fx.engine.Edit(ctx, "alice", "order", "ord-1", map[string]any{
		"quantity": "250",
		"notes":    "resized per desk instruction",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, model.StatusDraft, res.NewStatus)

	last := fx.recorder.last()
	require.NotNil(t, last.OldValue)
	require.NotNil(t, last.NewValue)
	assert.Equal(t, "100", last.OldValue["quantity"])
	assert.Equal(t, "250", last.NewValue["quantity"])

	// Validation failures leave the record untouched.
	res, err = fx.engine.Edit(ctx, "alice", "order", "ord-1", map[string]any{"quantity": "-5"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidationFailed, res.ErrorKind)

	rec, err := fx.engine.Get(ctx, "order", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "250", rec.(*model.Order).Quantity.String())
}

func TestDeleteDraftRemovesRecord(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)

	res, err := fx.engine.Delete(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)
	assert.True(t, res.OK)

	_, err = fx.engine.Get(ctx, "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.TypeOf(err))
}

func TestEveryAttemptProducesOneAuditEvent(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	attempts := 0
	step := func(fn func() (TransitionResult, error)) {
		attempts++
		_, _ = fn()
		assert.Equal(t, attempts, fx.recorder.count())
	}

	step(func() (TransitionResult, error) { return fx.engine.Create(ctx, "alice", draftOrder("ord-1")) })
	step(func() (TransitionResult, error) { return fx.engine.Approve(ctx, "bob", "order", "ord-1") })
	step(func() (TransitionResult, error) { return fx.engine.Submit(ctx, "bob", "order", "ord-1") })
	step(func() (TransitionResult, error) { return fx.engine.Submit(ctx, "alice", "order", "ord-1") })
	step(func() (TransitionResult, error) { return fx.engine.Approve(ctx, "carol", "order", "ord-1") })
	step(func() (TransitionResult, error) { return fx.engine.Approve(ctx, "alice", "order", "ord-1") })
	step(func() (TransitionResult, error) { return fx.engine.Approve(ctx, "bob", "order", "missing") })
	step(func() (TransitionResult, error) { return fx.engine.Approve(ctx, "bob", "order", "ord-1") })
}

func TestConcurrentApprovalHasOneWinner(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.store.CreateActor(ctx, &model.Actor{ID: "erin", Name: "erin", APIKey: "key-erin", Active: true}))
	require.NoError(t, fx.store.AssignRole(ctx, "erin", model.RoleChecker))

	_, err := fx.engine.Create(ctx, "alice", draftOrder("ord-1"))
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, "alice", "order", "ord-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, reviewer := range []string{"bob", "erin"} {
		wg.Add(1)
		go func(i int, reviewer string) {
			defer wg.Done()
			_, results[i] = fx.engine.Approve(ctx, reviewer, "order", "ord-1")
		}(i, reviewer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperrors.ErrInvalidState, apperrors.TypeOf(err))
		}
	}
	assert.Equal(t, 1, succeeded)

	rec, err := fx.engine.Get(ctx, "order", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, rec.Workflow().Status)
}

func TestSuperuserStillBoundByFourEyes(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	// The bootstrap admin bypasses permission checks but not structural ones.
	_, err := fx.engine.Create(ctx, "admin", draftOrder("ord-1"))
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, "admin", "order", "ord-1")
	require.NoError(t, err)

	res, err := fx.engine.Approve(ctx, "admin", "order", "ord-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSelfApproval, res.ErrorKind)
}

func TestUnknownRecordType(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	res, err := fx.engine.Submit(ctx, "alice", "invoice", "x")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidationFailed, res.ErrorKind)
}
