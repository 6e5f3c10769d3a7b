package service

import (
	"context"
	"testing"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuditFixture(t *testing.T) *AuditService {
	t.Helper()
	svc, err := NewAuditService(AuditOptions{QueueSize: 16, Workers: 1}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestRecordCompletesEvent(t *testing.T) {
	svc := newAuditFixture(t)
	ctx := context.Background()

	svc.Record(&model.AuditEvent{
		ActorID:    "alice",
		Action:     model.ActionUpdate,
		Outcome:    model.OutcomeSuccess,
		TargetType: "order",
		TargetID:   "ord-1",
		OldValue:   map[string]any{"a": 1, "b": 2},
		NewValue:   map[string]any{"a": 1, "b": 3, "c": 4},
	})

	events, err := svc.Query(ctx, model.AuditFilter{TargetID: "ord-1"}, model.AuditPage{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, model.SeverityInfo, event.Severity)

	require.NotNil(t, event.FieldDiff)
	assert.NotContains(t, event.FieldDiff, "a")
	assert.Equal(t, model.FieldChange{Old: 2, New: 3}, event.FieldDiff["b"])
	assert.Equal(t, model.FieldChange{Old: nil, New: 4}, event.FieldDiff["c"])
}

func TestRecordNeverBlocksWhenQueueFull(t *testing.T) {
	// No workers drain fast enough to matter: a tiny queue plus many more
	// events than it holds must still return promptly.
	svc, err := NewAuditService(AuditOptions{QueueSize: 1, Workers: 1, WindowSize: 4}, slowRepo{}, nil)
	require.NoError(t, err)
	defer svc.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			svc.Record(&model.AuditEvent{Action: model.ActionCreate, Outcome: model.OutcomeSuccess})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}

// slowRepo simulates a stalled durable store.
type slowRepo struct{}

func (slowRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	time.Sleep(50 * time.Millisecond)
	return nil
}

func (slowRepo) Query(ctx context.Context, filter model.AuditFilter, page model.AuditPage) ([]*model.AuditEvent, error) {
	return nil, nil
}

func (slowRepo) GetHistory(ctx context.Context, targetType, targetID string) ([]*model.AuditEvent, error) {
	return nil, nil
}

func (slowRepo) MarkApproval(ctx context.Context, eventID, approverID string, status model.ApprovalStatus) error {
	return nil
}

func (slowRepo) Cleanup(ctx context.Context, olderThan time.Duration) error { return nil }

func TestQueryFilters(t *testing.T) {
	svc := newAuditFixture(t)
	ctx := context.Background()

	svc.Record(&model.AuditEvent{ActorID: "alice", Action: model.ActionCreate, Outcome: model.OutcomeSuccess, TargetType: "order", TargetID: "ord-1"})
	svc.Record(&model.AuditEvent{ActorID: "bob", Action: model.ActionApprove, Outcome: model.OutcomeSuccess, TargetType: "order", TargetID: "ord-1"})
	svc.Record(&model.AuditEvent{ActorID: "alice", Action: model.ActionCreate, Outcome: model.OutcomeFailure, TargetType: "portfolio", TargetID: "pf-1", Description: "duplicate code"})

	events, err := svc.Query(ctx, model.AuditFilter{ActorID: "alice"}, model.AuditPage{})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = svc.Query(ctx, model.AuditFilter{Action: model.ActionApprove}, model.AuditPage{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "bob", events[0].ActorID)

	events, err = svc.Query(ctx, model.AuditFilter{Outcome: model.OutcomeFailure}, model.AuditPage{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "pf-1", events[0].TargetID)

	events, err = svc.Query(ctx, model.AuditFilter{Search: "duplicate"}, model.AuditPage{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	history, err := svc.GetHistory(ctx, "order", "ord-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestResolveApprovalFourEyes(t *testing.T) {
	svc := newAuditFixture(t)
	ctx := context.Background()

	svc.Record(&model.AuditEvent{
		ID:               "evt-1",
		ActorID:          "admin1",
		Action:           model.ActionUpdate,
		Outcome:          model.OutcomeSuccess,
		TargetType:       "actor",
		TargetID:         "u1",
		RequiresApproval: true,
		ApprovalStatus:   model.ApprovalPending,
	})

	err := svc.ResolveApproval(ctx, "evt-1", "admin1", true)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSelfApproval, apperrors.TypeOf(err))

	require.NoError(t, svc.ResolveApproval(ctx, "evt-1", "admin2", true))

	// Settled reviews cannot be re-settled.
	err = svc.ResolveApproval(ctx, "evt-1", "admin3", false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.TypeOf(err))

	events, err := svc.Query(ctx, model.AuditFilter{TargetID: "u1"}, model.AuditPage{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.ApprovalApproved, events[0].ApprovalStatus)
	assert.Equal(t, "admin2", events[0].ApprovedBy)
}

func TestSanitizeTruncatesOversizedText(t *testing.T) {
	svc := newAuditFixture(t)
	ctx := context.Background()

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	svc.Record(&model.AuditEvent{
		ActorID:     "alice",
		Action:      model.ActionCreate,
		Outcome:     model.OutcomeSuccess,
		TargetID:    "ord-1",
		Description: string(long),
	})

	events, err := svc.Query(ctx, model.AuditFilter{TargetID: "ord-1"}, model.AuditPage{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Description, 2000)
}
