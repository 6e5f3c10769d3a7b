package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"

	"github.com/shopspring/decimal"
)

func seedOrder(t *testing.T, store *MemoryRecordStore, id string, status model.WorkflowStatus) *model.Order {
	t.Helper()
	order := &model.Order{
		ID:       id,
		Symbol:   "AAPL",
		Side:     model.SideBuy,
		Quantity: decimal.NewFromInt(1),
		WorkflowMeta: model.WorkflowMeta{
			Status:    status,
			CreatedBy: "alice",
			CreatedAt: time.Now().UTC(),
		},
	}
	if err := store.Create(context.Background(), order); err != nil {
		t.Fatalf("create: %v", err)
	}
	return order
}

func TestUpdateWorkflowCompareAndSet(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()
	order := seedOrder(t, store, "ord-1", model.StatusPendingApproval)

	updated := order.Clone()
	updated.Workflow().Status = model.StatusApproved
	if err := store.UpdateWorkflow(ctx, updated, model.StatusPendingApproval); err != nil {
		t.Fatalf("first cas update: %v", err)
	}

	// The pre-state no longer matches, so a second transition loses.
	again := order.Clone()
	again.Workflow().Status = model.StatusRejected
	err := store.UpdateWorkflow(ctx, again, model.StatusPendingApproval)
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}

	stored, err := store.Get(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Workflow().Status != model.StatusApproved {
		t.Fatalf("losing write must not apply, got %s", stored.Workflow().Status)
	}
}

func TestConcurrentCASOneWinner(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()
	order := seedOrder(t, store, "ord-1", model.StatusPendingApproval)

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := order.Clone()
			rec.Workflow().Status = model.StatusApproved
			if err := store.UpdateWorkflow(ctx, rec, model.StatusPendingApproval); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", count)
	}
}

func TestApplyEditPreservesWorkflowMeta(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()
	order := seedOrder(t, store, "ord-1", model.StatusDraft)

	edited := order.Clone().(*model.Order)
	edited.Symbol = "MSFT"
	edited.Workflow().Status = model.StatusApproved // must be ignored
	if err := store.ApplyEdit(ctx, edited); err != nil {
		t.Fatalf("apply edit: %v", err)
	}

	stored, _ := store.Get(ctx, "ord-1")
	got := stored.(*model.Order)
	if got.Symbol != "MSFT" {
		t.Fatalf("edit not applied: %s", got.Symbol)
	}
	if got.Status != model.StatusDraft {
		t.Fatalf("edit must not touch workflow state, got %s", got.Status)
	}
}

func TestApplyEditRefusedOffDraft(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()
	order := seedOrder(t, store, "ord-1", model.StatusPendingApproval)

	err := store.ApplyEdit(ctx, order.Clone())
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
}

func TestDeleteCompareAndSet(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()
	seedOrder(t, store, "ord-1", model.StatusPendingApproval)

	if err := store.Delete(ctx, "ord-1", model.StatusDraft); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus deleting non-draft, got %v", err)
	}
	if err := store.Delete(ctx, "ord-1", model.StatusPendingApproval); err != nil {
		t.Fatalf("delete with matching state: %v", err)
	}
	if _, err := store.Get(ctx, "ord-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
