package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
)

// MemoryAuditRepo is the in-process audit store used when neither Postgres
// nor Redis is configured, and by tests.
type MemoryAuditRepo struct {
	mu     sync.RWMutex
	events []*model.AuditEvent
	max    int
}

func NewMemoryAuditRepo(max int) *MemoryAuditRepo {
	if max <= 0 {
		max = 10000
	}
	return &MemoryAuditRepo{max: max}
}

func (r *MemoryAuditRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	r.events = append(r.events, &clone)
	if len(r.events) > r.max {
		r.events = r.events[len(r.events)-r.max:]
	}
	return nil
}

func (r *MemoryAuditRepo) Query(ctx context.Context, filter model.AuditFilter, page model.AuditPage) ([]*model.AuditEvent, error) {
	limit := page.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	r.mu.RLock()
	snapshot := make([]*model.AuditEvent, len(r.events))
	copy(snapshot, r.events)
	r.mu.RUnlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Timestamp.After(snapshot[j].Timestamp)
	})

	results := make([]*model.AuditEvent, 0, limit)
	skipped := 0
	for _, event := range snapshot {
		if !matchFilter(event, filter) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		clone := *event
		results = append(results, &clone)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (r *MemoryAuditRepo) GetHistory(ctx context.Context, targetType, targetID string) ([]*model.AuditEvent, error) {
	return r.Query(ctx, model.AuditFilter{TargetType: targetType, TargetID: targetID},
		model.AuditPage{Limit: 1000})
}

func (r *MemoryAuditRepo) MarkApproval(ctx context.Context, eventID, approverID string, status model.ApprovalStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.ID != eventID {
			continue
		}
		if !event.RequiresApproval || event.ApprovalStatus != model.ApprovalPending {
			return ErrNotFound
		}
		if event.ActorID == approverID {
			return ErrSelfReview
		}
		now := time.Now().UTC()
		event.ApprovalStatus = status
		event.ApprovedBy = approverID
		event.ApprovedAt = &now
		return nil
	}
	return ErrNotFound
}

func (r *MemoryAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	for _, event := range r.events {
		if event.Timestamp.After(cutoff) {
			kept = append(kept, event)
		}
	}
	r.events = kept
	return nil
}
