package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
)

// RedisAuditRepo keeps a capped list of recent audit events in Redis. It
// serves as the queryable store when Postgres is not configured, and as a
// fast recent-events mirror when it is. The list is trimmed, so it is a
// window, not the system of record.
type RedisAuditRepo struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisAuditRepo(client *RedisClient, listKey string, listMax int) *RedisAuditRepo {
	if listKey == "" {
		listKey = "audit_events"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAuditRepo{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisAuditRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pipe := r.client.Client.Pipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisAuditRepo) Query(ctx context.Context, filter model.AuditFilter, page model.AuditPage) ([]*model.AuditEvent, error) {
	limit := page.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	events, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*model.AuditEvent, 0, limit)
	skipped := 0
	for _, event := range events {
		if !matchFilter(event, filter) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		results = append(results, event)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (r *RedisAuditRepo) GetHistory(ctx context.Context, targetType, targetID string) ([]*model.AuditEvent, error) {
	return r.Query(ctx, model.AuditFilter{TargetType: targetType, TargetID: targetID},
		model.AuditPage{Limit: 1000})
}

// MarkApproval is not supported on the Redis window; the durable store owns
// the secondary-review sub-record.
func (r *RedisAuditRepo) MarkApproval(ctx context.Context, eventID, approverID string, status model.ApprovalStatus) error {
	return ErrNotFound
}

// Cleanup is a no-op: LTRIM on insert already bounds the window.
func (r *RedisAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	return nil
}

func (r *RedisAuditRepo) scan(ctx context.Context) ([]*model.AuditEvent, error) {
	raw, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(r.listMax-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]*model.AuditEvent, 0, len(raw))
	for _, item := range raw {
		var event model.AuditEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

func matchFilter(event *model.AuditEvent, filter model.AuditFilter) bool {
	if filter.ActorID != "" && event.ActorID != filter.ActorID {
		return false
	}
	if filter.Action != "" && event.Action != filter.Action {
		return false
	}
	if filter.TargetType != "" && event.TargetType != filter.TargetType {
		return false
	}
	if filter.TargetID != "" && event.TargetID != filter.TargetID {
		return false
	}
	if filter.Outcome != "" && event.Outcome != filter.Outcome {
		return false
	}
	if filter.From != nil && event.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && event.Timestamp.After(*filter.To) {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(event.Description), needle) &&
			!strings.Contains(strings.ToLower(event.TargetDisplay), needle) &&
			!strings.Contains(strings.ToLower(event.ActorName), needle) {
			return false
		}
	}
	return true
}
