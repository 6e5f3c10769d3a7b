package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"

	"github.com/jmoiron/sqlx"
)

// PostgresAuditRepo is the durable audit store. Rows are append-only: the
// only updates allowed are the secondary-review sub-record resolution and the
// privileged retention cleanup.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(db *sqlx.DB) *PostgresAuditRepo {
	repo := &PostgresAuditRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event == nil {
		return nil
	}
	oldJSON, _ := json.Marshal(event.OldValue)
	newJSON, _ := json.Marshal(event.NewValue)
	diffJSON, _ := json.Marshal(event.FieldDiff)
	extraJSON, _ := json.Marshal(event.ExtraContext)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, ts, actor_id, actor_name, action_kind, severity,
			target_type, target_id, target_display,
			old_value, new_value, field_diff,
			outcome, description,
			origin_address, client_agent, request_path, request_method,
			extra_context, requires_approval, approval_status, approved_by, approved_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,
			$10,$11,$12,
			$13,$14,
			$15,$16,$17,$18,
			$19,$20,$21,$22,$23
		)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.Timestamp, event.ActorID, event.ActorName, event.Action, event.Severity,
		event.TargetType, event.TargetID, event.TargetDisplay,
		oldJSON, newJSON, diffJSON,
		event.Outcome, event.Description,
		event.OriginAddress, event.ClientAgent, event.RequestPath, event.RequestMethod,
		extraJSON, event.RequiresApproval, event.ApprovalStatus, event.ApprovedBy, event.ApprovedAt)
	return err
}

func (r *PostgresAuditRepo) Query(ctx context.Context, filter model.AuditFilter, page model.AuditPage) ([]*model.AuditEvent, error) {
	limit := page.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + auditColumns + ` FROM audit_events`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	add := func(clause string, arg interface{}) {
		clauses = append(clauses, fmt.Sprintf(clause, idx))
		args = append(args, arg)
		idx++
	}

	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		add("action_kind = $%d", filter.Action)
	}
	if filter.TargetType != "" {
		add("target_type = $%d", filter.TargetType)
	}
	if filter.TargetID != "" {
		add("target_id = $%d", filter.TargetID)
	}
	if filter.Outcome != "" {
		add("outcome = $%d", filter.Outcome)
	}
	if filter.From != nil {
		add("ts >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("ts <= $%d", *filter.To)
	}
	if filter.Search != "" {
		clauses = append(clauses, fmt.Sprintf(
			"(description ILIKE $%d OR target_display ILIKE $%d OR actor_name ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+filter.Search+"%")
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	return r.queryEvents(ctx, query, args...)
}

func (r *PostgresAuditRepo) GetHistory(ctx context.Context, targetType, targetID string) ([]*model.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events
		WHERE target_type = $1 AND target_id = $2 ORDER BY ts DESC LIMIT 1000`
	return r.queryEvents(ctx, query, targetType, targetID)
}

// MarkApproval resolves the secondary-review sub-record on one event. This is
// the only mutation the application performs on a written event, and only on
// events recorded with requires_approval.
func (r *PostgresAuditRepo) MarkApproval(ctx context.Context, eventID, approverID string, status model.ApprovalStatus) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE audit_events
		SET approval_status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND requires_approval AND approval_status = $5 AND actor_id <> $3
	`, eventID, status, approverID, now, model.ApprovalPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var actorID string
		err := r.db.GetContext(ctx, &actorID, `
			SELECT actor_id FROM audit_events
			WHERE id = $1 AND requires_approval AND approval_status = $2
		`, eventID, model.ApprovalPending)
		if err == nil && actorID == approverID {
			return ErrSelfReview
		}
		return ErrNotFound
	}
	return nil
}

// Cleanup removes events past the retention window. Privileged operation,
// invoked only by the background retention job.
func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE ts < $1`, cutoff)
	return err
}

const auditColumns = `id, ts, actor_id, actor_name, action_kind, severity,
	target_type, target_id, target_display, old_value, new_value, field_diff,
	outcome, description, origin_address, client_agent, request_path, request_method,
	extra_context, requires_approval, approval_status, approved_by, approved_at`

func (r *PostgresAuditRepo) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*model.AuditEvent, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		var event model.AuditEvent
		var oldJSON, newJSON, diffJSON, extraJSON []byte
		var approvedAt sql.NullTime
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.ActorID, &event.ActorName, &event.Action, &event.Severity,
			&event.TargetType, &event.TargetID, &event.TargetDisplay,
			&oldJSON, &newJSON, &diffJSON,
			&event.Outcome, &event.Description,
			&event.OriginAddress, &event.ClientAgent, &event.RequestPath, &event.RequestMethod,
			&extraJSON, &event.RequiresApproval, &event.ApprovalStatus, &event.ApprovedBy, &approvedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(oldJSON, &event.OldValue)
		_ = json.Unmarshal(newJSON, &event.NewValue)
		_ = json.Unmarshal(diffJSON, &event.FieldDiff)
		_ = json.Unmarshal(extraJSON, &event.ExtraContext)
		if approvedAt.Valid {
			t := approvedAt.Time
			event.ApprovedAt = &t
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			actor_name TEXT NOT NULL DEFAULT '',
			action_kind TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'INFO',
			target_type TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			target_display TEXT NOT NULL DEFAULT '',
			old_value JSONB,
			new_value JSONB,
			field_diff JSONB,
			outcome TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			origin_address TEXT NOT NULL DEFAULT '',
			client_agent TEXT NOT NULL DEFAULT '',
			request_path TEXT NOT NULL DEFAULT '',
			request_method TEXT NOT NULL DEFAULT '',
			extra_context JSONB,
			requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
			approval_status TEXT NOT NULL DEFAULT '',
			approved_by TEXT NOT NULL DEFAULT '',
			approved_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_target ON audit_events(target_type, target_id, ts DESC)`)
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id, ts DESC)`)
	return nil
}
