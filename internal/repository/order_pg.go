package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"

	"github.com/jmoiron/sqlx"
)

// PostgresOrderStore persists orders. Workflow mutations are guarded by a
// compare-and-set on status so concurrent transitions against the same order
// cannot both apply.
type PostgresOrderStore struct {
	db *sqlx.DB
}

func NewPostgresOrderStore(db *sqlx.DB) *PostgresOrderStore {
	store := &PostgresOrderStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

const orderColumns = `id, portfolio_id, symbol, side, quantity, limit_price, notes,
	status, created_by, created_at, submitted_by, submitted_at, approved_by, approved_at, rejection_reason`

func (s *PostgresOrderStore) Get(ctx context.Context, id string) (model.Workflowable, error) {
	var order model.Order
	err := s.db.GetContext(ctx, &order,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *PostgresOrderStore) Create(ctx context.Context, rec model.Workflowable) error {
	order, ok := rec.(*model.Order)
	if !ok {
		return errors.New("order store given a non-order record")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO NOTHING
	`, order.ID, order.PortfolioID, order.Symbol, order.Side, order.Quantity, order.LimitPrice, order.Notes,
		order.Status, order.CreatedBy, order.CreatedAt, order.SubmittedBy, order.SubmittedAt,
		order.ApprovedBy, order.ApprovedAt, order.RejectionReason)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

// UpdateWorkflow applies the lifecycle fields only if the stored status still
// matches expected. A lost race surfaces as ErrStaleStatus.
func (s *PostgresOrderStore) UpdateWorkflow(ctx context.Context, rec model.Workflowable, expected model.WorkflowStatus) error {
	meta := rec.Workflow()
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			status = $2, submitted_by = $3, submitted_at = $4,
			approved_by = $5, approved_at = $6, rejection_reason = $7
		WHERE id = $1 AND status = $8
	`, rec.RecordID(), meta.Status, meta.SubmittedBy, meta.SubmittedAt,
		meta.ApprovedBy, meta.ApprovedAt, meta.RejectionReason, expected)
	if err != nil {
		return err
	}
	return s.checkCAS(ctx, res, rec.RecordID())
}

// ApplyEdit persists domain fields; only DRAFT records are editable.
func (s *PostgresOrderStore) ApplyEdit(ctx context.Context, rec model.Workflowable) error {
	order, ok := rec.(*model.Order)
	if !ok {
		return errors.New("order store given a non-order record")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			portfolio_id = $2, symbol = $3, side = $4,
			quantity = $5, limit_price = $6, notes = $7
		WHERE id = $1 AND status = $8
	`, order.ID, order.PortfolioID, order.Symbol, order.Side,
		order.Quantity, order.LimitPrice, order.Notes, model.StatusDraft)
	if err != nil {
		return err
	}
	return s.checkCAS(ctx, res, order.ID)
}

func (s *PostgresOrderStore) Delete(ctx context.Context, id string, expected model.WorkflowStatus) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM orders WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return err
	}
	return s.checkCAS(ctx, res, id)
}

func (s *PostgresOrderStore) List(ctx context.Context) ([]model.Workflowable, error) {
	var orders []model.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	records := make([]model.Workflowable, 0, len(orders))
	for i := range orders {
		records = append(records, &orders[i])
	}
	return records, nil
}

func (s *PostgresOrderStore) checkCAS(ctx context.Context, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id); err != nil {
		return err
	}
	if exists {
		return ErrStaleStatus
	}
	return ErrNotFound
}

func (s *PostgresOrderStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity NUMERIC NOT NULL,
			limit_price NUMERIC NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			submitted_by TEXT NOT NULL DEFAULT '',
			submitted_at TIMESTAMPTZ,
			approved_by TEXT NOT NULL DEFAULT '',
			approved_at TIMESTAMPTZ,
			rejection_reason TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_at DESC)`)
	return nil
}
