package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"

	"github.com/jmoiron/sqlx"
)

// PostgresPortfolioStore persists portfolios with the same compare-and-set
// discipline as the order store.
type PostgresPortfolioStore struct {
	db *sqlx.DB
}

func NewPostgresPortfolioStore(db *sqlx.DB) *PostgresPortfolioStore {
	store := &PostgresPortfolioStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

const portfolioColumns = `id, code, name, base_currency, description,
	status, created_by, created_at, submitted_by, submitted_at, approved_by, approved_at, rejection_reason`

func (s *PostgresPortfolioStore) Get(ctx context.Context, id string) (model.Workflowable, error) {
	var p model.Portfolio
	err := s.db.GetContext(ctx, &p,
		`SELECT `+portfolioColumns+` FROM portfolios WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresPortfolioStore) Create(ctx context.Context, rec model.Workflowable) error {
	p, ok := rec.(*model.Portfolio)
	if !ok {
		return errors.New("portfolio store given a non-portfolio record")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (`+portfolioColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Code, p.Name, p.BaseCurrency, p.Description,
		p.Status, p.CreatedBy, p.CreatedAt, p.SubmittedBy, p.SubmittedAt,
		p.ApprovedBy, p.ApprovedAt, p.RejectionReason)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresPortfolioStore) UpdateWorkflow(ctx context.Context, rec model.Workflowable, expected model.WorkflowStatus) error {
	meta := rec.Workflow()
	res, err := s.db.ExecContext(ctx, `
		UPDATE portfolios SET
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

func (s *PostgresPortfolioStore) ApplyEdit(ctx context.Context, rec model.Workflowable) error {
	p, ok := rec.(*model.Portfolio)
	if !ok {
		return errors.New("portfolio store given a non-portfolio record")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE portfolios SET
			code = $2, name = $3, base_currency = $4, description = $5
		WHERE id = $1 AND status = $6
	`, p.ID, p.Code, p.Name, p.BaseCurrency, p.Description, model.StatusDraft)
	if err != nil {
		return err
	}
	return s.checkCAS(ctx, res, p.ID)
}

func (s *PostgresPortfolioStore) Delete(ctx context.Context, id string, expected model.WorkflowStatus) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM portfolios WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return err
	}
	return s.checkCAS(ctx, res, id)
}

func (s *PostgresPortfolioStore) List(ctx context.Context) ([]model.Workflowable, error) {
	var portfolios []model.Portfolio
	err := s.db.SelectContext(ctx, &portfolios,
		`SELECT `+portfolioColumns+` FROM portfolios ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	records := make([]model.Workflowable, 0, len(portfolios))
	for i := range portfolios {
		records = append(records, &portfolios[i])
	}
	return records, nil
}

func (s *PostgresPortfolioStore) checkCAS(ctx context.Context, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM portfolios WHERE id = $1)`, id); err != nil {
		return err
	}
	if exists {
		return ErrStaleStatus
	}
	return ErrNotFound
}

func (s *PostgresPortfolioStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS portfolios (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			base_currency TEXT NOT NULL DEFAULT 'USD',
			description TEXT NOT NULL DEFAULT '',
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
	return err
}
