package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"

	"github.com/jmoiron/sqlx"
)

// PostgresRBACStore persists actors, roles and permissions. Role and
// permission rows carry active flags; LoadGrants resolves the active-only
// union so an inactive role grants nothing even while still assigned.
type PostgresRBACStore struct {
	db *sqlx.DB
}

func NewPostgresRBACStore(db *sqlx.DB) *PostgresRBACStore {
	store := &PostgresRBACStore{db: db}
	_ = store.ensureSchema(context.Background())
	return store
}

func (s *PostgresRBACStore) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	var actor model.Actor
	err := s.db.GetContext(ctx, &actor,
		`SELECT id, name, api_key, superuser, active, created_at FROM actors WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.loadActorRoles(ctx, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

func (s *PostgresRBACStore) GetActorByAPIKey(ctx context.Context, apiKey string) (*model.Actor, error) {
	var actor model.Actor
	err := s.db.GetContext(ctx, &actor,
		`SELECT id, name, api_key, superuser, active, created_at FROM actors WHERE api_key = $1`, apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.loadActorRoles(ctx, &actor); err != nil {
		return nil, err
	}
	return &actor, nil
}

func (s *PostgresRBACStore) loadActorRoles(ctx context.Context, actor *model.Actor) error {
	return s.db.SelectContext(ctx, &actor.Roles,
		`SELECT role_code FROM actor_roles WHERE actor_id = $1 ORDER BY role_code`, actor.ID)
}

// LoadGrants resolves the effective access of one actor: active roles only,
// active permission codes only, union across all assignments.
func (s *PostgresRBACStore) LoadGrants(ctx context.Context, actorID string) (*model.ActorGrants, error) {
	var actor model.Actor
	err := s.db.GetContext(ctx, &actor,
		`SELECT id, name, api_key, superuser, active, created_at FROM actors WHERE id = $1`, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	grants := &model.ActorGrants{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Active:    actor.Active,
		Superuser: actor.Superuser,
	}

	if err := s.db.SelectContext(ctx, &grants.Roles, `
		SELECT r.code
		FROM actor_roles ar
		JOIN roles r ON r.code = ar.role_code
		WHERE ar.actor_id = $1 AND r.active
		ORDER BY r.code
	`, actorID); err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &grants.Permissions, `
		SELECT DISTINCT p.code
		FROM actor_roles ar
		JOIN roles r ON r.code = ar.role_code
		JOIN role_permissions rp ON rp.role_code = r.code
		JOIN permissions p ON p.code = rp.permission_code
		WHERE ar.actor_id = $1 AND r.active AND p.active
		ORDER BY p.code
	`, actorID); err != nil {
		return nil, err
	}

	return grants, nil
}

func (s *PostgresRBACStore) CreateActor(ctx context.Context, actor *model.Actor) error {
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (id, name, api_key, superuser, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING
	`, actor.ID, actor.Name, actor.APIKey, actor.Superuser, actor.Active, actor.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresRBACStore) SetActorActive(ctx context.Context, actorID string, active bool) error {
	return s.execOne(ctx, `UPDATE actors SET active = $2 WHERE id = $1`, actorID, active)
}

func (s *PostgresRBACStore) CreateRole(ctx context.Context, role *model.Role) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (code, name, active) VALUES ($1,$2,$3)
		ON CONFLICT (code) DO NOTHING
	`, role.Code, role.Name, role.Active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresRBACStore) SetRoleActive(ctx context.Context, roleCode string, active bool) error {
	return s.execOne(ctx, `UPDATE roles SET active = $2 WHERE code = $1`, roleCode, active)
}

func (s *PostgresRBACStore) UpsertPermission(ctx context.Context, perm *model.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (code, description, active) VALUES ($1,$2,$3)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description
	`, perm.Code, perm.Description, perm.Active)
	return err
}

func (s *PostgresRBACStore) SetPermissionActive(ctx context.Context, permCode string, active bool) error {
	return s.execOne(ctx, `UPDATE permissions SET active = $2 WHERE code = $1`, permCode, active)
}

// SetRolePermissions replaces the full permission set of a role atomically.
func (s *PostgresRBACStore) SetRolePermissions(ctx context.Context, roleCode string, permCodes []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM roles WHERE code = $1)`, roleCode); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_code = $1`, roleCode); err != nil {
		return err
	}
	for _, code := range permCodes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_code, permission_code) VALUES ($1,$2)
			ON CONFLICT DO NOTHING
		`, roleCode, code); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresRBACStore) AssignRole(ctx context.Context, actorID, roleCode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actor_roles (actor_id, role_code) VALUES ($1,$2)
		ON CONFLICT DO NOTHING
	`, actorID, roleCode)
	return err
}

func (s *PostgresRBACStore) RevokeRole(ctx context.Context, actorID, roleCode string) error {
	return s.execOne(ctx, `DELETE FROM actor_roles WHERE actor_id = $1 AND role_code = $2`, actorID, roleCode)
}

func (s *PostgresRBACStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := s.db.SelectContext(ctx, &roles, `SELECT code, name, active FROM roles ORDER BY code`)
	return roles, err
}

func (s *PostgresRBACStore) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	err := s.db.SelectContext(ctx, &perms, `SELECT code, description, active FROM permissions ORDER BY code`)
	return perms, err
}

func (s *PostgresRBACStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresRBACStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS actors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT UNIQUE,
			superuser BOOLEAN NOT NULL DEFAULT FALSE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS roles (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS permissions (
			code TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS role_permissions (
			role_code TEXT NOT NULL REFERENCES roles(code),
			permission_code TEXT NOT NULL REFERENCES permissions(code),
			PRIMARY KEY (role_code, permission_code)
		);
		CREATE TABLE IF NOT EXISTS actor_roles (
			actor_id TEXT NOT NULL REFERENCES actors(id),
			role_code TEXT NOT NULL REFERENCES roles(code),
			PRIMARY KEY (actor_id, role_code)
		)
	`)
	return err
}
