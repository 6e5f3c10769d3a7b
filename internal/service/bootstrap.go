package service

import (
	"context"
	"errors"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/logger"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"
)

// Seed installs the default RBAC catalog and the bootstrap admin. It is
// idempotent: existing rows are left untouched so operator customizations
// survive restarts.
func Seed(ctx context.Context, store RBACStore, adminName, adminAPIKey string) error {
	permissions := []model.Permission{
		{Code: "create_order", Description: "Create, edit, delete and submit order drafts", Active: true},
		{Code: "approve_order", Description: "Approve or reject submitted orders", Active: true},
		{Code: "view_order", Description: "Read orders", Active: true},
		{Code: "create_portfolio", Description: "Create, edit, delete and submit portfolio drafts", Active: true},
		{Code: "approve_portfolio", Description: "Approve or reject submitted portfolios", Active: true},
		{Code: "view_portfolio", Description: "Read portfolios", Active: true},
		{Code: "view_audit", Description: "Query the audit trail", Active: true},
		{Code: "export_audit", Description: "Export the audit trail", Active: true},
		{Code: "manage_rbac", Description: "Administer actors, roles and permissions", Active: true},
	}
	for i := range permissions {
		if err := store.UpsertPermission(ctx, &permissions[i]); err != nil {
			return err
		}
	}

	roles := map[string]struct {
		name  string
		perms []string
	}{
		model.RoleMaker:   {"Maker", []string{"create_order", "view_order", "create_portfolio", "view_portfolio"}},
		model.RoleChecker: {"Checker", []string{"approve_order", "view_order", "approve_portfolio", "view_portfolio", "view_audit"}},
		model.RoleViewer:  {"Viewer", []string{"view_order", "view_portfolio", "view_audit"}},
	}
	for code, def := range roles {
		err := store.CreateRole(ctx, &model.Role{Code: code, Name: def.name, Active: true})
		if err != nil {
			if !errors.Is(err, repository.ErrDuplicate) {
				return err
			}
			continue // keep the operator's permission mappings
		}
		if err := store.SetRolePermissions(ctx, code, def.perms); err != nil {
			return err
		}
	}

	if adminName == "" || adminAPIKey == "" {
		logger.Warn("no bootstrap admin configured, RBAC mutations require an existing superuser")
		return nil
	}
	admin := &model.Actor{
		ID:        "admin",
		Name:      adminName,
		APIKey:    adminAPIKey,
		Superuser: true,
		Active:    true,
	}
	if err := store.CreateActor(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return err
	}
	logger.Info("bootstrap admin created", "actor_id", admin.ID)
	return nil
}
