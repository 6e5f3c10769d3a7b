package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"

	"github.com/google/uuid"
)

// AdminService mutates the RBAC catalog. Every mutation invalidates the
// grants cache before touching the store so a concurrent reader can never
// re-populate the cache with pre-mutation data after the write lands, and
// every mutation is audited with a pending secondary-review sub-record.
type AdminService struct {
	store     RBACStore
	perms     *PermissionResolver
	directory ActorDirectory
	audit     Recorder
}

func NewAdminService(store RBACStore, perms *PermissionResolver, audit Recorder) *AdminService {
	return &AdminService{store: store, perms: perms, directory: store, audit: audit}
}

func (s *AdminService) CreateActor(ctx context.Context, adminID string, actor *model.Actor) error {
	if strings.TrimSpace(actor.Name) == "" {
		return apperrors.NewValidationFailed("actor name is required")
	}
	if actor.ID == "" {
		actor.ID = uuid.NewString()
	}
	if actor.APIKey == "" {
		actor.APIKey = uuid.NewString()
	}
	actor.Active = true

	if err := s.store.CreateActor(ctx, actor); err != nil {
		return s.wrapStoreErr(err, "actor already exists")
	}
	s.recordChange(ctx, adminID, "actor", actor.ID, actor.Name,
		fmt.Sprintf("created actor %s", actor.Name), nil)
	return nil
}

func (s *AdminService) SetActorActive(ctx context.Context, adminID, actorID string, active bool) error {
	s.perms.Invalidate(ctx, actorID)
	if err := s.store.SetActorActive(ctx, actorID, active); err != nil {
		return s.wrapStoreErr(err, "actor not found")
	}
	verb := "deactivated"
	if active {
		verb = "reactivated"
	}
	s.recordChange(ctx, adminID, "actor", actorID, "",
		fmt.Sprintf("%s actor %s", verb, actorID),
		map[string]any{"active": active})
	return nil
}

func (s *AdminService) CreateRole(ctx context.Context, adminID string, role *model.Role) error {
	if strings.TrimSpace(role.Code) == "" {
		return apperrors.NewValidationFailed("role code is required")
	}
	role.Code = strings.ToLower(strings.TrimSpace(role.Code))
	role.Active = true

	if err := s.store.CreateRole(ctx, role); err != nil {
		return s.wrapStoreErr(err, "role already exists")
	}
	s.recordChange(ctx, adminID, "role", role.Code, role.Name,
		fmt.Sprintf("created role %s", role.Code), nil)
	return nil
}

func (s *AdminService) SetRoleActive(ctx context.Context, adminID, roleCode string, active bool) error {
	// A role toggle changes the effective permissions of every actor holding
	// it, and membership is not tracked here.
	s.perms.InvalidateAll(ctx)
	if err := s.store.SetRoleActive(ctx, roleCode, active); err != nil {
		return s.wrapStoreErr(err, "role not found")
	}
	s.recordChange(ctx, adminID, "role", roleCode, "",
		fmt.Sprintf("set role %s active=%t", roleCode, active),
		map[string]any{"active": active})
	return nil
}

func (s *AdminService) UpsertPermission(ctx context.Context, adminID string, perm *model.Permission) error {
	if strings.TrimSpace(perm.Code) == "" {
		return apperrors.NewValidationFailed("permission code is required")
	}
	perm.Code = strings.ToLower(strings.TrimSpace(perm.Code))
	perm.Active = true

	s.perms.InvalidateAll(ctx)
	if err := s.store.UpsertPermission(ctx, perm); err != nil {
		return apperrors.Wrap(err)
	}
	s.recordChange(ctx, adminID, "permission", perm.Code, perm.Description,
		fmt.Sprintf("upserted permission %s", perm.Code), nil)
	return nil
}

func (s *AdminService) SetPermissionActive(ctx context.Context, adminID, permCode string, active bool) error {
	s.perms.InvalidateAll(ctx)
	if err := s.store.SetPermissionActive(ctx, permCode, active); err != nil {
		return s.wrapStoreErr(err, "permission not found")
	}
	s.recordChange(ctx, adminID, "permission", permCode, "",
		fmt.Sprintf("set permission %s active=%t", permCode, active),
		map[string]any{"active": active})
	return nil
}

func (s *AdminService) SetRolePermissions(ctx context.Context, adminID, roleCode string, permCodes []string) error {
	cleaned := make([]string, 0, len(permCodes))
	seen := make(map[string]struct{}, len(permCodes))
	for _, code := range permCodes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		cleaned = append(cleaned, code)
	}
	sort.Strings(cleaned)

	s.perms.InvalidateAll(ctx)
	if err := s.store.SetRolePermissions(ctx, roleCode, cleaned); err != nil {
		return s.wrapStoreErr(err, "role not found")
	}
	s.recordChange(ctx, adminID, "role", roleCode, "",
		fmt.Sprintf("replaced permissions of role %s", roleCode),
		map[string]any{"permissions": strings.Join(cleaned, ",")})
	return nil
}

func (s *AdminService) AssignRole(ctx context.Context, adminID, actorID, roleCode string) error {
	s.perms.Invalidate(ctx, actorID)
	if err := s.store.AssignRole(ctx, actorID, roleCode); err != nil {
		return s.wrapStoreErr(err, "actor or role not found")
	}
	s.recordChange(ctx, adminID, "actor", actorID, "",
		fmt.Sprintf("assigned role %s to actor %s", roleCode, actorID),
		map[string]any{"role": roleCode, "granted": true})
	return nil
}

func (s *AdminService) RevokeRole(ctx context.Context, adminID, actorID, roleCode string) error {
	s.perms.Invalidate(ctx, actorID)
	if err := s.store.RevokeRole(ctx, actorID, roleCode); err != nil {
		return s.wrapStoreErr(err, "actor or role not found")
	}
	s.recordChange(ctx, adminID, "actor", actorID, "",
		fmt.Sprintf("revoked role %s from actor %s", roleCode, actorID),
		map[string]any{"role": roleCode, "granted": false})
	return nil
}

// InvalidateGrantsCache drops every cached grant set, for operators who
// changed RBAC data out of band.
func (s *AdminService) InvalidateGrantsCache(ctx context.Context) {
	s.perms.InvalidateAll(ctx)
}

func (s *AdminService) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	return roles, nil
}

func (s *AdminService) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	perms, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	return perms, nil
}

// recordChange emits the RBAC mutation event. Grant changes require a second
// reviewer, so the sub-record starts pending.
func (s *AdminService) recordChange(ctx context.Context, adminID, targetType, targetID, display, description string, extra map[string]any) {
	name := adminID
	if actor, err := s.directory.GetActor(ctx, adminID); err == nil && actor != nil {
		name = actor.Name
	}
	event := &model.AuditEvent{
		ActorID:          adminID,
		ActorName:        name,
		Action:           model.ActionUpdate,
		Severity:         model.SeverityWarning,
		Outcome:          model.OutcomeSuccess,
		TargetType:       targetType,
		TargetID:         targetID,
		TargetDisplay:    display,
		Description:      description,
		ExtraContext:     extra,
		RequiresApproval: true,
		ApprovalStatus:   model.ApprovalPending,
	}
	applyRequestMeta(ctx, event)
	s.audit.Record(event)
}

func (s *AdminService) wrapStoreErr(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(notFoundMsg)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewValidationFailed(notFoundMsg)
	default:
		return apperrors.Wrap(err)
	}
}
