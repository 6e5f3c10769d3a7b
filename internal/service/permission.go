package service

import (
	"context"
	"errors"
	"sort"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/logger"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/metrics"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"
)

// RBACStore is the persistence contract for actors, roles and permissions.
type RBACStore interface {
	GetActor(ctx context.Context, id string) (*model.Actor, error)
	GetActorByAPIKey(ctx context.Context, apiKey string) (*model.Actor, error)
	// LoadGrants resolves the active-only effective access of one actor.
	LoadGrants(ctx context.Context, actorID string) (*model.ActorGrants, error)

	CreateActor(ctx context.Context, actor *model.Actor) error
	SetActorActive(ctx context.Context, actorID string, active bool) error
	CreateRole(ctx context.Context, role *model.Role) error
	SetRoleActive(ctx context.Context, roleCode string, active bool) error
	UpsertPermission(ctx context.Context, perm *model.Permission) error
	SetPermissionActive(ctx context.Context, permCode string, active bool) error
	SetRolePermissions(ctx context.Context, roleCode string, permCodes []string) error
	AssignRole(ctx context.Context, actorID, roleCode string) error
	RevokeRole(ctx context.Context, actorID, roleCode string) error
	ListRoles(ctx context.Context) ([]model.Role, error)
	ListPermissions(ctx context.Context) ([]model.Permission, error)
}

// GrantsCache holds resolved permission sets per actor. Implementations are
// injected, never ambient; invalidation must be safe alongside concurrent
// reads.
type GrantsCache interface {
	Get(ctx context.Context, actorID string) (*model.ActorGrants, bool)
	Set(ctx context.Context, actorID string, grants *model.ActorGrants)
	Invalidate(ctx context.Context, actorID string)
	InvalidateAll(ctx context.Context)
}

// PermissionResolver answers "may this actor do that". Checks are total: an
// unknown or anonymous actor resolves to an explicit empty grant set, and
// store failures fail closed.
type PermissionResolver struct {
	store RBACStore
	cache GrantsCache
}

func NewPermissionResolver(store RBACStore, cache GrantsCache) *PermissionResolver {
	return &PermissionResolver{store: store, cache: cache}
}

func (r *PermissionResolver) HasPermission(ctx context.Context, actorID, code string) bool {
	grants := r.grants(ctx, actorID)
	if !grants.Active {
		metrics.PermissionChecks.WithLabelValues("denied").Inc()
		return false
	}
	if grants.Superuser {
		metrics.PermissionChecks.WithLabelValues("superuser").Inc()
		return true
	}
	if grants.PermissionSet().Has(code) {
		metrics.PermissionChecks.WithLabelValues("granted").Inc()
		return true
	}
	metrics.PermissionChecks.WithLabelValues("denied").Inc()
	return false
}

// EffectivePermissions returns the actor's resolved permission codes, sorted
// and deduplicated. A superuser reports only explicit grants; the bypass is a
// flag, not an enumerable set of codes.
func (r *PermissionResolver) EffectivePermissions(ctx context.Context, actorID string) []string {
	grants := r.grants(ctx, actorID)
	if !grants.Active {
		return nil
	}
	codes := grants.PermissionSet().Codes()
	sort.Strings(codes)
	return codes
}

func (r *PermissionResolver) HasAnyPermission(ctx context.Context, actorID string, codes ...string) bool {
	for _, code := range codes {
		if r.HasPermission(ctx, actorID, code) {
			return true
		}
	}
	return false
}

func (r *PermissionResolver) HasRole(ctx context.Context, actorID, roleCode string) bool {
	grants := r.grants(ctx, actorID)
	if !grants.Active {
		return false
	}
	if grants.Superuser {
		return true
	}
	return grants.HasRole(roleCode)
}

// Invalidate drops one actor's cached grants. RBAC mutations call this
// before the store write so no reader keeps pre-invalidation data afterwards.
func (r *PermissionResolver) Invalidate(ctx context.Context, actorID string) {
	r.cache.Invalidate(ctx, actorID)
}

// InvalidateAll drops every cached grant set; used when a role or permission
// level change affects an unknown set of actors.
func (r *PermissionResolver) InvalidateAll(ctx context.Context) {
	r.cache.InvalidateAll(ctx)
}

func (r *PermissionResolver) grants(ctx context.Context, actorID string) *model.ActorGrants {
	if actorID == "" || actorID == model.AnonymousActor.ID {
		return anonymousGrants()
	}
	if cached, ok := r.cache.Get(ctx, actorID); ok {
		metrics.PermissionCacheLookups.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.PermissionCacheLookups.WithLabelValues("miss").Inc()

	grants, err := r.store.LoadGrants(ctx, actorID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.LogError(ctx, err, "failed to load actor grants", "actor_id", actorID)
		}
		return anonymousGrants()
	}
	r.cache.Set(ctx, actorID, grants)
	return grants
}

func anonymousGrants() *model.ActorGrants {
	return &model.ActorGrants{
		ActorID:   model.AnonymousActor.ID,
		ActorName: model.AnonymousActor.Name,
		Active:    false,
	}
}
