package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
)

// MemoryRBACStore is the in-process fallback used when no database is
// configured, and by tests. Semantics mirror PostgresRBACStore.
type MemoryRBACStore struct {
	mu         sync.RWMutex
	actors     map[string]*model.Actor
	roles      map[string]*model.Role
	perms      map[string]*model.Permission
	rolePerms  map[string]map[string]struct{} // role code -> permission codes
	actorRoles map[string]map[string]struct{} // actor id -> role codes
}

func NewMemoryRBACStore() *MemoryRBACStore {
	return &MemoryRBACStore{
		actors:     make(map[string]*model.Actor),
		roles:      make(map[string]*model.Role),
		perms:      make(map[string]*model.Permission),
		rolePerms:  make(map[string]map[string]struct{}),
		actorRoles: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryRBACStore) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.actors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.cloneActorLocked(actor), nil
}

func (s *MemoryRBACStore) GetActorByAPIKey(ctx context.Context, apiKey string) (*model.Actor, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, actor := range s.actors {
		if actor.APIKey == apiKey {
			return s.cloneActorLocked(actor), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryRBACStore) cloneActorLocked(actor *model.Actor) *model.Actor {
	clone := *actor
	clone.Roles = nil
	for code := range s.actorRoles[actor.ID] {
		clone.Roles = append(clone.Roles, code)
	}
	sort.Strings(clone.Roles)
	return &clone
}

func (s *MemoryRBACStore) LoadGrants(ctx context.Context, actorID string) (*model.ActorGrants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actor, ok := s.actors[actorID]
	if !ok {
		return nil, ErrNotFound
	}

	grants := &model.ActorGrants{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Active:    actor.Active,
		Superuser: actor.Superuser,
	}

	permSet := make(map[string]struct{})
	for roleCode := range s.actorRoles[actorID] {
		role, ok := s.roles[roleCode]
		if !ok || !role.Active {
			continue
		}
		grants.Roles = append(grants.Roles, roleCode)
		for permCode := range s.rolePerms[roleCode] {
			perm, ok := s.perms[permCode]
			if !ok || !perm.Active {
				continue
			}
			permSet[permCode] = struct{}{}
		}
	}
	for code := range permSet {
		grants.Permissions = append(grants.Permissions, code)
	}
	sort.Strings(grants.Roles)
	sort.Strings(grants.Permissions)
	return grants, nil
}

func (s *MemoryRBACStore) CreateActor(ctx context.Context, actor *model.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[actor.ID]; ok {
		return ErrDuplicate
	}
	clone := *actor
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.actors[actor.ID] = &clone
	return nil
}

func (s *MemoryRBACStore) SetActorActive(ctx context.Context, actorID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[actorID]
	if !ok {
		return ErrNotFound
	}
	actor.Active = active
	return nil
}

func (s *MemoryRBACStore) CreateRole(ctx context.Context, role *model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Code]; ok {
		return ErrDuplicate
	}
	clone := *role
	s.roles[role.Code] = &clone
	return nil
}

func (s *MemoryRBACStore) SetRoleActive(ctx context.Context, roleCode string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleCode]
	if !ok {
		return ErrNotFound
	}
	role.Active = active
	return nil
}

func (s *MemoryRBACStore) UpsertPermission(ctx context.Context, perm *model.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.perms[perm.Code]; ok {
		existing.Description = perm.Description
		return nil
	}
	clone := *perm
	s.perms[perm.Code] = &clone
	return nil
}

func (s *MemoryRBACStore) SetPermissionActive(ctx context.Context, permCode string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[permCode]
	if !ok {
		return ErrNotFound
	}
	perm.Active = active
	return nil
}

func (s *MemoryRBACStore) SetRolePermissions(ctx context.Context, roleCode string, permCodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleCode]; !ok {
		return ErrNotFound
	}
	set := make(map[string]struct{}, len(permCodes))
	for _, code := range permCodes {
		set[code] = struct{}{}
	}
	s.rolePerms[roleCode] = set
	return nil
}

func (s *MemoryRBACStore) AssignRole(ctx context.Context, actorID, roleCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actorRoles[actorID] == nil {
		s.actorRoles[actorID] = make(map[string]struct{})
	}
	s.actorRoles[actorID][roleCode] = struct{}{}
	return nil
}

func (s *MemoryRBACStore) RevokeRole(ctx context.Context, actorID, roleCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := s.actorRoles[actorID]
	if _, ok := roles[roleCode]; !ok {
		return ErrNotFound
	}
	delete(roles, roleCode)
	return nil
}

func (s *MemoryRBACStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]model.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, *role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Code < roles[j].Code })
	return roles, nil
}

func (s *MemoryRBACStore) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := make([]model.Permission, 0, len(s.perms))
	for _, perm := range s.perms {
		perms = append(perms, *perm)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Code < perms[j].Code })
	return perms, nil
}
