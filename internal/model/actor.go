package model

import (
	"time"
)

// Actor is an authenticated identity. Roles are assigned as data, never
// compiled into code paths; a superuser bypasses permission checks entirely.
type Actor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	APIKey    string    `json:"-" db:"api_key"`
	Superuser bool      `json:"superuser" db:"superuser"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Roles     []string  `json:"roles,omitempty" db:"-"`
}

// Role is a named bundle of permission codes.
type Role struct {
	Code   string `json:"code" db:"code"`
	Name   string `json:"name" db:"name"`
	Active bool   `json:"active" db:"active"`
}

// Permission is an atomic capability code, e.g. "approve_order".
type Permission struct {
	Code        string `json:"code" db:"code"`
	Description string `json:"description" db:"description"`
	Active      bool   `json:"active" db:"active"`
}

// Built-in role codes seeded on first start. Roles remain configuration:
// nothing in the engine branches on these constants.
const (
	RoleMaker   = "maker"
	RoleChecker = "checker"
	RoleViewer  = "viewer"
)

// PermissionSet is the resolved effective permissions of one actor.
type PermissionSet map[string]struct{}

func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

func (s PermissionSet) Codes() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	return codes
}

// ActorGrants is the resolved, active-only view of one actor's access:
// superuser flag, active role codes and the union of their active permission
// codes. This is the unit the permission cache stores.
type ActorGrants struct {
	ActorID     string   `json:"actor_id"`
	ActorName   string   `json:"actor_name"`
	Active      bool     `json:"active"`
	Superuser   bool     `json:"superuser"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (g *ActorGrants) PermissionSet() PermissionSet {
	return NewPermissionSet(g.Permissions...)
}

func (g *ActorGrants) HasRole(code string) bool {
	for _, r := range g.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// AnonymousActor is the explicit "no permissions" identity used when a check
// arrives without an authenticated actor. Checks stay total: anonymous
// resolves to an empty permission set, never to an error or nil.
var AnonymousActor = Actor{
	ID:     "anonymous",
	Name:   "Anonymous",
	Active: false,
}
