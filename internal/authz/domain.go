// Package authz implements permission resolution, caching and the
// authorization gate for multi-tenant principals.
package authz

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PermissionSet holds the effective permission names of a principal.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from permission names. Names are normalized
// to lower case; empty entries are dropped.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = NormalizePermission(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[NormalizePermission(name)]
	return ok
}

// HasAny reports whether the set intersects the required permissions.
// An empty requirement list yields false.
func (s PermissionSet) HasAny(required []string) bool {
	for _, name := range required {
		if s.Has(name) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set is a superset of the required permissions.
// An empty requirement list yields true.
func (s PermissionSet) HasAll(required []string) bool {
	for _, name := range required {
		if !s.Has(name) {
			return false
		}
	}
	return true
}

// Names returns the permissions in sorted order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizePermission canonicalizes a permission name for comparison.
func NormalizePermission(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizePermissions canonicalizes and deduplicates a requirement list.
func NormalizePermissions(names []string) []string {
	unique := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = NormalizePermission(name)
		if name == "" {
			continue
		}
		unique[name] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for name := range unique {
		normalized = append(normalized, name)
	}
	sort.Strings(normalized)
	return normalized
}

// Resolution is the outcome of resolving a principal's permissions within a
// tenant: the effective set plus the contributing role names for diagnostics.
type Resolution struct {
	Permissions PermissionSet
	Roles       []string
}

// Grant is returned by every successful gate check so callers that need
// further resource-level checks do not resolve again.
type Grant struct {
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
	Permissions PermissionSet
	Roles       []string
}

// RoleGrant is one active role assignment row as seen by the resolver.
// ExpiresAt is nil for open-ended assignments.
type RoleGrant struct {
	RoleID    uuid.UUID
	ExpiresAt *time.Time
}

// RolePermissions pairs a role with its permission names.
type RolePermissions struct {
	ID          uuid.UUID
	Name        string
	Permissions []string
}
