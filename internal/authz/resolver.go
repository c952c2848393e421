package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// AssignmentSource lists a principal's active role assignments in a tenant.
// Rows flagged inactive are excluded by the source; expiry filtering is the
// resolver's job so the boundary is applied consistently.
type AssignmentSource interface {
	ActiveAssignments(ctx context.Context, principalID, tenantID uuid.UUID) ([]RoleGrant, error)
}

// RoleSource looks up roles and their permission sets from the catalog.
type RoleSource interface {
	RolesWithPermissions(ctx context.Context, ids []uuid.UUID) ([]RolePermissions, error)
	// SystemRoleByName returns shared.ErrNotFound when no system role
	// carries the name.
	SystemRoleByName(ctx context.Context, name string) (RolePermissions, error)
}

// ClassificationSource reports a principal's coarse classification, used to
// pick the default role when no explicit assignments exist.
type ClassificationSource interface {
	Classification(ctx context.Context, principalID uuid.UUID) (string, error)
}

// defaultRoleByClassification maps the coarse principal classification to a
// system role name. Reviewed together with the catalog seed; unmapped
// classifications resolve to the empty permission set.
var defaultRoleByClassification = map[string]string{
	"admin":      "admin",
	"manager":    "manager",
	"supervisor": "supervisor",
	"technician": "technician",
	"employee":   "employee",
}

// DefaultRoleFor returns the system role name for a classification.
func DefaultRoleFor(classification string) (string, bool) {
	name, ok := defaultRoleByClassification[strings.ToLower(strings.TrimSpace(classification))]
	return name, ok
}

// DefaultRoleNames lists every system role name the classification mapping
// can produce. The catalog seed checks it stays covered.
func DefaultRoleNames() []string {
	names := make([]string, 0, len(defaultRoleByClassification))
	seen := make(map[string]struct{}, len(defaultRoleByClassification))
	for _, name := range defaultRoleByClassification {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolver computes the effective permission set for (principal, tenant).
type Resolver struct {
	assignments AssignmentSource
	roles       RoleSource
	users       ClassificationSource
	now         func() time.Time
}

// NewResolver constructs a Resolver. The clock defaults to time.Now.
func NewResolver(assignments AssignmentSource, roles RoleSource, users ClassificationSource) *Resolver {
	return &Resolver{
		assignments: assignments,
		roles:       roles,
		users:       users,
		now:         time.Now,
	}
}

// WithClock overrides the resolver clock.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve returns the union of permissions from all active, non-expired
// assignments, falling back to the classification-mapped system role when no
// assignments exist. An empty set is a valid result and means deny
// everything; store failures propagate as errors, never as denials.
func (r *Resolver) Resolve(ctx context.Context, principalID, tenantID uuid.UUID) (Resolution, error) {
	grants, err := r.assignments.ActiveAssignments(ctx, principalID, tenantID)
	if err != nil {
		return Resolution{}, fmt.Errorf("authz: list assignments: %w", err)
	}

	now := r.now()
	roleIDs := make([]uuid.UUID, 0, len(grants))
	for _, grant := range grants {
		// expires_at == now counts as expired.
		if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
			continue
		}
		roleIDs = append(roleIDs, grant.RoleID)
	}

	if len(roleIDs) == 0 {
		return r.resolveDefault(ctx, principalID)
	}

	roles, err := r.roles.RolesWithPermissions(ctx, roleIDs)
	if err != nil {
		return Resolution{}, fmt.Errorf("authz: load roles: %w", err)
	}
	return unionResolution(roles), nil
}

// resolveDefault applies the fallback branch: classification to system role
// by name, empty set when either side of the mapping is missing.
func (r *Resolver) resolveDefault(ctx context.Context, principalID uuid.UUID) (Resolution, error) {
	classification, err := r.users.Classification(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return emptyResolution(), nil
		}
		return Resolution{}, fmt.Errorf("authz: principal classification: %w", err)
	}

	roleName, ok := DefaultRoleFor(classification)
	if !ok {
		return emptyResolution(), nil
	}

	role, err := r.roles.SystemRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return emptyResolution(), nil
		}
		return Resolution{}, fmt.Errorf("authz: system role %q: %w", roleName, err)
	}
	return unionResolution([]RolePermissions{role}), nil
}

func unionResolution(roles []RolePermissions) Resolution {
	permissions := make(PermissionSet)
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
		for _, perm := range role.Permissions {
			perm = NormalizePermission(perm)
			if perm == "" {
				continue
			}
			permissions[perm] = struct{}{}
		}
	}
	sort.Strings(names)
	return Resolution{Permissions: permissions, Roles: names}
}

func emptyResolution() Resolution {
	return Resolution{Permissions: make(PermissionSet)}
}
