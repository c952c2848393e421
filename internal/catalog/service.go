package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/audit"
	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Service orchestrates catalog operations and keeps the permission cache
// consistent with role edits. It also implements authz.RoleSource for the
// resolver.
type Service struct {
	repo        Repository
	invalidator *authz.Invalidator
	events      audit.Recorder
}

// NewService constructs a Service. Invalidator and recorder may be nil in
// read-only contexts.
func NewService(repo Repository, invalidator *authz.Invalidator, events audit.Recorder) *Service {
	return &Service{repo: repo, invalidator: invalidator, events: events}
}

// ListPermissions returns the permission universe.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListRoles returns system roles plus the tenant's custom roles.
func (s *Service) ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// GetRole fetches a role visible to the tenant: system roles or the
// tenant's own custom roles. Other tenants' roles read as absent.
func (s *Service) GetRole(ctx context.Context, id, tenantID uuid.UUID) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !role.IsSystem && (role.TenantID == nil || *role.TenantID != tenantID) {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

// editableRole loads a role and verifies the tenant may change it. System
// roles are read-only outside the seed, and a foreign tenant's role reads as
// absent so its existence is never confirmed.
func (s *Service) editableRole(ctx context.Context, id, tenantID uuid.UUID) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if role.IsSystem {
		return Role{}, fmt.Errorf("%w: system roles cannot be modified", httpx.ErrForbidden)
	}
	if role.TenantID == nil || *role.TenantID != tenantID {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

// CreateRoleInput describes a new custom role.
type CreateRoleInput struct {
	Name        string
	Description string
	TenantID    *uuid.UUID
	ActorID     uuid.UUID
}

// CreateRole inserts a custom role. System roles come from the seed only.
func (s *Service) CreateRole(ctx context.Context, input CreateRoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, errors.New("catalog: role name required")
	}
	role, err := s.repo.CreateRole(ctx, Role{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		TenantID:    input.TenantID,
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, input.ActorID, input.TenantID, "role.create", role.ID.String(), map[string]string{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes one of the tenant's custom roles.
// Permission edges are untouched, so no cache invalidation is needed.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, name, description string, tenantID, actorID uuid.UUID) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("catalog: role name required")
	}
	if _, err := s.editableRole(ctx, id, tenantID); err != nil {
		return Role{}, err
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, role.TenantID, "role.update", role.ID.String(), map[string]string{"name": role.Name})
	return role, nil
}

// DeleteRole removes one of the tenant's custom roles and evicts the
// tenant's cache entries: any principal still holding the role loses its
// permissions. A custom role can only be assigned inside its own tenant, so
// tenant-wide eviction suffices.
func (s *Service) DeleteRole(ctx context.Context, id, tenantID, actorID uuid.UUID) error {
	role, err := s.editableRole(ctx, id, tenantID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	if err := s.invalidator.OnTenantRolesChanged(ctx, *role.TenantID); err != nil {
		return err
	}
	s.record(ctx, actorID, role.TenantID, "role.delete", id.String(), map[string]string{"name": role.Name})
	return nil
}

// SetRolePermissions replaces the permission set of one of the tenant's
// custom roles by diffing against the current edges, then clears the cache.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissions []string, tenantID, actorID uuid.UUID) error {
	role, err := s.editableRole(ctx, roleID, tenantID)
	if err != nil {
		return err
	}

	existing := make(map[string]struct{}, len(role.Permissions))
	for _, name := range role.Permissions {
		existing[authz.NormalizePermission(name)] = struct{}{}
	}
	keep := make(map[string]struct{}, len(permissions))
	for _, name := range permissions {
		name = authz.NormalizePermission(name)
		if name == "" {
			continue
		}
		keep[name] = struct{}{}
		if _, ok := existing[name]; !ok {
			if err := s.repo.AttachPermission(ctx, roleID, name); err != nil {
				return err
			}
		}
	}
	for name := range existing {
		if _, ok := keep[name]; !ok {
			if err := s.repo.DetachPermission(ctx, roleID, name); err != nil {
				return err
			}
		}
	}

	if err := s.invalidator.OnRolePermissionsChanged(ctx, roleID); err != nil {
		return err
	}
	s.record(ctx, actorID, role.TenantID, "role.permissions.set", roleID.String(), map[string]string{
		"name":  role.Name,
		"count": fmt.Sprintf("%d", len(keep)),
	})
	return nil
}

// EnsurePermission upserts a catalog permission; used by the seeder.
func (s *Service) EnsurePermission(ctx context.Context, perm Permission) error {
	perm.Name = authz.NormalizePermission(perm.Name)
	if perm.Name == "" {
		return errors.New("catalog: permission name required")
	}
	return s.repo.UpsertPermission(ctx, perm)
}

// RolesWithPermissions implements authz.RoleSource.
func (s *Service) RolesWithPermissions(ctx context.Context, ids []uuid.UUID) ([]authz.RolePermissions, error) {
	roles, err := s.repo.RolesWithPermissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]authz.RolePermissions, len(roles))
	for i, role := range roles {
		out[i] = authz.RolePermissions{ID: role.ID, Name: role.Name, Permissions: role.Permissions}
	}
	return out, nil
}

// SystemRoleByName implements authz.RoleSource.
func (s *Service) SystemRoleByName(ctx context.Context, name string) (authz.RolePermissions, error) {
	role, err := s.repo.SystemRoleByName(ctx, name)
	if err != nil {
		return authz.RolePermissions{}, err
	}
	return authz.RolePermissions{ID: role.ID, Name: role.Name, Permissions: role.Permissions}, nil
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, tenantID *uuid.UUID, action, entityID string, detail map[string]string) {
	if s.events == nil {
		return
	}
	event := audit.Event{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: entityID,
		Detail:   detail,
	}
	if tenantID != nil {
		event.TenantID = *tenantID
	}
	// Audit failures must not abort the mutation; they are logged by the
	// recorder itself.
	_ = s.events.Record(ctx, event)
}
