package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Invalidator is attached by every code path that mutates catalog or
// assignment data. Hooks run synchronously inside the mutating operation so
// a subsequent resolve can never observe the pre-mutation cache entry; the
// TTL only covers edits that bypass these hooks.
type Invalidator struct {
	cache  PermissionCache
	logger *slog.Logger
}

// NewInvalidator constructs the hook set over a cache.
func NewInvalidator(cache PermissionCache, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{cache: cache, logger: logger}
}

// OnRoleAssignmentChanged evicts the single (principal, tenant) entry after
// an assignment was created, deactivated or removed.
func (i *Invalidator) OnRoleAssignmentChanged(ctx context.Context, principalID, tenantID uuid.UUID) error {
	if i == nil || i.cache == nil {
		return nil
	}
	if err := i.cache.Invalidate(ctx, principalID, tenantID); err != nil {
		i.logger.Error("invalidate assignment cache",
			slog.String("principal", principalID.String()),
			slog.String("tenant", tenantID.String()),
			slog.Any("error", err))
		return err
	}
	return nil
}

// OnRolePermissionsChanged clears the whole cache: a role's permission set
// feeds an unbounded number of principals across tenants.
func (i *Invalidator) OnRolePermissionsChanged(ctx context.Context, roleID uuid.UUID) error {
	if i == nil || i.cache == nil {
		return nil
	}
	if err := i.cache.InvalidateAll(ctx); err != nil {
		i.logger.Error("invalidate role cache",
			slog.String("role", roleID.String()),
			slog.Any("error", err))
		return err
	}
	return nil
}

// OnTenantRolesChanged evicts every entry of a tenant after its custom role
// composition changed.
func (i *Invalidator) OnTenantRolesChanged(ctx context.Context, tenantID uuid.UUID) error {
	if i == nil || i.cache == nil {
		return nil
	}
	if err := i.cache.InvalidateTenant(ctx, tenantID); err != nil {
		i.logger.Error("invalidate tenant cache",
			slog.String("tenant", tenantID.String()),
			slog.Any("error", err))
		return err
	}
	return nil
}
