// Package policy applies resource-level access rules on top of the
// permission gate: the "full versus own" pattern plus tenant scoping.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Resource is the minimal projection policy checks need: who owns it and
// which tenant it lives in.
type Resource struct {
	Kind     string
	ID       uuid.UUID
	TenantID uuid.UUID
	OwnerIDs []uuid.UUID
}

// Loader fetches the policy projection of one resource kind. Implementations
// return shared.ErrNotFound when the resource does not exist.
type Loader interface {
	Load(ctx context.Context, id uuid.UUID) (Resource, error)
}

// MembershipSource reports whether a principal belongs to a tenant. The
// users service implements it from the directory.
type MembershipSource interface {
	BelongsToTenant(ctx context.Context, principalID, tenantID uuid.UUID) (bool, error)
}

// Enforcer evaluates resource access for a resolved grant. Loaders are
// registered per resource kind at startup.
type Enforcer struct {
	loaders    map[string]Loader
	membership MembershipSource
	logger     *slog.Logger
}

// NewEnforcer constructs an enforcer with no loaders registered yet.
func NewEnforcer(membership MembershipSource, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		loaders:    make(map[string]Loader),
		membership: membership,
		logger:     logger,
	}
}

// RegisterLoader attaches a loader for a resource kind. Later registrations
// replace earlier ones.
func (e *Enforcer) RegisterLoader(kind string, loader Loader) {
	e.loaders[kind] = loader
}

// CheckTenantAccess denies when the resource belongs to another tenant. The
// message stays generic: callers must not learn what exists elsewhere.
func CheckTenantAccess(grant authz.Grant, resource Resource) error {
	if resource.TenantID != grant.TenantID {
		return authz.NewForbidden(authz.TierTenant, "Access denied")
	}
	return nil
}

// CheckOwnership denies unless the principal is among the resource owners.
func CheckOwnership(grant authz.Grant, resource Resource) error {
	for _, owner := range resource.OwnerIDs {
		if owner == grant.PrincipalID {
			return nil
		}
	}
	kind := strings.ToLower(strings.TrimSpace(resource.Kind))
	if kind == "" {
		kind = "resource"
	}
	return authz.NewForbidden(authz.TierOwnership,
		fmt.Sprintf("You can only access your own %s records", kind))
}

// checkMembership verifies the principal really belongs to the tenant it is
// acting under. A missing or foreign principal denies with the same generic
// message as a foreign resource; infrastructure failures propagate so the
// caller fails closed rather than denying.
func (e *Enforcer) checkMembership(ctx context.Context, grant authz.Grant) error {
	if e.membership == nil {
		return errors.New("policy: no membership source configured")
	}
	ok, err := e.membership.BelongsToTenant(ctx, grant.PrincipalID, grant.TenantID)
	if errors.Is(err, shared.ErrNotFound) {
		return authz.NewForbidden(authz.TierTenant, "Access denied")
	}
	if err != nil {
		return fmt.Errorf("policy: check tenant membership: %w", err)
	}
	if !ok {
		e.logger.Info("tenant membership denied",
			slog.String("principal", grant.PrincipalID.String()),
			slog.String("tenant", grant.TenantID.String()))
		return authz.NewForbidden(authz.TierTenant, "Access denied")
	}
	return nil
}

// EnforceResourceAccess applies the full-versus-own pattern for a base
// permission: the ".all" variant grants tenant-wide access, the ".own"
// variant additionally requires ownership, neither denies outright. Tenant
// scoping applies on both sides: the principal must belong to the tenant it
// acts under and the resource must live in that tenant.
func (e *Enforcer) EnforceResourceAccess(ctx context.Context, grant authz.Grant, base, kind string, resourceID uuid.UUID) error {
	full := authz.FullPermission(base)
	own := authz.OwnPermission(base)
	hasFull := grant.Permissions.Has(full)
	hasOwn := grant.Permissions.Has(own)
	if !hasFull && !hasOwn {
		return authz.NewForbidden(authz.TierPermission,
			fmt.Sprintf("Insufficient permissions. Required: %s or %s", full, own))
	}

	if err := e.checkMembership(ctx, grant); err != nil {
		return err
	}

	loader, ok := e.loaders[kind]
	if !ok {
		return fmt.Errorf("policy: no loader for resource kind %q", kind)
	}
	resource, err := loader.Load(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("policy: load %s %s: %w", kind, resourceID, err)
	}

	if err := CheckTenantAccess(grant, resource); err != nil {
		e.logger.Info("tenant scope denied",
			slog.String("kind", kind),
			slog.String("resource", resourceID.String()),
			slog.String("principal", grant.PrincipalID.String()))
		return err
	}
	if hasFull {
		return nil
	}
	return CheckOwnership(grant, resource)
}
