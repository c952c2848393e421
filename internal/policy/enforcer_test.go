package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

type staticLoader struct {
	resources map[uuid.UUID]Resource
	err       error
}

func (l *staticLoader) Load(_ context.Context, id uuid.UUID) (Resource, error) {
	if l.err != nil {
		return Resource{}, l.err
	}
	resource, ok := l.resources[id]
	if !ok {
		return Resource{}, shared.ErrNotFound
	}
	return resource, nil
}

// openMembership accepts every (principal, tenant) pair; tests that are not
// about membership use it.
type openMembership struct{}

func (openMembership) BelongsToTenant(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

// directoryMembership maps each principal to its real tenant.
type directoryMembership struct {
	tenants map[uuid.UUID]uuid.UUID
	err     error
}

func (m *directoryMembership) BelongsToTenant(_ context.Context, principalID, tenantID uuid.UUID) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	actual, ok := m.tenants[principalID]
	if !ok {
		return false, shared.ErrNotFound
	}
	return actual == tenantID, nil
}

func grantWith(tenantID uuid.UUID, permissions ...string) authz.Grant {
	return authz.Grant{
		PrincipalID: uuid.New(),
		TenantID:    tenantID,
		Permissions: authz.NewPermissionSet(permissions...),
	}
}

func TestEnforceResourceAccessFullVersusOwn(t *testing.T) {
	tenant := uuid.New()
	taskID := uuid.New()
	owner := uuid.New()

	loader := &staticLoader{resources: map[uuid.UUID]Resource{
		taskID: {Kind: KindTask, ID: taskID, TenantID: tenant, OwnerIDs: []uuid.UUID{owner}},
	}}
	enforcer := NewEnforcer(openMembership{}, nil)
	enforcer.RegisterLoader(KindTask, loader)
	ctx := context.Background()

	t.Run("full permission reaches any resource in tenant", func(t *testing.T) {
		grant := grantWith(tenant, authz.PermTaskReadAll)
		require.NoError(t, enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID))
	})

	t.Run("own permission requires ownership", func(t *testing.T) {
		grant := grantWith(tenant, authz.PermTaskReadOwn)
		err := enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID)
		var fb *authz.Forbidden
		require.ErrorAs(t, err, &fb)
		require.Equal(t, authz.TierOwnership, fb.Tier)
		require.Equal(t, "You can only access your own task records", fb.Message)

		grant.PrincipalID = owner
		require.NoError(t, enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID))
	})

	t.Run("neither variant denies on permission tier", func(t *testing.T) {
		grant := grantWith(tenant, authz.PermOrderCreate)
		err := enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID)
		var fb *authz.Forbidden
		require.ErrorAs(t, err, &fb)
		require.Equal(t, authz.TierPermission, fb.Tier)
		require.Contains(t, fb.Message, "task.read.all or task.read.own")
	})
}

func TestEnforceResourceAccessTenantScope(t *testing.T) {
	tenant := uuid.New()
	foreignTask := uuid.New()
	loader := &staticLoader{resources: map[uuid.UUID]Resource{
		foreignTask: {Kind: KindTask, ID: foreignTask, TenantID: uuid.New(), OwnerIDs: []uuid.UUID{uuid.New()}},
	}}
	enforcer := NewEnforcer(openMembership{}, nil)
	enforcer.RegisterLoader(KindTask, loader)

	// Even the full variant stops at the tenant boundary, and the message
	// does not reveal the resource's existence.
	grant := grantWith(tenant, authz.PermTaskReadAll)
	err := enforcer.EnforceResourceAccess(context.Background(), grant, "task.read", KindTask, foreignTask)
	var fb *authz.Forbidden
	require.ErrorAs(t, err, &fb)
	require.Equal(t, authz.TierTenant, fb.Tier)
	require.Equal(t, "Access denied", fb.Message)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestEnforceResourceAccessPrincipalMembership(t *testing.T) {
	home := uuid.New()
	claimed := uuid.New()
	principal := uuid.New()
	taskID := uuid.New()

	loader := &staticLoader{resources: map[uuid.UUID]Resource{
		taskID: {Kind: KindTask, ID: taskID, TenantID: home, OwnerIDs: []uuid.UUID{principal}},
	}}
	enforcer := NewEnforcer(&directoryMembership{
		tenants: map[uuid.UUID]uuid.UUID{principal: home},
	}, nil)
	enforcer.RegisterLoader(KindTask, loader)
	ctx := context.Background()

	// full permission under a claimed tenant the principal does not belong
	// to stops at the tenant tier, with the generic message
	grant := authz.Grant{
		PrincipalID: principal,
		TenantID:    claimed,
		Permissions: authz.NewPermissionSet(authz.PermTaskReadAll),
	}
	err := enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID)
	var fb *authz.Forbidden
	require.ErrorAs(t, err, &fb)
	require.Equal(t, authz.TierTenant, fb.Tier)
	require.Equal(t, "Access denied", fb.Message)

	// a principal the directory has never seen denies the same way
	grant.PrincipalID = uuid.New()
	err = enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID)
	require.ErrorAs(t, err, &fb)
	require.Equal(t, authz.TierTenant, fb.Tier)

	// under its real tenant the same grant passes
	grant.PrincipalID = principal
	grant.TenantID = home
	require.NoError(t, enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, taskID))
}

func TestEnforceResourceAccessInfrastructureFailures(t *testing.T) {
	tenant := uuid.New()
	enforcer := NewEnforcer(openMembership{}, nil)
	ctx := context.Background()
	grant := grantWith(tenant, authz.PermTaskReadAll)

	// unknown kind is a wiring bug, not a denial
	err := enforcer.EnforceResourceAccess(ctx, grant, "task.read", "widget", uuid.New())
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrForbidden)

	boom := errors.New("connection reset")
	enforcer.RegisterLoader(KindTask, &staticLoader{err: boom})
	err = enforcer.EnforceResourceAccess(ctx, grant, "task.read", KindTask, uuid.New())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, shared.ErrForbidden)

	// a directory outage propagates instead of denying
	flaky := NewEnforcer(&directoryMembership{err: boom}, nil)
	flaky.RegisterLoader(KindTask, &staticLoader{})
	err = flaky.EnforceResourceAccess(ctx, grant, "task.read", KindTask, uuid.New())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, shared.ErrForbidden)

	// an enforcer wired without a membership source is a startup bug
	bare := NewEnforcer(nil, nil)
	bare.RegisterLoader(KindTask, &staticLoader{})
	err = bare.EnforceResourceAccess(ctx, grant, "task.read", KindTask, uuid.New())
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrForbidden)
}

func TestCheckOwnershipMultipleOwners(t *testing.T) {
	tenant := uuid.New()
	creator := uuid.New()
	assignee := uuid.New()
	resource := Resource{Kind: KindTask, TenantID: tenant, OwnerIDs: []uuid.UUID{creator, assignee}}

	grant := grantWith(tenant)
	grant.PrincipalID = assignee
	require.NoError(t, CheckOwnership(grant, resource))

	grant.PrincipalID = uuid.New()
	require.ErrorIs(t, CheckOwnership(grant, resource), shared.ErrForbidden)
}

func TestCheckOwnershipNormalizesKindInMessage(t *testing.T) {
	tenant := uuid.New()
	grant := grantWith(tenant)

	var fb *authz.Forbidden
	err := CheckOwnership(grant, Resource{Kind: " Task ", TenantID: tenant})
	require.ErrorAs(t, err, &fb)
	require.Equal(t, "You can only access your own task records", fb.Message)

	err = CheckOwnership(grant, Resource{Kind: "", TenantID: tenant})
	require.ErrorAs(t, err, &fb)
	require.Equal(t, "You can only access your own resource records", fb.Message)
}
