package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aurora-ops/aurora-ops/internal/shared"
)

func newTestGate(t *testing.T, assignments *memoryAssignments, roles *memoryRoles, classifications *memoryClassifications) (*Gate, *RedisCache) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client, time.Minute)
	resolver := NewResolver(assignments, roles, classifications)
	gate := NewGate(resolver, GateConfig{Cache: cache, Rules: DefaultRules()})
	return gate, cache
}

func TestAuthorizeSupervisorScenario(t *testing.T) {
	principal := uuid.New()
	tenant := uuid.New()
	supervisorID := uuid.New()
	roles := &memoryRoles{
		byID: map[uuid.UUID]RolePermissions{
			supervisorID: {ID: supervisorID, Name: "supervisor", Permissions: []string{PermTaskReadAll, PermTaskAssign}},
		},
		system: map[string]RolePermissions{},
	}
	assignments := &memoryAssignments{grants: map[string][]RoleGrant{
		assignmentKey(principal, tenant): {{RoleID: supervisorID}},
	}}
	gate, _ := newTestGate(t, assignments, roles, &memoryClassifications{})

	grant, err := gate.Authorize(context.Background(), principal, tenant, PermTaskReadAll)
	require.NoError(t, err)
	require.Equal(t, principal, grant.PrincipalID)
	require.Equal(t, tenant, grant.TenantID)
	require.True(t, grant.Permissions.Has(PermTaskAssign))
	require.Equal(t, []string{"supervisor"}, grant.Roles)

	_, err = gate.Authorize(context.Background(), principal, tenant, PermTaskDelete)
	var fb *Forbidden
	require.ErrorAs(t, err, &fb)
	require.Equal(t, TierPermission, fb.Tier)
	require.Equal(t, "Insufficient permissions. Required: task.delete", fb.Message)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAuthorizeAnyEmptyListDenies(t *testing.T) {
	gate, _ := newTestGate(t, &memoryAssignments{}, &memoryRoles{system: map[string]RolePermissions{}}, &memoryClassifications{})

	_, err := gate.AuthorizeAny(context.Background(), uuid.New(), uuid.New(), nil)
	var fb *Forbidden
	require.ErrorAs(t, err, &fb)
}

func TestAuthorizeAllEmptyListAllows(t *testing.T) {
	principal := uuid.New()
	tenant := uuid.New()
	gate, _ := newTestGate(t,
		&memoryAssignments{},
		&memoryRoles{system: map[string]RolePermissions{}},
		&memoryClassifications{byPrincipal: map[uuid.UUID]string{principal: "unmapped"}},
	)

	grant, err := gate.AuthorizeAll(context.Background(), principal, tenant, nil)
	require.NoError(t, err)
	require.Empty(t, grant.Permissions)
}

func TestAuthorizeAnyEnumeratesCandidatesOnDenial(t *testing.T) {
	principal := uuid.New()
	tenant := uuid.New()
	gate, _ := newTestGate(t,
		&memoryAssignments{},
		&memoryRoles{system: map[string]RolePermissions{}},
		&memoryClassifications{byPrincipal: map[uuid.UUID]string{principal: "unmapped"}},
	)

	_, err := gate.AuthorizeAny(context.Background(), principal, tenant, []string{PermTaskDelete, PermTaskAssign})
	var fb *Forbidden
	require.ErrorAs(t, err, &fb)
	require.Equal(t, "Insufficient permissions. Required one of: task.assign, task.delete", fb.Message)
}

func TestAuthorizeUsesCacheUntilInvalidated(t *testing.T) {
	principal := uuid.New()
	tenant := uuid.New()
	technicianID := uuid.New()
	roles := &memoryRoles{
		byID: map[uuid.UUID]RolePermissions{
			technicianID: {ID: technicianID, Name: "technician", Permissions: []string{PermTaskReadOwn, PermTaskUpdateOwn}},
		},
		system: map[string]RolePermissions{},
	}
	assignments := &memoryAssignments{grants: map[string][]RoleGrant{
		assignmentKey(principal, tenant): {{RoleID: technicianID}},
	}}
	gate, cache := newTestGate(t, assignments, roles, &memoryClassifications{})
	ctx := context.Background()

	_, err := gate.Authorize(ctx, principal, tenant, PermTaskUpdateOwn)
	require.NoError(t, err)

	// Edit the role: drop task.update.own. The stale cache entry still
	// answers until the role-level invalidation clears it.
	roles.byID[technicianID] = RolePermissions{ID: technicianID, Name: "technician", Permissions: []string{PermTaskReadOwn}}

	_, err = gate.Authorize(ctx, principal, tenant, PermTaskUpdateOwn)
	require.NoError(t, err)

	invalidator := NewInvalidator(cache, nil)
	require.NoError(t, invalidator.OnRolePermissionsChanged(ctx, technicianID))

	_, hit, err := cache.Get(ctx, principal, tenant)
	require.NoError(t, err)
	require.False(t, hit)

	_, err = gate.Authorize(ctx, principal, tenant, PermTaskUpdateOwn)
	var fb *Forbidden
	require.ErrorAs(t, err, &fb)
}

func TestAuthorizeAssignmentChangeInvalidatesSynchronously(t *testing.T) {
	principal := uuid.New()
	tenant := uuid.New()
	supervisorID := uuid.New()
	roles := &memoryRoles{
		byID: map[uuid.UUID]RolePermissions{
			supervisorID: {ID: supervisorID, Name: "supervisor", Permissions: []string{PermTaskAssign}},
		},
		system: map[string]RolePermissions{},
	}
	assignments := &memoryAssignments{grants: map[string][]RoleGrant{
		assignmentKey(principal, tenant): {{RoleID: supervisorID}},
	}}
	gate, cache := newTestGate(t, assignments, roles, &memoryClassifications{byPrincipal: map[uuid.UUID]string{principal: "unmapped"}})
	ctx := context.Background()

	_, err := gate.Authorize(ctx, principal, tenant, PermTaskAssign)
	require.NoError(t, err)

	// Revoke the assignment and run the hook in the same logical operation.
	delete(assignments.grants, assignmentKey(principal, tenant))
	invalidator := NewInvalidator(cache, nil)
	require.NoError(t, invalidator.OnRoleAssignmentChanged(ctx, principal, tenant))

	_, err = gate.Authorize(ctx, principal, tenant, PermTaskAssign)
	var fb *Forbidden
	require.ErrorAs(t, err, &fb)
}

func TestAuthorizeContextualAppliesRuleTable(t *testing.T) {
	tenant := uuid.New()
	supervisor := uuid.New()
	admin := uuid.New()
	supervisorRole := uuid.New()
	adminRole := uuid.New()
	roles := &memoryRoles{
		byID: map[uuid.UUID]RolePermissions{
			supervisorRole: {ID: supervisorRole, Name: "supervisor", Permissions: []string{PermRoleAssign}},
			adminRole:      {ID: adminRole, Name: "admin", Permissions: []string{PermRoleAssign, PermRoleAssignAll}},
		},
		system: map[string]RolePermissions{},
	}
	assignments := &memoryAssignments{grants: map[string][]RoleGrant{
		assignmentKey(supervisor, tenant): {{RoleID: supervisorRole}},
		assignmentKey(admin, tenant):      {{RoleID: adminRole}},
	}}
	gate, _ := newTestGate(t, assignments, roles, &memoryClassifications{})
	ctx := context.Background()

	// Supervisors may hand roles to field staff.
	_, err := gate.AuthorizeContextual(ctx, supervisor, tenant, PermRoleAssign, RuleContext{
		TargetPrincipalID: uuid.New(),
		TargetRoles:       []string{"technician"},
	})
	require.NoError(t, err)

	// ...but not to principals holding elevated roles.
	_, err = gate.AuthorizeContextual(ctx, supervisor, tenant, PermRoleAssign, RuleContext{
		TargetPrincipalID: uuid.New(),
		TargetRoles:       []string{"admin"},
	})
	var fb *Forbidden
	require.ErrorAs(t, err, &fb)
	require.Equal(t, TierContext, fb.Tier)

	// Admin-level grantors skip the constraint.
	_, err = gate.AuthorizeContextual(ctx, admin, tenant, PermRoleAssign, RuleContext{
		TargetPrincipalID: uuid.New(),
		TargetRoles:       []string{"admin"},
	})
	require.NoError(t, err)

	// Permissions without registered rules behave like Authorize.
	_, err = gate.AuthorizeContextual(ctx, admin, tenant, PermRoleAssignAll, RuleContext{})
	require.NoError(t, err)
}

func TestAuthorizeInfrastructureFailureIsNotForbidden(t *testing.T) {
	storeErr := errors.New("dial tcp: connection refused")
	resolver := NewResolver(&memoryAssignments{err: storeErr}, &memoryRoles{}, &memoryClassifications{})
	gate := NewGate(resolver, GateConfig{})

	_, err := gate.Authorize(context.Background(), uuid.New(), uuid.New(), PermTaskReadAll)
	require.ErrorIs(t, err, storeErr)
	require.NotErrorIs(t, err, shared.ErrForbidden)
}
