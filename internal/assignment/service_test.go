package assignment

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

type memoryAssignRepo struct {
	rows map[uuid.UUID]*Assignment
}

func newMemoryAssignRepo() *memoryAssignRepo {
	return &memoryAssignRepo{rows: make(map[uuid.UUID]*Assignment)}
}

func (r *memoryAssignRepo) Get(_ context.Context, id uuid.UUID) (Assignment, error) {
	row, ok := r.rows[id]
	if !ok {
		return Assignment{}, shared.ErrNotFound
	}
	return *row, nil
}

func (r *memoryAssignRepo) ListForPrincipal(_ context.Context, principalID, tenantID uuid.UUID) ([]Assignment, error) {
	var out []Assignment
	for _, row := range r.rows {
		if row.PrincipalID == principalID && row.TenantID == tenantID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryAssignRepo) ActiveGrants(_ context.Context, principalID, tenantID uuid.UUID) ([]authz.RoleGrant, error) {
	var grants []authz.RoleGrant
	for _, row := range r.rows {
		if row.PrincipalID == principalID && row.TenantID == tenantID && row.IsActive {
			grants = append(grants, authz.RoleGrant{RoleID: row.RoleID, ExpiresAt: row.ExpiresAt})
		}
	}
	return grants, nil
}

func (r *memoryAssignRepo) Create(_ context.Context, assignment Assignment) (Assignment, error) {
	assignment.ID = uuid.New()
	assignment.IsActive = true
	assignment.CreatedAt = time.Now()
	assignment.UpdatedAt = assignment.CreatedAt
	r.rows[assignment.ID] = &assignment
	return assignment, nil
}

func (r *memoryAssignRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	row, ok := r.rows[id]
	if !ok {
		return shared.ErrNotFound
	}
	row.IsActive = active
	row.UpdatedAt = time.Now()
	return nil
}

func (r *memoryAssignRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.rows[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryAssignRepo) ExpiredActive(_ context.Context, now time.Time, limit int) ([]Assignment, error) {
	var out []Assignment
	for _, row := range r.rows {
		if row.IsActive && row.ExpiresAt != nil && !row.ExpiresAt.After(now) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRoleSource struct {
	roles map[uuid.UUID]authz.RolePermissions
}

func (f *fakeRoleSource) RolesWithPermissions(_ context.Context, ids []uuid.UUID) ([]authz.RolePermissions, error) {
	var out []authz.RolePermissions
	for _, id := range ids {
		if role, ok := f.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fakeRoleSource) SystemRoleByName(_ context.Context, name string) (authz.RolePermissions, error) {
	for _, role := range f.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return authz.RolePermissions{}, shared.ErrNotFound
}

type countingCache struct {
	invalidated []string
}

func (c *countingCache) Get(context.Context, uuid.UUID, uuid.UUID) (authz.Resolution, bool, error) {
	return authz.Resolution{}, false, nil
}

func (c *countingCache) Put(context.Context, uuid.UUID, uuid.UUID, authz.Resolution, time.Duration) error {
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, principalID, tenantID uuid.UUID) error {
	c.invalidated = append(c.invalidated, tenantID.String()+":"+principalID.String())
	return nil
}

func (c *countingCache) InvalidateTenant(context.Context, uuid.UUID) error { return nil }
func (c *countingCache) InvalidateAll(context.Context) error              { return nil }

func newAssignmentFixture(t *testing.T) (*Service, *memoryAssignRepo, *fakeRoleSource, *countingCache) {
	t.Helper()
	repo := newMemoryAssignRepo()
	roles := &fakeRoleSource{roles: make(map[uuid.UUID]authz.RolePermissions)}
	cache := &countingCache{}
	svc := NewService(repo, roles, authz.NewInvalidator(cache, nil), nil, nil)
	return svc, repo, roles, cache
}

func addRole(roles *fakeRoleSource, name string, permissions ...string) uuid.UUID {
	id := uuid.New()
	roles.roles[id] = authz.RolePermissions{ID: id, Name: name, Permissions: permissions}
	return id
}

func TestAssignCreatesActiveRowAndEvictsCache(t *testing.T) {
	svc, repo, roles, cache := newAssignmentFixture(t)
	ctx := context.Background()
	roleID := addRole(roles, "technician", authz.PermTaskReadOwn)
	principal, tenant, actor := uuid.New(), uuid.New(), uuid.New()

	created, err := svc.Assign(ctx, AssignInput{
		PrincipalID: principal,
		TenantID:    tenant,
		RoleID:      roleID,
		ActorID:     actor,
	})
	require.NoError(t, err)
	require.True(t, created.IsActive)
	require.Equal(t, actor, created.AssignedBy)
	require.Equal(t, []string{tenant.String() + ":" + principal.String()}, cache.invalidated)

	grants, err := repo.ActiveGrants(ctx, principal, tenant)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, roleID, grants[0].RoleID)
}

func TestAssignRejectsUnknownRoleAndPastExpiry(t *testing.T) {
	svc, _, roles, cache := newAssignmentFixture(t)
	ctx := context.Background()

	_, err := svc.Assign(ctx, AssignInput{
		PrincipalID: uuid.New(),
		TenantID:    uuid.New(),
		RoleID:      uuid.New(),
	})
	require.ErrorIs(t, err, httpx.ErrValidation)

	roleID := addRole(roles, "technician")
	past := time.Now().Add(-time.Hour)
	_, err = svc.Assign(ctx, AssignInput{
		PrincipalID: uuid.New(),
		TenantID:    uuid.New(),
		RoleID:      roleID,
		ExpiresAt:   &past,
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Empty(t, cache.invalidated)
}

func TestDeactivateAndRevokeEvictCache(t *testing.T) {
	svc, repo, roles, cache := newAssignmentFixture(t)
	ctx := context.Background()
	roleID := addRole(roles, "employee")
	principal, tenant := uuid.New(), uuid.New()

	first, err := svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: roleID, ActorID: uuid.New()})
	require.NoError(t, err)
	second, err := svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: roleID, ActorID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, first.ID, tenant, uuid.New()))
	row, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, row.IsActive)

	require.NoError(t, svc.Revoke(ctx, second.ID, tenant, uuid.New()))
	_, err = repo.Get(ctx, second.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// two assigns + one deactivate + one revoke
	require.Len(t, cache.invalidated, 4)
}

func TestDeactivateAndRevokeAreTenantScoped(t *testing.T) {
	svc, repo, roles, cache := newAssignmentFixture(t)
	ctx := context.Background()
	roleID := addRole(roles, "employee")
	principal, tenant, intruder := uuid.New(), uuid.New(), uuid.New()

	created, err := svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: roleID, ActorID: uuid.New()})
	require.NoError(t, err)
	evictions := len(cache.invalidated)

	// another tenant must not learn the assignment exists, let alone touch it
	require.ErrorIs(t, svc.Deactivate(ctx, created.ID, intruder, uuid.New()), shared.ErrNotFound)
	require.ErrorIs(t, svc.Revoke(ctx, created.ID, intruder, uuid.New()), shared.ErrNotFound)

	row, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, row.IsActive)
	require.Len(t, cache.invalidated, evictions)

	// the owning tenant still can
	require.NoError(t, svc.Revoke(ctx, created.ID, tenant, uuid.New()))
	_, err = repo.Get(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSweepExpiredDeactivatesOnlyExpiredRows(t *testing.T) {
	svc, repo, roles, _ := newAssignmentFixture(t)
	ctx := context.Background()
	roleID := addRole(roles, "technician")
	principal, tenant := uuid.New(), uuid.New()
	now := time.Now()

	expired := now.Add(time.Minute)
	open, err := svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: roleID, ActorID: uuid.New()})
	require.NoError(t, err)
	doomed, err := svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: roleID, ExpiresAt: &expired, ActorID: uuid.New()})
	require.NoError(t, err)

	swept, err := svc.SweepExpired(ctx, now.Add(time.Hour), 100)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	row, err := repo.Get(ctx, doomed.ID)
	require.NoError(t, err)
	require.False(t, row.IsActive)
	row, err = repo.Get(ctx, open.ID)
	require.NoError(t, err)
	require.True(t, row.IsActive)

	// idempotent: second sweep finds nothing
	swept, err = svc.SweepExpired(ctx, now.Add(time.Hour), 100)
	require.NoError(t, err)
	require.Zero(t, swept)
}

func TestRoleNamesForIgnoresExpiredGrants(t *testing.T) {
	svc, _, roles, _ := newAssignmentFixture(t)
	ctx := context.Background()
	techID := addRole(roles, "technician")
	superID := addRole(roles, "supervisor")
	principal, tenant := uuid.New(), uuid.New()

	soon := time.Now().Add(time.Minute)
	_, err := svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: techID, ActorID: uuid.New()})
	require.NoError(t, err)
	_, err = svc.Assign(ctx, AssignInput{PrincipalID: principal, TenantID: tenant, RoleID: superID, ExpiresAt: &soon, ActorID: uuid.New()})
	require.NoError(t, err)

	names, err := svc.RoleNamesFor(ctx, principal, tenant)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"technician", "supervisor"}, names)

	svc.WithClock(func() time.Time { return time.Now().Add(time.Hour) })
	names, err = svc.RoleNamesFor(ctx, principal, tenant)
	require.NoError(t, err)
	require.Equal(t, []string{"technician"}, names)
}
