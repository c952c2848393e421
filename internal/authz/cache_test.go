package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute), srv
}

func sampleResolution() Resolution {
	return Resolution{
		Permissions: NewPermissionSet(PermTaskReadAll, PermTaskAssign),
		Roles:       []string{"supervisor"},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	principal := uuid.New()
	tenant := uuid.New()

	_, hit, err := cache.Get(ctx, principal, tenant)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, cache.Put(ctx, principal, tenant, sampleResolution(), 0))

	res, hit, err := cache.Get(ctx, principal, tenant)
	require.NoError(t, err)
	require.True(t, hit)
	require.ElementsMatch(t, []string{PermTaskReadAll, PermTaskAssign}, res.Permissions.Names())
	require.Equal(t, []string{"supervisor"}, res.Roles)
}

func TestCacheExpiredEntryBehavesLikeMiss(t *testing.T) {
	cache, srv := newTestCache(t)
	ctx := context.Background()
	principal := uuid.New()
	tenant := uuid.New()

	require.NoError(t, cache.Put(ctx, principal, tenant, sampleResolution(), time.Minute))
	srv.FastForward(time.Minute + time.Second)

	_, hit, err := cache.Get(ctx, principal, tenant)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCacheInvalidateRemovesSingleEntry(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	tenant := uuid.New()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, cache.Put(ctx, first, tenant, sampleResolution(), 0))
	require.NoError(t, cache.Put(ctx, second, tenant, sampleResolution(), 0))

	require.NoError(t, cache.Invalidate(ctx, first, tenant))

	_, hit, err := cache.Get(ctx, first, tenant)
	require.NoError(t, err)
	require.False(t, hit)
	_, hit, err = cache.Get(ctx, second, tenant)
	require.NoError(t, err)
	require.True(t, hit)
}

func TestCacheInvalidateTenantScopesToTenant(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()
	principal := uuid.New()

	require.NoError(t, cache.Put(ctx, principal, tenantA, sampleResolution(), 0))
	require.NoError(t, cache.Put(ctx, principal, tenantB, sampleResolution(), 0))

	require.NoError(t, cache.InvalidateTenant(ctx, tenantA))

	_, hit, err := cache.Get(ctx, principal, tenantA)
	require.NoError(t, err)
	require.False(t, hit)
	_, hit, err = cache.Get(ctx, principal, tenantB)
	require.NoError(t, err)
	require.True(t, hit)
}

func TestCacheInvalidateAllClearsEveryEntry(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	keys := make([][2]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		principal, tenant := uuid.New(), uuid.New()
		keys = append(keys, [2]uuid.UUID{principal, tenant})
		require.NoError(t, cache.Put(ctx, principal, tenant, sampleResolution(), 0))
	}

	require.NoError(t, cache.InvalidateAll(ctx))

	for _, key := range keys {
		_, hit, err := cache.Get(ctx, key[0], key[1])
		require.NoError(t, err)
		require.False(t, hit)
	}
}

func TestCacheNilClientDegradesToMiss(t *testing.T) {
	cache := NewRedisCache(nil, 0)
	ctx := context.Background()
	principal := uuid.New()
	tenant := uuid.New()

	require.NoError(t, cache.Put(ctx, principal, tenant, sampleResolution(), 0))
	_, hit, err := cache.Get(ctx, principal, tenant)
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, cache.InvalidateAll(ctx))
}
