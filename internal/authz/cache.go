package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds staleness for edits that bypass the invalidation
// hooks, such as direct data changes in the store.
const DefaultCacheTTL = 10 * time.Minute

const cacheKeyPrefix = "authz:perms:"

// PermissionCache fronts the resolver with TTL-bounded snapshots keyed by
// (principal, tenant). Entries are full snapshots; a changed world requires
// deletion, not mutation.
type PermissionCache interface {
	Get(ctx context.Context, principalID, tenantID uuid.UUID) (Resolution, bool, error)
	Put(ctx context.Context, principalID, tenantID uuid.UUID, res Resolution, ttl time.Duration) error
	Invalidate(ctx context.Context, principalID, tenantID uuid.UUID) error
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
	// InvalidateAll clears every entry. A role's permission edit can affect
	// an unbounded number of principals across tenants, so role-level
	// invalidation trades hit rate for correctness.
	InvalidateAll(ctx context.Context) error
}

type cachePayload struct {
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
}

// RedisCache is the Redis-backed PermissionCache. Expiry rides on Redis key
// TTLs, so an expired entry is indistinguishable from a miss, and single-key
// SET/DEL give atomic publish and last-writer-wins semantics. A nil client
// degrades to a permanent miss.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache constructs the cache helper. A non-positive ttl falls back
// to DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// TTL exposes the configured entry lifetime.
func (c *RedisCache) TTL() time.Duration {
	if c == nil {
		return DefaultCacheTTL
	}
	return c.ttl
}

// Get loads the cached resolution, reporting a miss for absent or expired
// entries.
func (c *RedisCache) Get(ctx context.Context, principalID, tenantID uuid.UUID) (Resolution, bool, error) {
	if c == nil || c.client == nil {
		return Resolution{}, false, nil
	}
	raw, err := c.client.Get(ctx, cacheKey(principalID, tenantID)).Bytes()
	if err == redis.Nil {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, false, fmt.Errorf("authz: cache get: %w", err)
	}
	var payload cachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Resolution{}, false, fmt.Errorf("authz: cache decode: %w", err)
	}
	return Resolution{
		Permissions: NewPermissionSet(payload.Permissions...),
		Roles:       payload.Roles,
	}, true, nil
}

// Put stores a full snapshot. A non-positive ttl uses the cache default.
func (c *RedisCache) Put(ctx context.Context, principalID, tenantID uuid.UUID, res Resolution, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(cachePayload{
		Permissions: res.Permissions.Names(),
		Roles:       res.Roles,
	})
	if err != nil {
		return fmt.Errorf("authz: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(principalID, tenantID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("authz: cache put: %w", err)
	}
	return nil
}

// Invalidate removes a single (principal, tenant) entry.
func (c *RedisCache) Invalidate(ctx context.Context, principalID, tenantID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, cacheKey(principalID, tenantID)).Err(); err != nil {
		return fmt.Errorf("authz: cache invalidate: %w", err)
	}
	return nil
}

// InvalidateTenant removes every entry belonging to the tenant.
func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	return c.deleteByPattern(ctx, cacheKeyPrefix+tenantID.String()+":*")
}

// InvalidateAll removes every permission cache entry.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.deleteByPattern(ctx, cacheKeyPrefix+"*")
}

func (c *RedisCache) deleteByPattern(ctx context.Context, pattern string) error {
	if c == nil || c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("authz: cache invalidate %s: %w", pattern, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("authz: cache scan %s: %w", pattern, err)
	}
	return nil
}

// cacheKey leads with the tenant so tenant-wide invalidation can match on a
// prefix.
func cacheKey(principalID, tenantID uuid.UUID) string {
	return cacheKeyPrefix + tenantID.String() + ":" + principalID.String()
}
