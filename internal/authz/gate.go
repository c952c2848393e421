package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/aurora-ops/aurora-ops/internal/observability"
)

// Gate is the public authorization entry point. It resolves the effective
// permission set through the cache and applies the requested boolean rule.
// The Gate is safe for concurrent use; the cache is the only shared mutable
// state and synchronizes internally.
type Gate struct {
	resolver *Resolver
	cache    PermissionCache
	rules    *RuleRegistry
	logger   *slog.Logger
	metrics  *observability.Metrics
	ttl      time.Duration
	flight   singleflight.Group
}

// GateConfig collects the optional collaborators of a Gate.
type GateConfig struct {
	Cache   PermissionCache
	Rules   *RuleRegistry
	Logger  *slog.Logger
	Metrics *observability.Metrics
	TTL     time.Duration
}

// NewGate constructs a Gate. Cache and rules may be nil; the gate then
// resolves on every call and skips contextual rules.
func NewGate(resolver *Resolver, cfg GateConfig) *Gate {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		resolver: resolver,
		cache:    cfg.Cache,
		rules:    cfg.Rules,
		logger:   logger,
		metrics:  cfg.Metrics,
		ttl:      ttl,
	}
}

// Resolve returns the effective permission set for (principal, tenant),
// consulting the cache first. Concurrent misses for the same key share one
// resolver call.
func (g *Gate) Resolve(ctx context.Context, principalID, tenantID uuid.UUID) (Resolution, error) {
	if g.cache != nil {
		res, hit, err := g.cache.Get(ctx, principalID, tenantID)
		if err != nil {
			return Resolution{}, err
		}
		if hit {
			g.metrics.CacheLookup("hit")
			return res, nil
		}
		g.metrics.CacheLookup("miss")
	}

	key := tenantID.String() + ":" + principalID.String()
	value, err, _ := g.flight.Do(key, func() (any, error) {
		res, err := g.resolver.Resolve(ctx, principalID, tenantID)
		if err != nil {
			return Resolution{}, err
		}
		if g.cache != nil {
			if err := g.cache.Put(ctx, principalID, tenantID, res, g.ttl); err != nil {
				g.logger.Warn("permission cache put", slog.Any("error", err))
			}
		}
		return res, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return value.(Resolution), nil
}

// Authorize requires a single permission.
func (g *Gate) Authorize(ctx context.Context, principalID, tenantID uuid.UUID, required string) (Grant, error) {
	required = NormalizePermission(required)
	res, err := g.Resolve(ctx, principalID, tenantID)
	if err != nil {
		g.metrics.Decision("authorize", "error")
		return Grant{}, err
	}
	if !res.Permissions.Has(required) {
		g.metrics.Decision("authorize", "deny")
		return Grant{}, forbiddenRequired(required)
	}
	g.metrics.Decision("authorize", "allow")
	return g.grant(principalID, tenantID, res), nil
}

// AuthorizeAny requires at least one of the listed permissions. An empty
// requirement list denies; a vacuous "any" grant would be a footgun on
// mistyped call sites.
func (g *Gate) AuthorizeAny(ctx context.Context, principalID, tenantID uuid.UUID, required []string) (Grant, error) {
	normalized := NormalizePermissions(required)
	if len(normalized) == 0 {
		g.metrics.Decision("authorize_any", "deny")
		return Grant{}, forbiddenRequiredAny(normalized)
	}
	res, err := g.Resolve(ctx, principalID, tenantID)
	if err != nil {
		g.metrics.Decision("authorize_any", "error")
		return Grant{}, err
	}
	if !res.Permissions.HasAny(normalized) {
		g.metrics.Decision("authorize_any", "deny")
		return Grant{}, forbiddenRequiredAny(normalized)
	}
	g.metrics.Decision("authorize_any", "allow")
	return g.grant(principalID, tenantID, res), nil
}

// AuthorizeAll requires every listed permission. An empty requirement list
// allows by vacuous truth.
func (g *Gate) AuthorizeAll(ctx context.Context, principalID, tenantID uuid.UUID, required []string) (Grant, error) {
	normalized := NormalizePermissions(required)
	res, err := g.Resolve(ctx, principalID, tenantID)
	if err != nil {
		g.metrics.Decision("authorize_all", "error")
		return Grant{}, err
	}
	if !res.Permissions.HasAll(normalized) {
		g.metrics.Decision("authorize_all", "deny")
		return Grant{}, forbiddenRequiredAll(normalized)
	}
	g.metrics.Decision("authorize_all", "allow")
	return g.grant(principalID, tenantID, res), nil
}

// AuthorizeContextual performs the plain permission check and then applies
// every contextual rule registered for that permission. Permissions without
// rules behave exactly like Authorize.
func (g *Gate) AuthorizeContextual(ctx context.Context, principalID, tenantID uuid.UUID, required string, rc RuleContext) (Grant, error) {
	grant, err := g.Authorize(ctx, principalID, tenantID, required)
	if err != nil {
		return Grant{}, err
	}
	for _, rule := range g.rules.RulesFor(required) {
		if err := rule.Check(ctx, grant, rc); err != nil {
			if fb, ok := err.(*Forbidden); ok {
				g.metrics.Decision("authorize_contextual", "deny")
				g.logger.Info("contextual rule denied",
					slog.String("permission", required),
					slog.String("rule", rule.Name),
					slog.String("principal", principalID.String()))
				return Grant{}, fb
			}
			g.metrics.Decision("authorize_contextual", "error")
			return Grant{}, fmt.Errorf("authz: rule %s: %w", rule.Name, err)
		}
	}
	g.metrics.Decision("authorize_contextual", "allow")
	return grant, nil
}

func (g *Gate) grant(principalID, tenantID uuid.UUID, res Resolution) Grant {
	return Grant{
		PrincipalID: principalID,
		TenantID:    tenantID,
		Permissions: res.Permissions,
		Roles:       res.Roles,
	}
}
