package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers. Identity must
// already be present in the request context (see app.IdentityMiddleware).
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

type grantContextKey struct{}

// ContextWithGrant stores a resolved grant in context.
func ContextWithGrant(ctx context.Context, grant Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, grant)
}

// GrantFromContext extracts the grant stored by the middleware.
func GrantFromContext(ctx context.Context) (Grant, bool) {
	grant, ok := ctx.Value(grantContextKey{}).(Grant)
	return grant, ok
}

// Require ensures the current principal holds the permission. The resolved
// grant is stored in the request context for downstream handlers.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return m.check("require", func(ctx context.Context, id shared.Identity) (Grant, error) {
		return m.Gate.Authorize(ctx, id.PrincipalID, id.TenantID, permission)
	})
}

// RequireAny ensures the current principal holds at least one permission.
func (m Middleware) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return m.check("require any", func(ctx context.Context, id shared.Identity) (Grant, error) {
		return m.Gate.AuthorizeAny(ctx, id.PrincipalID, id.TenantID, permissions)
	})
}

// RequireAll ensures the current principal holds every permission.
func (m Middleware) RequireAll(permissions ...string) func(http.Handler) http.Handler {
	return m.check("require all", func(ctx context.Context, id shared.Identity) (Grant, error) {
		return m.Gate.AuthorizeAll(ctx, id.PrincipalID, id.TenantID, permissions)
	})
}

func (m Middleware) check(op string, authorize func(context.Context, shared.Identity) (Grant, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			grant, err := authorize(r.Context(), id)
			if err != nil {
				var fb *Forbidden
				if errors.As(err, &fb) {
					http.Error(w, fb.Message, http.StatusForbidden)
					return
				}
				// Couldn't determine is not denied; fail closed with a
				// distinct status.
				if m.Logger != nil {
					m.Logger.Error("authz "+op, slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithGrant(r.Context(), grant)))
		})
	}
}
