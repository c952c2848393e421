package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity describes the authenticated actor for the current request.
// Authentication happens upstream; this core only consumes the result.
type Identity struct {
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
