package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/authz"
)

// Repository provides assignment persistence. The postgres implementation
// lives in repo.sql.go; tests substitute an in-memory fake.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Assignment, error)
	ListForPrincipal(ctx context.Context, principalID, tenantID uuid.UUID) ([]Assignment, error)
	// ActiveGrants returns the role grants of active rows only; expiry
	// filtering is the resolver's job.
	ActiveGrants(ctx context.Context, principalID, tenantID uuid.UUID) ([]authz.RoleGrant, error)
	Create(ctx context.Context, assignment Assignment) (Assignment, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ExpiredActive lists rows still flagged active whose expiry has
	// passed, oldest first, for the background sweep.
	ExpiredActive(ctx context.Context, now time.Time, limit int) ([]Assignment, error)
}
