package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides catalog persistence. The postgres implementation
// lives in repo.sql.go; tests substitute an in-memory fake.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermission(ctx context.Context, perm Permission) error

	ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	SystemRoleByName(ctx context.Context, name string) (Role, error)
	RolesWithPermissions(ctx context.Context, ids []uuid.UUID) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error

	AttachPermission(ctx context.Context, roleID uuid.UUID, permission string) error
	DetachPermission(ctx context.Context, roleID uuid.UUID, permission string) error
}
