package users

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides user persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (User, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]User, error)
	Create(ctx context.Context, user User) (User, error)
	SetClassification(ctx context.Context, id uuid.UUID, classification string) error
}
