package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
)

// Service exposes directory lookups. It implements authz.ClassificationSource
// for the resolver's default-role fallback.
type Service struct {
	repo        Repository
	invalidator *authz.Invalidator
}

// NewService constructs a Service. Invalidator may be nil in read-only
// contexts.
func NewService(repo Repository, invalidator *authz.Invalidator) *Service {
	return &Service{repo: repo, invalidator: invalidator}
}

// Get fetches a user.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.Get(ctx, id)
}

// ListByTenant returns the tenant's directory.
func (s *Service) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]User, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// Create registers a user. Classification must map to a system role.
func (s *Service) Create(ctx context.Context, user User) (User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Classification = strings.ToLower(strings.TrimSpace(user.Classification))
	if user.Email == "" {
		return User{}, fmt.Errorf("%w: email required", httpx.ErrValidation)
	}
	if _, ok := authz.DefaultRoleFor(user.Classification); !ok {
		return User{}, fmt.Errorf("%w: unknown classification %q", httpx.ErrValidation, user.Classification)
	}
	return s.repo.Create(ctx, user)
}

// SetClassification changes a user's classification and evicts the cached
// resolution: the fallback branch depends on it.
func (s *Service) SetClassification(ctx context.Context, id uuid.UUID, classification string) error {
	classification = strings.ToLower(strings.TrimSpace(classification))
	if _, ok := authz.DefaultRoleFor(classification); !ok {
		return fmt.Errorf("%w: unknown classification %q", httpx.ErrValidation, classification)
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetClassification(ctx, id, classification); err != nil {
		return err
	}
	return s.invalidator.OnRoleAssignmentChanged(ctx, user.ID, user.TenantID)
}

// Classification implements authz.ClassificationSource. Inactive users
// resolve to no classification so the fallback yields the empty set.
func (s *Service) Classification(ctx context.Context, principalID uuid.UUID) (string, error) {
	user, err := s.repo.Get(ctx, principalID)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", nil
	}
	return user.Classification, nil
}

// BelongsToTenant reports whether a principal is a member of a tenant.
func (s *Service) BelongsToTenant(ctx context.Context, principalID, tenantID uuid.UUID) (bool, error) {
	user, err := s.repo.Get(ctx, principalID)
	if err != nil {
		return false, err
	}
	return user.TenantID == tenantID, nil
}
