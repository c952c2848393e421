package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-ops/aurora-ops/internal/audit"
	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/platform/httpx"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// Service orchestrates assignment mutations. Every write is followed by a
// synchronous cache eviction for the affected (principal, tenant) pair, and
// the service doubles as the resolver's authz.AssignmentSource.
type Service struct {
	repo        Repository
	roles       authz.RoleSource
	invalidator *authz.Invalidator
	events      audit.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service. Recorder may be nil.
func NewService(repo Repository, roles authz.RoleSource, invalidator *authz.Invalidator, events audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		roles:       roles,
		invalidator: invalidator,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ActiveAssignments implements authz.AssignmentSource.
func (s *Service) ActiveAssignments(ctx context.Context, principalID, tenantID uuid.UUID) ([]authz.RoleGrant, error) {
	return s.repo.ActiveGrants(ctx, principalID, tenantID)
}

// RoleNamesFor returns the names of the roles currently granted to a
// principal, ignoring expired grants. Contextual rules use it to inspect the
// target of an assignment.
func (s *Service) RoleNamesFor(ctx context.Context, principalID, tenantID uuid.UUID) ([]string, error) {
	grants, err := s.repo.ActiveGrants(ctx, principalID, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ids := make([]uuid.UUID, 0, len(grants))
	for _, grant := range grants {
		if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
			continue
		}
		ids = append(ids, grant.RoleID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	roles, err := s.roles.RolesWithPermissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// ListForPrincipal returns every assignment row of a principal, including
// inactive and expired ones.
func (s *Service) ListForPrincipal(ctx context.Context, principalID, tenantID uuid.UUID) ([]Assignment, error) {
	return s.repo.ListForPrincipal(ctx, principalID, tenantID)
}

// AssignInput describes a new role assignment.
type AssignInput struct {
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
	RoleID      uuid.UUID
	ExpiresAt   *time.Time
	ActorID     uuid.UUID
}

// Assign grants a role to a principal. The role must exist, the expiry (when
// set) must lie in the future, and the affected cache entry is evicted before
// the call returns.
func (s *Service) Assign(ctx context.Context, input AssignInput) (Assignment, error) {
	roles, err := s.roles.RolesWithPermissions(ctx, []uuid.UUID{input.RoleID})
	if err != nil {
		return Assignment{}, fmt.Errorf("assignment: look up role: %w", err)
	}
	if len(roles) == 0 {
		return Assignment{}, fmt.Errorf("%w: unknown role", httpx.ErrValidation)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return Assignment{}, fmt.Errorf("%w: expiry must be in the future", httpx.ErrValidation)
	}

	created, err := s.repo.Create(ctx, Assignment{
		PrincipalID: input.PrincipalID,
		TenantID:    input.TenantID,
		RoleID:      input.RoleID,
		ExpiresAt:   input.ExpiresAt,
		AssignedBy:  input.ActorID,
	})
	if err != nil {
		return Assignment{}, err
	}
	if err := s.invalidator.OnRoleAssignmentChanged(ctx, created.PrincipalID, created.TenantID); err != nil {
		return Assignment{}, err
	}
	s.record(ctx, input.ActorID, created, "assignment.create", map[string]string{"role": roles[0].Name})
	return created, nil
}

// Deactivate flips an assignment inactive without deleting the row. Another
// tenant's assignment reads as absent, so its existence is never confirmed.
func (s *Service) Deactivate(ctx context.Context, id, tenantID, actorID uuid.UUID) error {
	assignment, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if assignment.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	if err := s.invalidator.OnRoleAssignmentChanged(ctx, assignment.PrincipalID, assignment.TenantID); err != nil {
		return err
	}
	s.record(ctx, actorID, assignment, "assignment.deactivate", nil)
	return nil
}

// Revoke removes the assignment row entirely. The same tenant scoping as
// Deactivate applies.
func (s *Service) Revoke(ctx context.Context, id, tenantID, actorID uuid.UUID) error {
	assignment, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if assignment.TenantID != tenantID {
		return shared.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.invalidator.OnRoleAssignmentChanged(ctx, assignment.PrincipalID, assignment.TenantID); err != nil {
		return err
	}
	s.record(ctx, actorID, assignment, "assignment.revoke", nil)
	return nil
}

// SweepExpired deactivates active rows whose expiry has passed and evicts
// their cache entries. It returns the number of rows swept. The resolver
// already ignores expired grants; the sweep keeps the store tidy and the
// listing honest.
func (s *Service) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := s.repo.ExpiredActive(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, assignment := range expired {
		if err := s.repo.SetActive(ctx, assignment.ID, false); err != nil {
			return swept, err
		}
		if err := s.invalidator.OnRoleAssignmentChanged(ctx, assignment.PrincipalID, assignment.TenantID); err != nil {
			return swept, err
		}
		s.record(ctx, uuid.Nil, assignment, "assignment.expire", nil)
		swept++
	}
	return swept, nil
}

func (s *Service) record(ctx context.Context, actorID uuid.UUID, assignment Assignment, action string, detail map[string]string) {
	if s.events == nil {
		return
	}
	if detail == nil {
		detail = map[string]string{}
	}
	detail["principal"] = assignment.PrincipalID.String()
	detail["role_id"] = assignment.RoleID.String()
	_ = s.events.Record(ctx, audit.Event{
		ActorID:  actorID,
		TenantID: assignment.TenantID,
		Action:   action,
		Entity:   "assignment",
		EntityID: assignment.ID.String(),
		Detail:   detail,
	})
}
