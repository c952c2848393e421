// Package assignment stores which roles are active for which principal and
// keeps the permission cache consistent with every mutation.
package assignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment links a principal to a role inside a tenant. IsActive is a
// toggle distinct from deletion; an expired assignment is inert but kept
// for the audit trail.
type Assignment struct {
	ID          uuid.UUID
	PrincipalID uuid.UUID
	TenantID    uuid.UUID
	RoleID      uuid.UUID
	IsActive    bool
	ExpiresAt   *time.Time
	AssignedBy  uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
