// Package users holds the principal directory: the minimal profile the
// authorization layer needs, most importantly the classification that picks
// the default role.
package users

import (
	"time"

	"github.com/google/uuid"
)

// User is one principal record.
type User struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Email          string
	DisplayName    string
	Classification string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
