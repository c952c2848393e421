// Package catalog owns the permission universe and the role definitions.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Permission is an atomic named capability. The dot-namespaced name is the
// identity; category and display name are descriptive only.
type Permission struct {
	Name        string
	Category    string
	DisplayName string
}

// Role bundles permissions. System roles are global; custom roles belong to
// a tenant.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	IsSystem    bool
	TenantID    *uuid.UUID
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
