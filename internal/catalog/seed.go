package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/shared"
)

// seedPermissions is the permission universe, grouped by category.
var seedPermissions = map[string][]string{
	"task": {
		authz.PermTaskCreate,
		authz.PermTaskReadAll,
		authz.PermTaskReadOwn,
		authz.PermTaskUpdateAll,
		authz.PermTaskUpdateOwn,
		authz.PermTaskDelete,
		authz.PermTaskAssign,
	},
	"order": {
		authz.PermOrderCreate,
		authz.PermOrderReadAll,
		authz.PermOrderReadOwn,
		authz.PermOrderUpdateAll,
		authz.PermOrderUpdateOwn,
		authz.PermOrderDelete,
	},
	"attendance": {
		authz.PermAttendanceRecord,
		authz.PermAttendanceReadAll,
		authz.PermAttendanceReadOwn,
	},
	"user": {
		authz.PermUserReadAll,
		authz.PermUserReadOwn,
		authz.PermUserUpdateAll,
		authz.PermUserUpdateOwn,
	},
	"platform": {
		authz.PermRoleView,
		authz.PermRoleEdit,
		authz.PermRoleAssign,
		authz.PermRoleAssignAll,
		authz.PermPermissionView,
		authz.PermReportView,
	},
}

// seedRoles maps each system role to its permission set. Reviewed together
// with the classification mapping in the authz package.
var seedRoles = map[string][]string{
	"admin": flattenSeedPermissions(),
	"manager": {
		authz.PermTaskCreate, authz.PermTaskReadAll, authz.PermTaskUpdateAll,
		authz.PermTaskDelete, authz.PermTaskAssign,
		authz.PermOrderCreate, authz.PermOrderReadAll, authz.PermOrderUpdateAll, authz.PermOrderDelete,
		authz.PermAttendanceReadAll,
		authz.PermUserReadAll, authz.PermUserUpdateAll,
		authz.PermRoleView, authz.PermRoleAssign, authz.PermRoleAssignAll,
		authz.PermReportView,
	},
	"supervisor": {
		authz.PermTaskCreate, authz.PermTaskReadAll, authz.PermTaskUpdateAll, authz.PermTaskAssign,
		authz.PermOrderReadAll,
		authz.PermAttendanceReadAll,
		authz.PermUserReadAll,
		authz.PermRoleView, authz.PermRoleAssign,
	},
	"technician": {
		authz.PermTaskReadOwn, authz.PermTaskUpdateOwn,
		authz.PermOrderReadOwn,
		authz.PermAttendanceRecord, authz.PermAttendanceReadOwn,
		authz.PermUserReadOwn, authz.PermUserUpdateOwn,
	},
	"employee": {
		authz.PermTaskReadOwn,
		authz.PermAttendanceRecord, authz.PermAttendanceReadOwn,
		authz.PermUserReadOwn,
	},
}

// Seed upserts the permission universe and the system roles. It is
// idempotent and safe to run on every deploy; manual permission grants on
// system roles are preserved.
func Seed(ctx context.Context, repo Repository) error {
	titler := cases.Title(language.English)
	for category, names := range seedPermissions {
		for _, name := range names {
			perm := Permission{
				Name:        name,
				Category:    category,
				DisplayName: titler.String(strings.ReplaceAll(name, ".", " ")),
			}
			if err := repo.UpsertPermission(ctx, perm); err != nil {
				return err
			}
		}
	}

	for _, roleName := range authz.DefaultRoleNames() {
		if _, ok := seedRoles[roleName]; !ok {
			return fmt.Errorf("catalog: classification mapping targets unseeded role %q", roleName)
		}
	}

	for name, permissions := range seedRoles {
		role, err := ensureSystemRole(ctx, repo, name)
		if err != nil {
			return err
		}
		for _, permission := range permissions {
			if err := repo.AttachPermission(ctx, role.ID, permission); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureSystemRole(ctx context.Context, repo Repository, name string) (Role, error) {
	role, err := repo.SystemRoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Role{}, err
	}
	return repo.CreateRole(ctx, Role{
		Name:        name,
		Description: "System role: " + name,
		IsSystem:    true,
	})
}

func flattenSeedPermissions() []string {
	var all []string
	for _, names := range seedPermissions {
		all = append(all, names...)
	}
	return all
}
