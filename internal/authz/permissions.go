package authz

// Platform permission names. Identity is the name: once seeded, a name is
// never renamed, only added or removed.
const (
	PermTaskCreate    = "task.create"
	PermTaskReadAll   = "task.read.all"
	PermTaskReadOwn   = "task.read.own"
	PermTaskUpdateAll = "task.update.all"
	PermTaskUpdateOwn = "task.update.own"
	PermTaskDelete    = "task.delete"
	PermTaskAssign    = "task.assign"

	PermOrderCreate    = "order.create"
	PermOrderReadAll   = "order.read.all"
	PermOrderReadOwn   = "order.read.own"
	PermOrderUpdateAll = "order.update.all"
	PermOrderUpdateOwn = "order.update.own"
	PermOrderDelete    = "order.delete"

	PermAttendanceRecord  = "attendance.record"
	PermAttendanceReadAll = "attendance.read.all"
	PermAttendanceReadOwn = "attendance.read.own"

	PermUserReadAll   = "user.read.all"
	PermUserReadOwn   = "user.read.own"
	PermUserUpdateAll = "user.update.all"
	PermUserUpdateOwn = "user.update.own"

	PermRoleView      = "role.view"
	PermRoleEdit      = "role.edit"
	PermRoleAssign    = "role.assign"
	PermRoleAssignAll = "role.assign.all"

	PermPermissionView = "permission.view"
	PermReportView     = "report.view"
)

const (
	fullSuffix = ".all"
	ownSuffix  = ".own"
)

// FullPermission returns the broad form of a base permission, e.g.
// "task.read" -> "task.read.all".
func FullPermission(base string) string {
	return NormalizePermission(base) + fullSuffix
}

// OwnPermission returns the narrow form of a base permission, e.g.
// "task.read" -> "task.read.own".
func OwnPermission(base string) string {
	return NormalizePermission(base) + ownSuffix
}
