package rbac

// Role-permission mapping management. PermRolePermissionAssign is the
// bootstrap permission seeded onto Admin at start-up.
const (
	PermRolePermissionGetAll Permission = "rolePermission:getAll"
	PermRolePermissionAssign Permission = "rolePermission:assign"
	PermRolePermissionDelete Permission = "rolePermission:delete"
)

// RolePermissionScopes lists all permissions related to mapping management.
func RolePermissionScopes() []Permission {
	return []Permission{
		PermRolePermissionGetAll,
		PermRolePermissionAssign,
		PermRolePermissionDelete,
	}
}
