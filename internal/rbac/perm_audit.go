package rbac

// Audit engagement permissions.
const (
	PermAuditCreate        Permission = "audit:create"
	PermAuditGetAll        Permission = "audit:getAll"
	PermAuditGetByID       Permission = "audit:getById"
	PermAuditGetByClientID Permission = "audit:getByClientId"
	PermAuditUpdate        Permission = "audit:update"
	PermAuditUpdateStage   Permission = "audit:updateStage"
	PermAuditDelete        Permission = "audit:delete"
)

// AuditScopes lists all permissions related to audits.
func AuditScopes() []Permission {
	return []Permission{
		PermAuditCreate,
		PermAuditGetAll,
		PermAuditGetByID,
		PermAuditGetByClientID,
		PermAuditUpdate,
		PermAuditUpdateStage,
		PermAuditDelete,
	}
}
