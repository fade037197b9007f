package rbac

// Task permissions.
const (
	PermTaskCreate       Permission = "task:create"
	PermTaskGetAll       Permission = "task:getAll"
	PermTaskGetByID      Permission = "task:getById"
	PermTaskGetByAuditID Permission = "task:getByAuditId"
	PermTaskUpdate       Permission = "task:update"
	PermTaskAssign       Permission = "task:assign"
	PermTaskComplete     Permission = "task:complete"
	PermTaskDelete       Permission = "task:delete"
)

// TaskScopes lists all permissions related to tasks.
func TaskScopes() []Permission {
	return []Permission{
		PermTaskCreate,
		PermTaskGetAll,
		PermTaskGetByID,
		PermTaskGetByAuditID,
		PermTaskUpdate,
		PermTaskAssign,
		PermTaskComplete,
		PermTaskDelete,
	}
}
