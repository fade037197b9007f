package rbac

// Client account permissions.
const (
	PermClientCreate         Permission = "client:create"
	PermClientGetAll         Permission = "client:getAll"
	PermClientGetByID        Permission = "client:getById"
	PermClientUpdate         Permission = "client:update"
	PermClientManageContacts Permission = "client:manageContacts"
	PermClientArchive        Permission = "client:archive"
	PermClientDelete         Permission = "client:delete"
)

// ClientScopes lists all permissions related to client accounts.
func ClientScopes() []Permission {
	return []Permission{
		PermClientCreate,
		PermClientGetAll,
		PermClientGetByID,
		PermClientUpdate,
		PermClientManageContacts,
		PermClientArchive,
		PermClientDelete,
	}
}
