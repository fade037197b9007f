package rbac

// Document permissions.
const (
	PermDocumentUpload        Permission = "document:upload"
	PermDocumentGetByClientID Permission = "document:getByClientId"
	PermDocumentGetByAuditID  Permission = "document:getByAuditId"
	PermDocumentShare         Permission = "document:share"
	PermDocumentDelete        Permission = "document:delete"
)

// DocumentScopes lists all permissions related to documents.
func DocumentScopes() []Permission {
	return []Permission{
		PermDocumentUpload,
		PermDocumentGetByClientID,
		PermDocumentGetByAuditID,
		PermDocumentShare,
		PermDocumentDelete,
	}
}
