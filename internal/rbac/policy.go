package rbac

// PolicySource resolves the permissions a role holds.
type PolicySource interface {
	PermissionsFor(role string) PermissionSet
}

// StaticPolicy serves the in-code role policy table. It backs the capability
// context and UI guards; server enforcement reads role_permissions instead.
type StaticPolicy struct{}

// PermissionsFor implements PolicySource.
func (StaticPolicy) PermissionsFor(role string) PermissionSet {
	return PermissionsFor(role)
}

var rolePolicy = map[Role]PermissionSet{
	RoleDeveloper: NewPermissionSet(AllPermissions()...),
	RoleAdmin: NewPermissionSet(concatScopes(
		AuditScopes(),
		TaskScopes(),
		DocumentScopes(),
		PhoneScopes(),
		ClientScopes(),
		RolePermissionScopes(),
		[]Permission{
			PermNavTeamDashboard,
			PermNavTeamClients,
			PermNavTeamAudits,
			PermNavTeamTasks,
			PermNavTeamDocuments,
			PermNavTeamPhone,
			PermNavTeamSettings,
			PermNavAdminRolePermissions,
		},
	)...),
	RoleManager: NewPermissionSet(
		PermAuditCreate,
		PermAuditGetAll,
		PermAuditGetByID,
		PermAuditGetByClientID,
		PermAuditUpdate,
		PermAuditUpdateStage,

		PermTaskCreate,
		PermTaskGetAll,
		PermTaskGetByID,
		PermTaskGetByAuditID,
		PermTaskUpdate,
		PermTaskAssign,
		PermTaskComplete,
		PermTaskDelete,

		PermDocumentUpload,
		PermDocumentGetByClientID,
		PermDocumentGetByAuditID,
		PermDocumentShare,

		PermPhoneMakeCall,
		PermPhoneGetCallHistory,
		PermPhoneSendSMS,

		PermClientCreate,
		PermClientGetAll,
		PermClientGetByID,
		PermClientUpdate,
		PermClientManageContacts,

		PermNavTeamDashboard,
		PermNavTeamClients,
		PermNavTeamAudits,
		PermNavTeamTasks,
		PermNavTeamDocuments,
		PermNavTeamPhone,
	),
	RoleAuditor: NewPermissionSet(
		PermAuditGetAll,
		PermAuditGetByID,
		PermAuditGetByClientID,
		PermAuditUpdateStage,

		PermTaskGetAll,
		PermTaskGetByID,
		PermTaskGetByAuditID,
		PermTaskUpdate,
		PermTaskComplete,

		PermDocumentUpload,
		PermDocumentGetByClientID,
		PermDocumentGetByAuditID,

		PermPhoneMakeCall,
		PermPhoneGetCallHistory,

		PermClientGetAll,
		PermClientGetByID,

		PermNavTeamDashboard,
		PermNavTeamClients,
		PermNavTeamAudits,
		PermNavTeamTasks,
		PermNavTeamDocuments,
	),
	RoleStaff: NewPermissionSet(
		PermAuditGetAll,
		PermAuditGetByID,

		PermTaskGetAll,
		PermTaskGetByID,
		PermTaskGetByAuditID,
		PermTaskUpdate,
		PermTaskComplete,

		PermDocumentUpload,
		PermDocumentGetByClientID,
		PermDocumentGetByAuditID,

		PermPhoneMakeCall,

		PermClientGetAll,
		PermClientGetByID,

		PermNavTeamDashboard,
		PermNavTeamTasks,
		PermNavTeamDocuments,
	),
	RoleClient: NewPermissionSet(
		PermAuditGetByClientID,
		PermDocumentUpload,
		PermDocumentGetByClientID,
		PermNavClientPortal,
		PermNavClientDocuments,
	),
}

// PermissionsFor returns a copy of the static permission set for role.
// Unrecognised roles get an empty set.
func PermissionsFor(role string) PermissionSet {
	r, ok := ParseRole(role)
	if !ok {
		return PermissionSet{}
	}
	return PermissionSet{}.Union(rolePolicy[r])
}
