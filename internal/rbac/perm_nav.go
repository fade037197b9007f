package rbac

// Navigation entries.
const (
	PermNavTeamDashboard        Permission = "nav:team:dashboard"
	PermNavTeamClients          Permission = "nav:team:clients"
	PermNavTeamAudits           Permission = "nav:team:audits"
	PermNavTeamTasks            Permission = "nav:team:tasks"
	PermNavTeamDocuments        Permission = "nav:team:documents"
	PermNavTeamPhone            Permission = "nav:team:phone"
	PermNavTeamSettings         Permission = "nav:team:settings"
	PermNavAdminRolePermissions Permission = "nav:admin:rolePermissions"
	PermNavClientPortal         Permission = "nav:client:portal"
	PermNavClientDocuments      Permission = "nav:client:documents"
	PermNavDevImpersonation     Permission = "nav:dev:impersonation"
)

// NavScopes lists all navigation permissions.
func NavScopes() []Permission {
	return []Permission{
		PermNavTeamDashboard,
		PermNavTeamClients,
		PermNavTeamAudits,
		PermNavTeamTasks,
		PermNavTeamDocuments,
		PermNavTeamPhone,
		PermNavTeamSettings,
		PermNavAdminRolePermissions,
		PermNavClientPortal,
		PermNavClientDocuments,
		PermNavDevImpersonation,
	}
}
