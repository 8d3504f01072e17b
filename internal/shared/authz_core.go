package shared

// Dashboard permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermIntegrationView = "integration.view"
	PermIntegrationEdit = "integration.edit"

	PermJobsView = "jobs.view"

	PermAuditView = "audit.view"
)

// CoreScopes lists every permission known to the dashboard.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermIntegrationView,
		PermIntegrationEdit,
		PermJobsView,
		PermAuditView,
	}
}
