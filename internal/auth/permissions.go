package auth

// Permission codes checked by route handlers. The catalog mirrors the
// business entities the dashboard manages.
const (
	PermCustomersView      = "customers.view"
	PermCustomersManage    = "customers.manage"
	PermAppointmentsView   = "appointments.view"
	PermAppointmentsManage = "appointments.manage"
	PermRequestsView       = "requests.view"
	PermRequestsManage     = "requests.manage"
	PermUsersManage        = "users.manage"
	PermNotificationsView  = "notifications.view"
	PermSettingsManage     = "settings.manage"
)

// DefaultRolePermissions is the baseline grant set implied by each role,
// used to seed role_permissions and as the fallback when a user has no
// explicit grants. ADMIN is absent on purpose: admins bypass permission
// checks entirely.
var DefaultRolePermissions = map[string][]string{
	RoleManager: {
		PermCustomersView,
		PermCustomersManage,
		PermAppointmentsView,
		PermAppointmentsManage,
		PermRequestsView,
		PermRequestsManage,
		PermNotificationsView,
	},
	RoleEmployee: {
		PermCustomersView,
		PermAppointmentsView,
		PermRequestsView,
		PermNotificationsView,
	},
}
