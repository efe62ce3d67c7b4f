package rbac

// Core platform permissions. Atomic names, no hierarchy: holding
// papers.edit implies nothing about papers.view.
const (
	PermPapersView = "papers.view"
	PermPapersEdit = "papers.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	// PermGrantsEdit guards the grant-mutation endpoints themselves. The
	// resolver is self-referential here: the capability to change grants
	// is itself a grant.
	PermGrantsEdit = "grants.edit"
)

// CoreScopes lists all permissions defined by the platform.
func CoreScopes() []string {
	return []string{
		PermPapersView,
		PermPapersEdit,
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermGrantsEdit,
	}
}
