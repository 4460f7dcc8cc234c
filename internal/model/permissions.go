package model

// Permission names gate the admin user-management endpoints. The table is
// built once at init and never mutated afterwards; PermissionsFor hands out
// copies so callers cannot poke at the shared slices.
const (
	PermUsersCreate = "users:create"
	PermUsersRead   = "users:read"
	PermUsersUpdate = "users:update"
	PermUsersDelete = "users:delete"
)

var rolePermissions = map[string][]string{
	RoleSuperAdmin: {
		PermUsersCreate,
		PermUsersRead,
		PermUsersUpdate,
		PermUsersDelete,
	},
	RoleAdmin: {
		PermUsersCreate,
		PermUsersRead,
		PermUsersUpdate,
	},
	RoleUser: {},
}

// PermissionsFor returns the permission list for a role. Unknown roles get
// an empty list rather than an error; the guard will simply deny everything.
func PermissionsFor(role string) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// RoleHasPermission reports whether the role's frozen permission set
// contains the named permission.
func RoleHasPermission(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
