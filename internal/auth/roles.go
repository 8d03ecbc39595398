package auth

// Role is the closed set of admin roles. Any value outside the enum normalizes
// to RoleDefault via ParseRole, so permission lookups are total.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleDefault    Role = "default"
)

// Permission represents a capability an admin API operation can require.
type Permission string

const (
	PermissionRead      Permission = "read"
	PermissionWrite     Permission = "write"
	PermissionDelete    Permission = "delete"
	PermissionAdmin     Permission = "admin"
	PermissionSystem    Permission = "system"
	PermissionSecurity  Permission = "security"
	PermissionUsers     Permission = "users"
	PermissionAnalytics Permission = "analytics"
)

// rolePermissions is the complete role-to-capability mapping. Every role the
// enum defines appears here; there is no fallthrough to an implicit default.
var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermissionRead, PermissionWrite, PermissionDelete, PermissionAdmin,
		PermissionSystem, PermissionSecurity, PermissionUsers, PermissionAnalytics,
	},
	RoleAdmin: {
		PermissionRead, PermissionWrite, PermissionDelete, PermissionAdmin,
		PermissionAnalytics, PermissionUsers,
	},
	RoleModerator: {
		PermissionRead, PermissionWrite, PermissionAnalytics,
	},
	RoleDefault: {
		PermissionRead,
	},
}

// ParseRole maps a stored role string onto the enum. Unknown or empty values
// become RoleDefault rather than an error, so a row with a stale role string
// degrades to read-only instead of breaking login.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return Role(s)
	default:
		return RoleDefault
	}
}

// Permissions returns the capability set for the role. The receiver is
// normalized first, so the lookup never misses.
func (r Role) Permissions() []Permission {
	perms := rolePermissions[ParseRole(string(r))]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether a granted permission set satisfies the
// required permission. The admin and super_admin permissions act as
// wildcards and satisfy any requirement.
func HasPermission(granted []string, required Permission) bool {
	for _, p := range granted {
		if p == string(required) || p == string(PermissionAdmin) || p == string(RoleSuperAdmin) {
			return true
		}
	}
	return false
}

func permissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
