package auth

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"super_admin", RoleSuperAdmin},
		{"admin", RoleAdmin},
		{"moderator", RoleModerator},
		{"default", RoleDefault},
		{"", RoleDefault},
		{"owner", RoleDefault},
		{"ADMIN", RoleDefault},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseRole(tt.in); got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role Role
		want []Permission
	}{
		{RoleSuperAdmin, []Permission{
			PermissionRead, PermissionWrite, PermissionDelete, PermissionAdmin,
			PermissionSystem, PermissionSecurity, PermissionUsers, PermissionAnalytics,
		}},
		{RoleAdmin, []Permission{
			PermissionRead, PermissionWrite, PermissionDelete, PermissionAdmin,
			PermissionAnalytics, PermissionUsers,
		}},
		{RoleModerator, []Permission{PermissionRead, PermissionWrite, PermissionAnalytics}},
		{RoleDefault, []Permission{PermissionRead}},
		{Role("unknown"), []Permission{PermissionRead}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got := tt.role.Permissions()
			if len(got) != len(tt.want) {
				t.Fatalf("Permissions() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Permissions()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required Permission
		want     bool
	}{
		{"direct match", []string{"read", "write"}, PermissionWrite, true},
		{"missing", []string{"read"}, PermissionDelete, false},
		{"admin wildcard", []string{"admin"}, PermissionSystem, true},
		{"super_admin wildcard", []string{"super_admin"}, PermissionSecurity, true},
		{"empty set", nil, PermissionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.granted, tt.required); got != tt.want {
				t.Errorf("HasPermission(%v, %q) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestModeratorCannotEscalate(t *testing.T) {
	perms := permissionStrings(RoleModerator.Permissions())
	for _, denied := range []Permission{PermissionDelete, PermissionAdmin, PermissionSystem, PermissionSecurity, PermissionUsers} {
		if HasPermission(perms, denied) {
			t.Errorf("moderator unexpectedly granted %q", denied)
		}
	}
}
