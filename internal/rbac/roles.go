package rbac

import "strings"

// Role is one of a closed, totally ordered set. Unknown roles resolve to an
// empty permission set: checks fail closed, not open.
type Role string

const (
	RoleStudent          Role = "student"
	RoleTeacher          Role = "teacher"
	RoleCompetitionAdmin Role = "competition_admin"
	RoleSuperAdmin       Role = "super_admin"
)

// AllRoles lists the valid roles in ascending privilege order.
func AllRoles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleCompetitionAdmin, RoleSuperAdmin}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleCompetitionAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Rank returns the privilege order of the role; higher means more
// privileged. Unknown roles rank below student.
func (r Role) Rank() int {
	switch r {
	case RoleStudent:
		return 1
	case RoleTeacher:
		return 2
	case RoleCompetitionAdmin:
		return 3
	case RoleSuperAdmin:
		return 4
	}
	return 0
}

// IsAdmin reports whether the role bypasses resource-ownership checks.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleCompetitionAdmin
}

// rolePermissions maps each role to its explicit permission set. super_admin
// is derived from the full catalog, never hand-duplicated; the other roles
// enumerate least-privilege subsets.
var rolePermissions = map[Role]map[string]struct{}{
	RoleSuperAdmin: toSet(AllPermissions()),

	// Competition admins manage accounts (activate, profile edits) but
	// cannot create, delete, or change the role of a user.
	RoleCompetitionAdmin: toSet([]string{
		PermUserRead,
		PermUserUpdate,
		PermUserList,
		PermActivityRead,
		PermActivityList,
		PermRoleRead,

		PermCompetitionCreate,
		PermCompetitionRead,
		PermCompetitionUpdate,
		PermCompetitionDelete,
		PermCompetitionList,
		PermCompetitionManage,

		PermCompetitionReview,
		PermCompetitionApprove,
		PermCompetitionReject,

		PermTeamCreate,
		PermTeamRead,
		PermTeamUpdate,
		PermTeamDelete,
		PermTeamList,
		PermTeamManage,

		PermMemberAdd,
		PermMemberRemove,
		PermMemberApprove,
	}),

	// Teachers create and update competitions and teams but never delete
	// them, and manage members only within their own teams.
	RoleTeacher: toSet([]string{
		PermUserRead,
		PermUserList,
		PermActivityRead,
		PermActivityList,
		PermRoleRead,

		PermCompetitionRead,
		PermCompetitionList,
		PermCompetitionCreate,
		PermCompetitionUpdate,

		PermTeamRead,
		PermTeamList,
		PermTeamCreate,
		PermTeamUpdate,

		PermMemberAdd,
		PermMemberRemove,
	}),

	// Students are read/list only plus self-facing actions. List results are
	// scoped to the student's own records by the service layer.
	RoleStudent: toSet([]string{
		PermUserRead,
		PermUserList,
		PermActivityRead,
		PermActivityList,

		PermCompetitionRead,
		PermCompetitionList,

		PermTeamRead,
		PermTeamList,
	}),
}

func toSet(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// PermissionsOf returns a copy of the permission set held by role. Unknown
// roles yield an empty set.
func PermissionsOf(role Role) map[string]struct{} {
	src, ok := rolePermissions[role]
	if !ok {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}

// HasPermission reports whether role holds perm.
func HasPermission(role Role, perm string) bool {
	_, ok := rolePermissions[role][normalize(perm)]
	return ok
}

// HasAny reports whether role holds at least one of perms. An empty
// requirement is trivially satisfied.
func HasAny(role Role, perms []string) bool {
	if len(perms) == 0 {
		return true
	}
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether role holds every one of perms.
func HasAll(role Role, perms []string) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

func normalize(perm string) string {
	return strings.ToLower(strings.TrimSpace(perm))
}
