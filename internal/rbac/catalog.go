package rbac

// Permission tokens, namespaced as resource:action. The set is closed:
// permissions are never combined or inherited implicitly.
const (
	// User management.
	PermUserCreate = "user:create"
	PermUserRead   = "user:read"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"
	PermUserList   = "user:list"

	// Activity audit.
	PermActivityRead = "activity:read"
	PermActivityList = "activity:list"

	// Role management.
	PermRoleUpdate = "role:update"
	PermRoleRead   = "role:read"

	// System administration.
	PermSystemConfig  = "system:config"
	PermSystemMonitor = "system:monitor"

	// Competition management.
	PermCompetitionCreate = "competition:create"
	PermCompetitionRead   = "competition:read"
	PermCompetitionUpdate = "competition:update"
	PermCompetitionDelete = "competition:delete"
	PermCompetitionList   = "competition:list"
	PermCompetitionManage = "competition:manage"

	// Competition review.
	PermCompetitionReview  = "competition:review"
	PermCompetitionApprove = "competition:approve"
	PermCompetitionReject  = "competition:reject"

	// Team management.
	PermTeamCreate = "team:create"
	PermTeamRead   = "team:read"
	PermTeamUpdate = "team:update"
	PermTeamDelete = "team:delete"
	PermTeamList   = "team:list"
	PermTeamManage = "team:manage"

	// Team membership.
	PermMemberAdd     = "member:add"
	PermMemberRemove  = "member:remove"
	PermMemberApprove = "member:approve"
)

// catalog is the authoritative enumeration. AllPermissions and the
// super_admin role derive from it, so a new token added here is granted
// to super_admin automatically.
var catalog = []string{
	PermUserCreate,
	PermUserRead,
	PermUserUpdate,
	PermUserDelete,
	PermUserList,

	PermActivityRead,
	PermActivityList,

	PermRoleUpdate,
	PermRoleRead,

	PermSystemConfig,
	PermSystemMonitor,

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
}

var catalogSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(catalog))
	for _, p := range catalog {
		set[p] = struct{}{}
	}
	return set
}()

// AllPermissions returns a copy of every permission token in the catalog.
func AllPermissions() []string {
	all := make([]string, len(catalog))
	copy(all, catalog)
	return all
}

// Exists reports whether token is a catalogued permission. Used defensively
// when validating route permission tables at startup.
func Exists(token string) bool {
	_, ok := catalogSet[token]
	return ok
}
