package shared

// Action tags recorded against the activity log. The set is closed: unknown
// tags are rejected before reaching storage.
const (
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionRegister       = "register"
	ActionUpdateProfile  = "update_profile"
	ActionChangePassword = "change_password"
	ActionDeactivate     = "deactivate"
	ActionActivate       = "activate"
)

// ValidAction reports whether action is a member of the closed tag set.
func ValidAction(action string) bool {
	switch action {
	case ActionLogin, ActionLogout, ActionRegister, ActionUpdateProfile,
		ActionChangePassword, ActionDeactivate, ActionActivate:
		return true
	}
	return false
}
