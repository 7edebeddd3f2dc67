package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account exists but has been deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrNoCredential indicates the request carried no recognised credential.
	ErrNoCredential = errors.New("no credential provided")
	// ErrInvalidToken indicates a malformed or badly signed token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates a signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrPrincipalNotFound indicates a verified token referencing a missing or inactive user.
	ErrPrincipalNotFound = errors.New("principal not found or inactive")
	// ErrDuplicateUserID indicates a userid collision on registration.
	ErrDuplicateUserID = errors.New("userid already exists")
	// ErrSystemAdminProtected indicates a rejected mutation of the pinned
	// system root admin.
	ErrSystemAdminProtected = errors.New("system root admin is protected")
)

// Stable machine-readable error codes carried in JSON responses. Clients
// branch on these, never on the human-readable message.
const (
	CodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeOwnershipRequired       = "RESOURCE_OWNERSHIP_REQUIRED"
	CodeRoleNotAllowed          = "ROLE_NOT_ALLOWED"
	CodeSystemAdminProtection   = "SYSTEM_ADMIN_PROTECTION"
	CodeValidationError         = "VALIDATION_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeInternalError           = "INTERNAL_ERROR"
)
