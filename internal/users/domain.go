package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/campuskit/userservice/internal/rbac"
)

// Identity pinned to the system root admin record. The triple
// (RootAdminID, RootAdminUserID, super_admin) is immutable once established.
const (
	RootAdminID     int64 = 1
	RootAdminUserID       = "admin"
	RootAdminEmail        = "admin@localhost"
)

// User represents a user account and, once authenticated, the principal
// evaluated by the authorization engine.
type User struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"userid"`
	Email         string     `json:"email,omitempty"`
	PasswordHash  string     `json:"-"`
	Role          rbac.Role  `json:"role"`
	IsSystemAdmin bool       `json:"-"`
	IsActive      bool       `json:"is_active"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsSystemRootAdmin reports whether u is the protected root admin record.
func (u *User) IsSystemRootAdmin() bool {
	return u != nil && u.IsSystemAdmin && u.ID == RootAdminID && u.UserID == RootAdminUserID
}

// IsSuperAdmin reports whether u holds the highest privilege role.
func (u *User) IsSuperAdmin() bool {
	return u != nil && u.Role == rbac.RoleSuperAdmin
}

// IsAdmin reports whether u bypasses resource-ownership checks.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role.IsAdmin()
}

// HashPassword derives a bcrypt hash from a raw password.
func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether raw matches the stored bcrypt hash.
func VerifyPassword(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
