package activity

import (
	"time"

	"github.com/campuskit/userservice/internal/rbac"
)

// Record is one append-only activity log entry. UserIdentity and UserRole are
// denormalized from the owning user at read time.
type Record struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	UserIdentity string    `json:"userid"`
	UserRole     rbac.Role `json:"user_role"`
	Action       string    `json:"action"`
	Detail       string    `json:"detail,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Success      bool      `json:"success"`
	CreatedAt    time.Time `json:"created_at"`
}
