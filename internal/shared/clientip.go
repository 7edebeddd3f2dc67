package shared

import (
	"net"
	"net/http"
	"strings"
)

// ActivityEvent is one audit entry as emitted by a handler. IP and UserAgent
// come from the triggering request; Success is false for recorded denials
// such as a failed password change.
type ActivityEvent struct {
	UserID    int64
	Action    string
	Detail    string
	IP        string
	UserAgent string
	Success   bool
}

// EventFromRequest builds a successful ActivityEvent carrying the request's
// client address and user agent.
func EventFromRequest(r *http.Request, userID int64, action, detail string) ActivityEvent {
	return ActivityEvent{
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	}
}

// ClientIP extracts the originating client address, honouring the first
// entry of X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
