package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/campuskit/userservice/internal/platform/httpx"
	"github.com/campuskit/userservice/internal/shared"
)

type roleContextKey struct{}

// ContextWithRole stores the authenticated principal's role on the context.
func ContextWithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleContextKey{}, role)
}

// RoleFromContext returns the stored role. The second return is false when
// no authenticated role is present.
func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleContextKey{}).(Role)
	return role, ok
}

// Middleware wires role-based authorization helpers for HTTP handlers.
// super_admin passes every check.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current role has at least one of the required
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(normalized, HasAny)
}

// RequireAll ensures the current role has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(normalized, HasAll)
}

func (m Middleware) require(perms []string, check func(Role, []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			role, ok := RoleFromContext(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "authentication failed",
					"a valid authentication token is required", shared.CodeAuthenticationRequired)
				return
			}
			if role == RoleSuperAdmin || check(role, perms) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied",
					slog.String("path", r.URL.Path),
					slog.String("role", string(role)),
					slog.Any("required_permissions", perms))
			}
			httpx.ErrorWithContext(w, http.StatusForbidden, "insufficient permissions",
				"you do not have permission to perform this action",
				shared.CodeInsufficientPermissions, map[string]any{
					"required_permissions": perms,
					"user_role":            role,
				})
		})
	}
}

// RequireRoles ensures the current role is one of roles. super_admin always
// passes.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "authentication failed",
					"a valid authentication token is required", shared.CodeAuthenticationRequired)
				return
			}
			if role == RoleSuperAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			names := make([]string, len(roles))
			for i, allowed := range roles {
				names[i] = string(allowed)
			}
			httpx.ErrorWithContext(w, http.StatusForbidden, "role not allowed",
				"this action is restricted to specific roles",
				shared.CodeRoleNotAllowed, map[string]any{
					"required_roles": names,
					"user_role":      role,
				})
		})
	}
}

// RequireMinimumRole ensures the current role ranks at or above role.
func (m Middleware) RequireMinimumRole(minimum Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "authentication failed",
					"a valid authentication token is required", shared.CodeAuthenticationRequired)
				return
			}
			if role.Rank() >= minimum.Rank() {
				next.ServeHTTP(w, r)
				return
			}
			httpx.ErrorWithContext(w, http.StatusForbidden, "role not allowed",
				"this action requires a higher privilege role",
				shared.CodeRoleNotAllowed, map[string]any{
					"required_roles": []string{string(minimum)},
					"user_role":      role,
				})
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
