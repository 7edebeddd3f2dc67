package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/campuskit/userservice/internal/platform/httpx"
	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// CredentialResolver authenticates an inbound request.
type CredentialResolver interface {
	Resolve(ctx context.Context, req *http.Request) (*users.User, error)
}

// Middleware wires authentication and the decision engine into the HTTP
// chain. Route-level permission refinements live in rbac.Middleware.
type Middleware struct {
	Resolver CredentialResolver
	Engine   *Engine
	Logger   *slog.Logger
}

// Authorize resolves the principal and evaluates the decision engine for
// every request. Public paths never fail on a bad credential: the principal
// is resolved only when a credential is actually present, and resolution
// errors there are ignored.
func (m Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var principal *users.User
		if r.Header.Get("Authorization") != "" {
			resolved, err := m.Resolver.Resolve(ctx, r)
			if err == nil {
				principal = resolved
			} else if !m.Engine.IsPublic(r.URL.Path) {
				httpx.RespondError(w, err)
				return
			}
		}

		decision := m.Engine.Authorize(principal, r.Method, r.URL.Path)
		if !decision.Allowed {
			m.writeDeny(w, r, principal, decision)
			return
		}

		if principal != nil {
			ctx = users.ContextWithPrincipal(ctx, principal)
			ctx = rbac.ContextWithRole(ctx, principal.Role)
			w.Header().Set("X-User-Role", string(principal.Role))
			w.Header().Set("X-User-ID", principal.UserID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) writeDeny(w http.ResponseWriter, r *http.Request, principal *users.User, decision Decision) {
	switch decision.Code {
	case shared.CodeAuthenticationRequired:
		httpx.Error(w, http.StatusUnauthorized, "authentication failed", decision.Message, decision.Code)
	case shared.CodeInsufficientPermissions:
		m.logDeny(r, principal, decision.RequiredPermissions)
		httpx.ErrorWithContext(w, http.StatusForbidden, "insufficient permissions",
			decision.Message, decision.Code, map[string]any{
				"required_permissions": decision.RequiredPermissions,
				"user_role":            principal.Role,
			})
	case shared.CodeOwnershipRequired:
		m.logDeny(r, principal, nil)
		httpx.Error(w, http.StatusForbidden, "resource ownership required", decision.Message, decision.Code)
	default:
		httpx.Error(w, http.StatusForbidden, "forbidden", decision.Message, decision.Code)
	}
}

func (m Middleware) logDeny(r *http.Request, principal *users.User, required []string) {
	if m.Logger == nil {
		return
	}
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
	}
	if principal != nil {
		attrs = append(attrs,
			slog.String("userid", principal.UserID),
			slog.String("role", string(principal.Role)))
	}
	if len(required) > 0 {
		attrs = append(attrs, slog.Any("required_permissions", required))
	}
	m.Logger.Warn("authorization denied", attrs...)
}
