package authz

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// Decision is the outcome of an authorization check. Denials carry a stable
// code plus the permissions or roles that would have satisfied the check.
type Decision struct {
	Allowed             bool
	Code                string
	Message             string
	RequiredPermissions []string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code, message string, required ...string) Decision {
	return Decision{Code: code, Message: message, RequiredPermissions: required}
}

// RouteKey identifies an exact (path, method) pair in the permission table.
type RouteKey struct {
	Path   string
	Method string
}

// PrefixRule maps every path under Prefix with the given method to a
// required permission set. Used for id-addressed detail routes.
type PrefixRule struct {
	Prefix      string
	Method      string
	Permissions []string
	RequireAll  bool
}

// Config declares the engine's route classification tables. Permission
// requirements are attached here at registration time, not wrapped around
// handlers at runtime.
type Config struct {
	// PublicPaths bypass authorization entirely (exact match).
	PublicPaths []string
	// PublicPrefixes bypass authorization entirely (prefix match).
	PublicPrefixes []string
	// AuthOnlyPaths require a valid principal but no specific permission;
	// non-safe methods still require resource ownership (exact match).
	AuthOnlyPaths []string
	// AuthOnlySuffixes extend AuthOnlyPaths for id-addressed self actions.
	AuthOnlySuffixes []string
	// Permissions is the exact-match required-permission table.
	Permissions map[RouteKey][]string
	// RequireAll marks exact routes whose permission set must be fully held.
	RequireAll map[RouteKey]bool
	// PrefixPermissions is consulted after the exact table misses.
	PrefixPermissions []PrefixRule
	// OwnedPrefixes are path prefixes whose id segment names a user the
	// principal must own for non-safe methods.
	OwnedPrefixes []string
}

// DefaultConfig returns the route tables for the /api/v1 surface. The
// detail-route permission mapping is explicit and unambiguous: GET reads,
// PUT/PATCH update, DELETE deletes.
func DefaultConfig() Config {
	return Config{
		PublicPaths: []string{
			"/api/v1/auth/login",
			"/api/v1/auth/logout",
			"/api/v1/auth/refresh",
			"/healthz",
			"/metrics",
		},
		PublicPrefixes: []string{
			"/static/",
		},
		AuthOnlyPaths: []string{
			"/api/v1/auth/change-password",
			"/api/v1/users/me",
			"/api/v1/users/deactivate",
		},
		AuthOnlySuffixes: []string{
			"/me",
			"/deactivate",
		},
		Permissions: map[RouteKey][]string{
			{Path: "/api/v1/users", Method: http.MethodGet}:          {rbac.PermUserList},
			{Path: "/api/v1/users", Method: http.MethodPost}:         {rbac.PermUserCreate},
			{Path: "/api/v1/activities", Method: http.MethodGet}:     {rbac.PermActivityList},
			{Path: "/api/v1/auth/register", Method: http.MethodPost}: {rbac.PermUserCreate},
			{Path: "/api/v1/jobs/health", Method: http.MethodGet}:    {rbac.PermSystemMonitor},
		},
		PrefixPermissions: []PrefixRule{
			{Prefix: "/api/v1/users/", Method: http.MethodGet, Permissions: []string{rbac.PermUserRead}},
			{Prefix: "/api/v1/users/", Method: http.MethodPut, Permissions: []string{rbac.PermUserUpdate}},
			{Prefix: "/api/v1/users/", Method: http.MethodPatch, Permissions: []string{rbac.PermUserUpdate}},
			{Prefix: "/api/v1/users/", Method: http.MethodDelete, Permissions: []string{rbac.PermUserDelete}},
			{Prefix: "/api/v1/activities/", Method: http.MethodGet, Permissions: []string{rbac.PermActivityRead}},
		},
		OwnedPrefixes: []string{
			"/api/v1/users/",
		},
	}
}

// Engine decides allow/deny for an authenticated principal against a
// normalized method and path.
type Engine struct {
	cfg           Config
	publicPaths   map[string]struct{}
	authOnlyPaths map[string]struct{}
}

// NewEngine validates the configuration against the permission catalog and
// constructs an Engine. Unknown permission tokens are a startup error, not a
// silent fail-open.
func NewEngine(cfg Config) (*Engine, error) {
	for key, perms := range cfg.Permissions {
		for _, perm := range perms {
			if !rbac.Exists(perm) {
				return nil, fmt.Errorf("authz: route %s %s requires unknown permission %q", key.Method, key.Path, perm)
			}
		}
	}
	for _, rule := range cfg.PrefixPermissions {
		for _, perm := range rule.Permissions {
			if !rbac.Exists(perm) {
				return nil, fmt.Errorf("authz: prefix %s %s requires unknown permission %q", rule.Method, rule.Prefix, perm)
			}
		}
	}

	e := &Engine{
		cfg:           cfg,
		publicPaths:   make(map[string]struct{}, len(cfg.PublicPaths)),
		authOnlyPaths: make(map[string]struct{}, len(cfg.AuthOnlyPaths)),
	}
	for _, p := range cfg.PublicPaths {
		e.publicPaths[normalizePath(p)] = struct{}{}
	}
	for _, p := range cfg.AuthOnlyPaths {
		e.authOnlyPaths[normalizePath(p)] = struct{}{}
	}
	return e, nil
}

// IsPublic reports whether the path bypasses authorization entirely.
func (e *Engine) IsPublic(path string) bool {
	path = normalizePath(path)
	if _, ok := e.publicPaths[path]; ok {
		return true
	}
	for _, prefix := range e.cfg.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (e *Engine) isAuthOnly(path string) bool {
	path = normalizePath(path)
	if _, ok := e.authOnlyPaths[path]; ok {
		return true
	}
	if strings.HasPrefix(path, "/api/v1/users/") {
		for _, suffix := range e.cfg.AuthOnlySuffixes {
			if strings.HasSuffix(path, suffix) {
				return true
			}
		}
	}
	return false
}

// Authorize applies the decision rules in order: public paths, root/super
// admin bypass, auth-only paths, the permission table, resource ownership.
func (e *Engine) Authorize(principal *users.User, method, path string) Decision {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	if e.IsPublic(path) {
		return allow()
	}

	if principal == nil {
		return deny(shared.CodeAuthenticationRequired, "a valid authentication token is required")
	}

	if principal.IsSystemRootAdmin() || principal.IsSuperAdmin() {
		return allow()
	}

	if e.isAuthOnly(path) {
		if !e.ownsResource(principal, method, path) {
			return deny(shared.CodeOwnershipRequired, "you can only operate on your own resources")
		}
		return allow()
	}

	required, requireAll := e.requiredPermissions(path, method)
	satisfied := rbac.HasAny(principal.Role, required)
	if requireAll {
		satisfied = rbac.HasAll(principal.Role, required)
	}
	if !satisfied {
		return deny(shared.CodeInsufficientPermissions,
			"you do not have permission to perform this action", required...)
	}

	if !e.ownsResource(principal, method, path) {
		return deny(shared.CodeOwnershipRequired, "you can only operate on your own resources")
	}

	return allow()
}

// requiredPermissions derives the permission set for (path, method):
// exact match first, then prefix rules, then the method-based default.
func (e *Engine) requiredPermissions(path, method string) (perms []string, requireAll bool) {
	key := RouteKey{Path: path, Method: method}
	if perms, ok := e.cfg.Permissions[key]; ok {
		return perms, e.cfg.RequireAll[key]
	}
	for _, rule := range e.cfg.PrefixPermissions {
		if rule.Method == method && strings.HasPrefix(path, rule.Prefix) {
			return rule.Permissions, rule.RequireAll
		}
	}
	if method == http.MethodGet {
		return []string{rbac.PermUserRead}, false
	}
	return []string{rbac.PermUserUpdate}, false
}

// ownsResource verifies that an id-addressed path belongs to the principal
// for non-safe methods. Administrators bypass the check; paths without an id
// segment pass.
func (e *Engine) ownsResource(principal *users.User, method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	if principal.IsAdmin() {
		return true
	}

	owned := false
	for _, prefix := range e.cfg.OwnedPrefixes {
		if strings.HasPrefix(path, prefix) {
			owned = true
			break
		}
	}
	if !owned {
		return true
	}

	resourceID := extractResourceID(path)
	if resourceID == "" {
		return true
	}
	if fmt.Sprintf("%d", principal.ID) == resourceID {
		return true
	}
	return principal.UserID == resourceID
}

// extractResourceID returns the first all-digit path segment, if any.
func extractResourceID(path string) string {
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment != "" && isDigits(segment) {
			return segment
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}
