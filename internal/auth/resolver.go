package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// PrincipalStore loads user records during credential resolution.
type PrincipalStore interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
}

// Resolver turns a request's Authorization header into an authenticated
// principal. The signed-token path is always tried before the opaque-key
// path, so resolution is deterministic regardless of client scheme.
type Resolver struct {
	tokens *TokenManager
	opaque *OpaqueStore
	store  PrincipalStore
}

// NewResolver constructs a Resolver.
func NewResolver(tokens *TokenManager, opaque *OpaqueStore, store PrincipalStore) *Resolver {
	return &Resolver{tokens: tokens, opaque: opaque, store: store}
}

// Resolve authenticates the request. Failures surface as
// shared.ErrNoCredential, shared.ErrInvalidToken, shared.ErrTokenExpired or
// shared.ErrPrincipalNotFound.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*users.User, error) {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	switch {
	case header == "":
		return nil, shared.ErrNoCredential
	case strings.HasPrefix(header, "Bearer "):
		return r.resolveSigned(ctx, strings.TrimSpace(header[len("Bearer "):]))
	case strings.HasPrefix(header, "Token "):
		return r.resolveOpaque(ctx, strings.TrimSpace(header[len("Token "):]))
	default:
		return nil, shared.ErrInvalidToken
	}
}

func (r *Resolver) resolveSigned(ctx context.Context, raw string) (*users.User, error) {
	claims, err := r.tokens.Verify(raw, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return r.loadActive(ctx, claims.UserID)
}

func (r *Resolver) resolveOpaque(ctx context.Context, key string) (*users.User, error) {
	if key == "" {
		return nil, shared.ErrInvalidToken
	}
	userID, err := r.opaque.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.loadActive(ctx, userID)
}

func (r *Resolver) loadActive(ctx context.Context, id int64) (*users.User, error) {
	user, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, shared.ErrPrincipalNotFound
	}
	if !user.IsActive {
		return nil, shared.ErrPrincipalNotFound
	}
	return user, nil
}
