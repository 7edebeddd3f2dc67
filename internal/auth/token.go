package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// Token type tags carried in the `type` claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenConfig carries the signing secret, algorithm and lifetimes.
type TokenConfig struct {
	Secret     []byte
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is the login/refresh response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims is the verified content of a signed token. Access tokens carry the
// full set; refresh tokens carry only the user id, timestamps and type.
type Claims struct {
	UserID       int64
	UserIdentity string
	Role         rbac.Role
	Type         string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// TokenManager signs and verifies JWTs with a server-held secret.
// Verification is a pure computation; expiry is checked lazily here, never
// swept proactively.
type TokenManager struct {
	cfg TokenConfig
	alg jwa.SignatureAlgorithm
}

// NewTokenManager validates the configured algorithm and constructs a
// manager. Only HMAC algorithms are supported.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	var alg jwa.SignatureAlgorithm
	switch cfg.Algorithm {
	case "", "HS256":
		alg = jwa.HS256
	case "HS384":
		alg = jwa.HS384
	case "HS512":
		alg = jwa.HS512
	default:
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", cfg.Algorithm)
	}
	return &TokenManager{cfg: cfg, alg: alg}, nil
}

// IssuePair generates an access/refresh token pair for the user.
// Payload shape is fixed for interop: access tokens carry
// {user_id, userid, role, exp, iat, type}; refresh tokens omit userid/role.
func (m *TokenManager) IssuePair(user *users.User) (TokenPair, error) {
	now := time.Now()

	access, err := jwt.NewBuilder().
		Claim("user_id", user.ID).
		Claim("userid", user.UserID).
		Claim("role", string(user.Role)).
		Claim("type", TokenTypeAccess).
		IssuedAt(now).
		Expiration(now.Add(m.cfg.AccessTTL)).
		Build()
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: build access token: %w", err)
	}

	refresh, err := jwt.NewBuilder().
		Claim("user_id", user.ID).
		Claim("type", TokenTypeRefresh).
		IssuedAt(now).
		Expiration(now.Add(m.cfg.RefreshTTL)).
		Build()
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: build refresh token: %w", err)
	}

	signedAccess, err := jwt.Sign(access, jwt.WithKey(m.alg, m.cfg.Secret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	signedRefresh, err := jwt.Sign(refresh, jwt.WithKey(m.alg, m.cfg.Secret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  string(signedAccess),
		RefreshToken: string(signedRefresh),
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.cfg.AccessTTL.Seconds()),
	}, nil
}

// Verify checks signature and expiry, and that the token's type tag matches
// wantType. Expired tokens surface as shared.ErrTokenExpired; anything else
// malformed as shared.ErrInvalidToken.
func (m *TokenManager) Verify(raw string, wantType string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(m.alg, m.cfg.Secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, shared.ErrTokenExpired
		}
		return nil, shared.ErrInvalidToken
	}

	claims := &Claims{
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	claims.Type, _ = stringClaim(tok, "type")
	if claims.Type != wantType {
		return nil, shared.ErrInvalidToken
	}

	id, ok := int64Claim(tok, "user_id")
	if !ok || id <= 0 {
		return nil, shared.ErrInvalidToken
	}
	claims.UserID = id

	if identity, ok := stringClaim(tok, "userid"); ok {
		claims.UserIdentity = identity
	}
	if role, ok := stringClaim(tok, "role"); ok {
		claims.Role = rbac.Role(role)
	}
	return claims, nil
}

func stringClaim(tok jwt.Token, name string) (string, bool) {
	v, ok := tok.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func int64Claim(tok jwt.Token, name string) (int64, bool) {
	v, ok := tok.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
