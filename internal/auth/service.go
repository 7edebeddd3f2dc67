package auth

import (
	"context"

	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// Service wraps authentication flows: login, logout, token refresh.
type Service struct {
	users  *users.Service
	tokens *TokenManager
	opaque *OpaqueStore
	store  PrincipalStore
}

// NewService constructs a new Service.
func NewService(userService *users.Service, tokens *TokenManager, opaque *OpaqueStore, store PrincipalStore) *Service {
	return &Service{users: userService, tokens: tokens, opaque: opaque, store: store}
}

// LoginResult carries everything issued on a successful login.
type LoginResult struct {
	User        *users.User
	Tokens      TokenPair
	OpaqueToken string
}

// Login authenticates credentials and issues both token schemes. Inactive
// accounts fail before any token is created.
func (s *Service) Login(ctx context.Context, userid, password string) (*LoginResult, error) {
	user, err := s.users.Authenticate(ctx, userid, password)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, err
	}
	opaqueToken, err := s.opaque.Ensure(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: pair, OpaqueToken: opaqueToken}, nil
}

// Logout revokes the principal's opaque key. Signed tokens are stateless and
// stay valid until expiry.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.opaque.DeleteForUser(ctx, userID)
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		return TokenPair{}, shared.ErrPrincipalNotFound
	}
	if !user.IsActive {
		return TokenPair{}, shared.ErrPrincipalNotFound
	}
	return s.tokens.IssuePair(user)
}

// Register creates a new user and issues its opaque token.
func (s *Service) Register(ctx context.Context, params users.CreateParams) (*LoginResult, error) {
	user, err := s.users.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	opaqueToken, err := s.opaque.Ensure(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, OpaqueToken: opaqueToken}, nil
}
