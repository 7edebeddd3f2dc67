package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
)

// ErrCurrentPasswordMismatch indicates the supplied current password does
// not verify against the stored hash.
var ErrCurrentPasswordMismatch = errors.New("users: current password is incorrect")

// Service handles user management business rules.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the users visible to the requester: admins see everyone,
// teachers see teachers and students, everyone else sees only themselves.
func (s *Service) List(ctx context.Context, requester *User) ([]User, error) {
	switch {
	case requester.IsAdmin():
		return s.repo.List(ctx, nil, 0)
	case requester.Role == rbac.RoleTeacher:
		return s.repo.List(ctx, []rbac.Role{rbac.RoleStudent, rbac.RoleTeacher}, 0)
	default:
		return s.repo.List(ctx, nil, requester.ID)
	}
}

// Get fetches a user by id, scoped to the requester's visibility. Users
// outside the requester's scope surface as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, requester *User, id int64) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case requester.IsAdmin():
		return user, nil
	case requester.Role == rbac.RoleTeacher:
		if user.Role == rbac.RoleStudent || user.Role == rbac.RoleTeacher {
			return user, nil
		}
		return nil, ErrUserNotFound
	default:
		if user.ID == requester.ID {
			return user, nil
		}
		return nil, ErrUserNotFound
	}
}

// CreateParams carries validated input for user creation.
type CreateParams struct {
	UserID   string
	Email    string
	Password string
	Role     rbac.Role
}

// Create registers a new user with a hashed password.
func (s *Service) Create(ctx context.Context, params CreateParams) (*User, error) {
	role := params.Role
	if role == "" {
		role = rbac.RoleStudent
	}
	if !role.Valid() {
		return nil, fmt.Errorf("users: invalid role %q", params.Role)
	}
	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		UserID:       params.UserID,
		Email:        params.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateParams carries optional profile field changes. Nil fields are left
// untouched.
type UpdateParams struct {
	Email *string
}

// Update applies profile field changes to a user. Role and activation state
// have their own dedicated paths.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if params.Email != nil {
		user.Email = *params.Email
	}
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetRole changes a user's role. The repository guard rejects role changes
// on the root admin before anything reaches storage.
func (s *Service) SetRole(ctx context.Context, id int64, role rbac.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("users: invalid role %q", role)
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Deactivate disables an account. Root admin deactivation is a guardian
// violation.
func (s *Service) Deactivate(ctx context.Context, user *User) error {
	if user.IsSystemRootAdmin() {
		return ErrRootAdminDeactivate
	}
	user.IsActive = false
	return s.repo.Save(ctx, user)
}

// Activate re-enables an account.
func (s *Service) Activate(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.IsActive = true
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes an account. The deletion guard protects the root admin.
func (s *Service) Delete(ctx context.Context, id int64) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, user)
}

// ChangePassword atomically verifies the current password and writes the new
// hash under a row lock, so two concurrent changes with the same stale
// current password cannot both succeed. The root admin's password never
// changes through this path.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	return s.repo.WithTx(ctx, func(tx TxRepository) error {
		user, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if user.IsSystemRootAdmin() {
			return ErrRootAdminPassword
		}
		if !VerifyPassword(user.PasswordHash, current) {
			return ErrCurrentPasswordMismatch
		}
		hash, err := HashPassword(next)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		return tx.Save(ctx, user)
	})
}

// Authenticate validates userid/password credentials for login.
func (s *Service) Authenticate(ctx context.Context, userid, password string) (*User, error) {
	user, err := s.repo.FindByUserID(ctx, userid)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrAccountDisabled
	}
	return user, nil
}

// RecordLogin stamps the last successful login time.
func (s *Service) RecordLogin(ctx context.Context, id int64) error {
	return s.repo.UpdateLastLogin(ctx, id)
}
