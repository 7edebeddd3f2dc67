package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
)

// ErrRootAdminProtected is the base error for every guardian violation.
// All specific violations wrap it, so callers match with errors.Is.
var ErrRootAdminProtected = fmt.Errorf("users: %w", shared.ErrSystemAdminProtected)

var (
	ErrRootAdminIdentityChange = fmt.Errorf("%w: userid cannot be changed", ErrRootAdminProtected)
	ErrRootAdminRoleChange     = fmt.Errorf("%w: role cannot be changed", ErrRootAdminProtected)
	ErrRootAdminIDChange       = fmt.Errorf("%w: id must remain %d", ErrRootAdminProtected, RootAdminID)
	ErrRootAdminDelete         = fmt.Errorf("%w: record cannot be deleted", ErrRootAdminProtected)
	ErrRootAdminDeactivate     = fmt.Errorf("%w: account cannot be deactivated", ErrRootAdminProtected)
	ErrRootAdminPassword       = fmt.Errorf("%w: password can only be rotated through the configured admin password source", ErrRootAdminProtected)
)

// GuardSave validates a pending save of prev (the stored row) against next
// (the row about to be written). Ordinary field updates such as the password
// hash and timestamps pass; identity, role, surrogate-id changes and
// deactivation are rejected before reaching storage.
func GuardSave(prev, next *User) error {
	if prev == nil || !prev.IsSystemRootAdmin() {
		return nil
	}
	if next.ID != RootAdminID {
		return ErrRootAdminIDChange
	}
	if next.UserID != RootAdminUserID {
		return ErrRootAdminIdentityChange
	}
	if next.Role != rbac.RoleSuperAdmin {
		return ErrRootAdminRoleChange
	}
	if !next.IsActive {
		return ErrRootAdminDeactivate
	}
	if !next.IsSystemAdmin {
		return ErrRootAdminIdentityChange
	}
	return nil
}

// GuardDelete rejects deletion of the root admin record.
func GuardDelete(u *User) error {
	if u.IsSystemRootAdmin() {
		return ErrRootAdminDelete
	}
	return nil
}

// AdminPasswordSource resolves the root admin's credential. Resolution
// order: ADMIN_PASSWORD environment override, process configuration value,
// documented default.
type AdminPasswordSource struct {
	Configured string
}

// DefaultAdminPassword is used only when neither the environment nor the
// configuration provides one. Its use is logged loudly at startup.
const DefaultAdminPassword = "admin123"

// Resolve returns the effective admin password and whether it is the
// documented default.
func (s AdminPasswordSource) Resolve() (password string, isDefault bool) {
	if s.Configured != "" {
		return s.Configured, false
	}
	return DefaultAdminPassword, true
}

// Guardian bootstraps and heals the pinned root admin record at startup.
type Guardian struct {
	repo   Repository
	source AdminPasswordSource
	logger *slog.Logger
}

// NewGuardian constructs a Guardian.
func NewGuardian(repo Repository, source AdminPasswordSource, logger *slog.Logger) *Guardian {
	return &Guardian{repo: repo, source: source, logger: logger}
}

// Ensure creates the root admin when absent and rotates its stored hash when
// it no longer verifies against the configured password source. The check is
// idempotent: an already-correct record produces no write.
func (g *Guardian) Ensure(ctx context.Context) error {
	password, isDefault := g.source.Resolve()
	if isDefault {
		g.logger.Warn("system root admin is using the default password; set ADMIN_PASSWORD",
			slog.String("userid", RootAdminUserID))
	}

	admin, err := g.repo.FindByID(ctx, RootAdminID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return g.create(ctx, password)
	case err != nil:
		return fmt.Errorf("guardian: load root admin: %w", err)
	}

	if !admin.IsSystemRootAdmin() {
		return fmt.Errorf("guardian: record id=%d is not the root admin (userid=%q)", RootAdminID, admin.UserID)
	}

	if VerifyPassword(admin.PasswordHash, password) {
		return nil
	}

	g.logger.Info("admin password source changed, rotating stored hash")
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("guardian: hash admin password: %w", err)
	}
	admin.PasswordHash = hash
	if err := g.repo.Save(ctx, admin); err != nil {
		return fmt.Errorf("guardian: rotate admin password: %w", err)
	}
	return nil
}

func (g *Guardian) create(ctx context.Context, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("guardian: hash admin password: %w", err)
	}
	admin := &User{
		ID:            RootAdminID,
		UserID:        RootAdminUserID,
		Email:         RootAdminEmail,
		PasswordHash:  hash,
		Role:          rbac.RoleSuperAdmin,
		IsSystemAdmin: true,
		IsActive:      true,
	}
	if err := g.repo.CreateRootAdmin(ctx, admin); err != nil {
		return fmt.Errorf("guardian: create root admin: %w", err)
	}
	g.logger.Info("system root admin created",
		slog.String("userid", RootAdminUserID),
		slog.String("role", string(rbac.RoleSuperAdmin)))
	return nil
}
