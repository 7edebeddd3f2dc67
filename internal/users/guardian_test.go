package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/userservice/internal/rbac"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardSave(t *testing.T) {
	root := func() *User {
		return &User{ID: RootAdminID, UserID: RootAdminUserID,
			Role: rbac.RoleSuperAdmin, IsSystemAdmin: true, IsActive: true}
	}

	cases := []struct {
		name    string
		mutate  func(u *User)
		wantErr error
	}{
		{"password rotation passes", func(u *User) { u.PasswordHash = "new" }, nil},
		{"email change passes", func(u *User) { u.Email = "root@example.com" }, nil},
		{"id change rejected", func(u *User) { u.ID = 42 }, ErrRootAdminIDChange},
		{"userid change rejected", func(u *User) { u.UserID = "root" }, ErrRootAdminIdentityChange},
		{"role change rejected", func(u *User) { u.Role = rbac.RoleTeacher }, ErrRootAdminRoleChange},
		{"deactivation rejected", func(u *User) { u.IsActive = false }, ErrRootAdminDeactivate},
		{"flag clear rejected", func(u *User) { u.IsSystemAdmin = false }, ErrRootAdminIdentityChange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := root()
			tc.mutate(next)
			err := GuardSave(root(), next)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrRootAdminProtected)
		})
	}

	// ordinary users are never guarded
	plain := &User{ID: 7, UserID: "stud1", Role: rbac.RoleStudent, IsActive: true}
	changed := &User{ID: 7, UserID: "renamed", Role: rbac.RoleTeacher}
	assert.NoError(t, GuardSave(plain, changed))
	assert.NoError(t, GuardSave(nil, changed))
}

func TestGuardDelete(t *testing.T) {
	root := &User{ID: RootAdminID, UserID: RootAdminUserID, IsSystemAdmin: true}
	assert.ErrorIs(t, GuardDelete(root), ErrRootAdminDelete)
	assert.NoError(t, GuardDelete(&User{ID: 2, UserID: "stud1"}))
}

func TestAdminPasswordSource(t *testing.T) {
	password, isDefault := AdminPasswordSource{}.Resolve()
	assert.Equal(t, DefaultAdminPassword, password)
	assert.True(t, isDefault)

	password, isDefault = AdminPasswordSource{Configured: "Hunter#2"}.Resolve()
	assert.Equal(t, "Hunter#2", password)
	assert.False(t, isDefault)
}

func TestGuardianCreatesRootAdmin(t *testing.T) {
	repo := newMockRepository()
	g := NewGuardian(repo, AdminPasswordSource{Configured: "Boot#123"}, testLogger())

	require.NoError(t, g.Ensure(context.Background()))

	admin, err := repo.FindByID(context.Background(), RootAdminID)
	require.NoError(t, err)
	assert.Equal(t, RootAdminUserID, admin.UserID)
	assert.Equal(t, rbac.RoleSuperAdmin, admin.Role)
	assert.True(t, admin.IsSystemAdmin)
	assert.True(t, admin.IsActive)
	assert.True(t, VerifyPassword(admin.PasswordHash, "Boot#123"))
}

// The pinned root admin insert must not leave the id sequence behind:
// the first ordinary user created after bootstrap gets the next id, not a
// duplicate of the admin's.
func TestGuardianBootstrapLeavesSequenceAhead(t *testing.T) {
	repo := newMockRepository()
	g := NewGuardian(repo, AdminPasswordSource{Configured: "Boot#123"}, testLogger())
	ctx := context.Background()

	require.NoError(t, g.Ensure(ctx))

	user := &User{UserID: "stud1", Email: "stud1@example.com",
		PasswordHash: "x", Role: rbac.RoleStudent, IsActive: true}
	require.NoError(t, repo.Create(ctx, user))
	assert.EqualValues(t, RootAdminID+1, user.ID)
}

func TestGuardianIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	g := NewGuardian(repo, AdminPasswordSource{Configured: "Boot#123"}, testLogger())
	ctx := context.Background()

	require.NoError(t, g.Ensure(ctx))
	first, err := repo.FindByID(ctx, RootAdminID)
	require.NoError(t, err)

	require.NoError(t, g.Ensure(ctx))
	second, err := repo.FindByID(ctx, RootAdminID)
	require.NoError(t, err)
	assert.Equal(t, first.PasswordHash, second.PasswordHash)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestGuardianRotatesHashOnSourceChange(t *testing.T) {
	repo := newMockRepository()
	ctx := context.Background()
	require.NoError(t, NewGuardian(repo, AdminPasswordSource{Configured: "Old#123"}, testLogger()).Ensure(ctx))

	require.NoError(t, NewGuardian(repo, AdminPasswordSource{Configured: "New#456"}, testLogger()).Ensure(ctx))

	admin, err := repo.FindByID(ctx, RootAdminID)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(admin.PasswordHash, "New#456"))
	assert.False(t, VerifyPassword(admin.PasswordHash, "Old#123"))
}

func TestGuardianRejectsForeignRecord(t *testing.T) {
	repo := newMockRepository()
	repo.users[RootAdminID] = &User{ID: RootAdminID, UserID: "impostor",
		Role: rbac.RoleStudent, IsActive: true}
	g := NewGuardian(repo, AdminPasswordSource{Configured: "Boot#123"}, testLogger())

	err := g.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "impostor")
}
