package users

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
)

// mockRepository is a map-backed Repository. WithTx holds the mutex for the
// whole callback, mirroring the row-lock serialization of the real store.
type mockRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
}

func newMockRepository() *mockRepository {
	return &mockRepository{nextID: 1, users: make(map[int64]*User)}
}

func (m *mockRepository) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) FindByUserID(_ context.Context, userid string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.UserID == userid {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) List(_ context.Context, roles []rbac.Role, onlyID int64) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if onlyID > 0 && u.ID != onlyID {
			continue
		}
		if len(roles) > 0 {
			match := false
			for _, role := range roles {
				if u.Role == role {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.UserID == user.UserID {
			return shared.ErrDuplicateUserID
		}
	}
	for m.users[m.nextID] != nil {
		m.nextID++
	}
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	m.users[user.ID] = &copied
	m.nextID++
	return nil
}

func (m *mockRepository) CreateRootAdmin(_ context.Context, admin *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[admin.ID] != nil {
		return shared.ErrDuplicateUserID
	}
	admin.CreatedAt = time.Now()
	admin.UpdatedAt = admin.CreatedAt
	copied := *admin
	m.users[admin.ID] = &copied
	// Mirror the repository contract: a pinned insert advances the id
	// sequence so later Creates never collide with it.
	if admin.ID >= m.nextID {
		m.nextID = admin.ID + 1
	}
	return nil
}

func (m *mockRepository) Save(ctx context.Context, user *User) error {
	return m.WithTx(ctx, func(tx TxRepository) error {
		return tx.Save(ctx, user)
	})
}

func (m *mockRepository) Delete(_ context.Context, user *User) error {
	if err := GuardDelete(user); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[user.ID] == nil {
		return ErrUserNotFound
	}
	delete(m.users, user.ID)
	return nil
}

func (m *mockRepository) UpdateLastLogin(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	return nil
}

func (m *mockRepository) WithTx(_ context.Context, fn func(tx TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockTx{repo: m, staged: make(map[int64]*User)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, u := range tx.staged {
		m.users[id] = u
	}
	return nil
}

type mockTx struct {
	repo   *mockRepository
	staged map[int64]*User
}

func (t *mockTx) GetForUpdate(_ context.Context, id int64) (*User, error) {
	if staged, ok := t.staged[id]; ok {
		copied := *staged
		return &copied, nil
	}
	u, ok := t.repo.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (t *mockTx) Save(ctx context.Context, user *User) error {
	prev, err := t.GetForUpdate(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := GuardSave(prev, user); err != nil {
		return err
	}
	user.UpdatedAt = time.Now()
	copied := *user
	t.staged[user.ID] = &copied
	return nil
}

var _ Repository = (*mockRepository)(nil)

func mustHash(t *testing.T, raw string) string {
	t.Helper()
	hash, err := HashPassword(raw)
	require.NoError(t, err)
	return hash
}

func seedRepo(t *testing.T) *mockRepository {
	t.Helper()
	repo := newMockRepository()
	hash := mustHash(t, "Secret#123")
	fixtures := []*User{
		{ID: RootAdminID, UserID: RootAdminUserID, Email: RootAdminEmail,
			Role: rbac.RoleSuperAdmin, IsSystemAdmin: true, IsActive: true, PasswordHash: hash},
		{ID: 2, UserID: "teach1", Email: "t1@example.com",
			Role: rbac.RoleTeacher, IsActive: true, PasswordHash: hash},
		{ID: 3, UserID: "stud1", Email: "s1@example.com",
			Role: rbac.RoleStudent, IsActive: true, PasswordHash: hash},
		{ID: 4, UserID: "stud2", Email: "s2@example.com",
			Role: rbac.RoleStudent, IsActive: true, PasswordHash: hash},
		{ID: 5, UserID: "comp1", Email: "c1@example.com",
			Role: rbac.RoleCompetitionAdmin, IsActive: true, PasswordHash: hash},
	}
	for _, u := range fixtures {
		repo.users[u.ID] = u
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
	}
	return repo
}

func userIDs(users []User) []int64 {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func TestListVisibility(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	admin, err := svc.List(ctx, &User{ID: 1, Role: rbac.RoleSuperAdmin})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, userIDs(admin))

	comp, err := svc.List(ctx, &User{ID: 5, Role: rbac.RoleCompetitionAdmin})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, userIDs(comp))

	teacher, err := svc.List(ctx, &User{ID: 2, Role: rbac.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, userIDs(teacher))

	student, err := svc.List(ctx, &User{ID: 3, Role: rbac.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, userIDs(student))
}

func TestGetScopesToRequester(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()
	student := &User{ID: 3, Role: rbac.RoleStudent}
	teacher := &User{ID: 2, Role: rbac.RoleTeacher}

	self, err := svc.Get(ctx, student, 3)
	require.NoError(t, err)
	assert.Equal(t, "stud1", self.UserID)

	_, err = svc.Get(ctx, student, 4)
	assert.ErrorIs(t, err, ErrUserNotFound)

	peer, err := svc.Get(ctx, teacher, 4)
	require.NoError(t, err)
	assert.Equal(t, "stud2", peer.UserID)

	_, err = svc.Get(ctx, teacher, 5)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Get(ctx, teacher, 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateDefaultsToStudent(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)

	user, err := svc.Create(context.Background(), CreateParams{
		UserID:   "newkid",
		Email:    "new@example.com",
		Password: "Secret#123",
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStudent, user.Role)
	assert.True(t, user.IsActive)
	assert.True(t, VerifyPassword(user.PasswordHash, "Secret#123"))
}

func TestCreateRejectsBadInput(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{UserID: "x", Password: "p", Role: "warlock"})
	assert.Error(t, err)

	_, err = svc.Create(ctx, CreateParams{UserID: "stud1", Email: "dup@example.com", Password: "Secret#123"})
	assert.ErrorIs(t, err, shared.ErrDuplicateUserID)
}

func TestUpdateEmail(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	email := "fresh@example.com"

	user, err := svc.Update(context.Background(), 3, UpdateParams{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, user.Email)

	stored, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, email, stored.Email)
}

func TestSetRole(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.SetRole(ctx, 3, rbac.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleTeacher, user.Role)

	_, err = svc.SetRole(ctx, 4, "warlock")
	assert.Error(t, err)

	_, err = svc.SetRole(ctx, RootAdminID, rbac.RoleTeacher)
	assert.ErrorIs(t, err, shared.ErrSystemAdminProtected)
}

func TestDeactivateAndActivate(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	target, err := repo.FindByID(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, target))

	stored, err := repo.FindByID(ctx, 3)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	reactivated, err := svc.Activate(ctx, 3)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)

	admin, err := repo.FindByID(ctx, RootAdminID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Deactivate(ctx, admin), ErrRootAdminDeactivate)
}

func TestDeleteProtectsRootAdmin(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, 4))
	_, err := repo.FindByID(ctx, 4)
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = svc.Delete(ctx, RootAdminID)
	assert.ErrorIs(t, err, ErrRootAdminDelete)
	_, err = repo.FindByID(ctx, RootAdminID)
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.ChangePassword(ctx, 3, "Secret#123", "Fresh#456"))
	_, err := svc.Authenticate(ctx, "stud1", "Fresh#456")
	assert.NoError(t, err)

	err = svc.ChangePassword(ctx, 3, "Secret#123", "Again#789")
	assert.ErrorIs(t, err, ErrCurrentPasswordMismatch)

	err = svc.ChangePassword(ctx, RootAdminID, "Secret#123", "Fresh#456")
	assert.ErrorIs(t, err, ErrRootAdminPassword)
}

// Two concurrent changes carrying the same stale current password must not
// both succeed: the second verifies against the hash the first just wrote.
func TestChangePasswordConcurrentStaleCurrent(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, next := range []string{"First#456", "Second#789"} {
		wg.Add(1)
		go func(next string) {
			defer wg.Done()
			results <- svc.ChangePassword(ctx, 3, "Secret#123", next)
		}(next)
	}
	wg.Wait()
	close(results)

	var succeeded, mismatched int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, ErrCurrentPasswordMismatch)
			mismatched++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, mismatched)
}

func TestAuthenticate(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "stud1", "Secret#123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.ID)

	_, err = svc.Authenticate(ctx, "stud1", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "Secret#123")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	repo.users[3].IsActive = false
	_, err = svc.Authenticate(ctx, "stud1", "Secret#123")
	assert.ErrorIs(t, err, shared.ErrAccountDisabled)
}

func TestRecordLogin(t *testing.T) {
	repo := seedRepo(t)
	svc := NewService(repo)

	require.NoError(t, svc.RecordLogin(context.Background(), 3))
	stored, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)
}
