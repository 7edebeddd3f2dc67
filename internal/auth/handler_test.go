package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

// stubUserRepo is a map-backed users.Repository covering the slice of the
// interface the auth flows exercise.
type stubUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*users.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{nextID: 1, byID: make(map[int64]*users.User)}
}

func (s *stubUserRepo) FindByID(_ context.Context, id int64) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *stubUserRepo) FindByUserID(_ context.Context, userid string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.UserID == userid {
			copied := *u
			return &copied, nil
		}
	}
	return nil, users.ErrUserNotFound
}

func (s *stubUserRepo) List(_ context.Context, _ []rbac.Role, _ int64) ([]users.User, error) {
	return nil, nil
}

func (s *stubUserRepo) Create(_ context.Context, user *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.UserID == user.UserID {
			return shared.ErrDuplicateUserID
		}
	}
	user.ID = s.nextID
	s.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	s.byID[user.ID] = &copied
	return nil
}

func (s *stubUserRepo) CreateRootAdmin(_ context.Context, admin *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *admin
	s.byID[admin.ID] = &copied
	return nil
}

func (s *stubUserRepo) Save(ctx context.Context, user *users.User) error {
	return s.WithTx(ctx, func(tx users.TxRepository) error {
		return tx.Save(ctx, user)
	})
}

func (s *stubUserRepo) Delete(_ context.Context, user *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, user.ID)
	return nil
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return users.ErrUserNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	return nil
}

func (s *stubUserRepo) WithTx(_ context.Context, fn func(tx users.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(stubUserTx{repo: s})
}

type stubUserTx struct {
	repo *stubUserRepo
}

func (t stubUserTx) GetForUpdate(_ context.Context, id int64) (*users.User, error) {
	u, ok := t.repo.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (t stubUserTx) Save(ctx context.Context, user *users.User) error {
	prev, err := t.GetForUpdate(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := users.GuardSave(prev, user); err != nil {
		return err
	}
	copied := *user
	t.repo.byID[user.ID] = &copied
	return nil
}

var _ users.Repository = (*stubUserRepo)(nil)

type actionLog struct {
	mu      sync.Mutex
	actions []string
	events  []shared.ActivityEvent
}

func (l *actionLog) Record(_ context.Context, event shared.ActivityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, event.Action)
	l.events = append(l.events, event)
}

type authFixture struct {
	repo    *stubUserRepo
	opaque  *OpaqueStore
	actions *actionLog
	router  *chi.Mux
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	repo := newStubUserRepo()
	userService := users.NewService(repo)

	hash, err := users.HashPassword("Secret#123")
	require.NoError(t, err)
	repo.byID[7] = &users.User{ID: 7, UserID: "stud1", Email: "s1@example.com",
		PasswordHash: hash, Role: rbac.RoleStudent, IsActive: true}
	repo.nextID = 8

	opaque := newTestOpaqueStore(t)
	service := NewService(userService, newTestManager(t), opaque, repo)
	actions := &actionLog{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := chi.NewRouter()
	router.Route("/api/v1/auth", NewHandler(logger, service, userService, actions).MountRoutes)
	return &authFixture{repo: repo, opaque: opaque, actions: actions, router: router}
}

func (f *authFixture) do(principal *users.User, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(users.ContextWithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/login", `{"userid":"stud1","password":"Secret#123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, "login successful", body["message"])
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stud1", user["userid"])

	stored, err := f.repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)
	assert.Equal(t, []string{shared.ActionLogin}, f.actions.actions)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/login", `{"userid":"stud1","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, shared.CodeAuthenticationRequired, decodeJSON(t, rec)["code"])

	rec = f.do(nil, "/api/v1/auth/login", `{"userid":"nobody","password":"Secret#123"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(nil, "/api/v1/auth/login", `{"userid":"stud1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.actions.actions)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.byID[7].IsActive = false

	rec := f.do(nil, "/api/v1/auth/login", `{"userid":"stud1","password":"Secret#123"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["message"], "disabled")
}

func TestRefresh(t *testing.T) {
	f := newAuthFixture(t)

	login := f.do(nil, "/api/v1/auth/login", `{"userid":"stud1","password":"Secret#123"}`)
	require.Equal(t, http.StatusOK, login.Code)
	refreshToken, _ := decodeJSON(t, login)["refresh_token"].(string)
	require.NotEmpty(t, refreshToken)

	rec := f.do(nil, "/api/v1/auth/refresh", `{"refresh_token":"`+refreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])

	rec = f.do(nil, "/api/v1/auth/refresh", `{"refresh_token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/register",
		`{"userid":"newkid","email":"new@example.com","password":"Secret#123","password_confirm":"Secret#123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeJSON(t, rec)
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "student", user["role"])
	assert.Equal(t, []string{shared.ActionRegister}, f.actions.actions)
}

func TestRegisterWeakPassword(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/register",
		`{"userid":"newkid","email":"new@example.com","password":"alllowercase1","password_confirm":"alllowercase1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, shared.CodeValidationError, body["code"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "password_strength", fields["Password"])
}

func TestRegisterPasswordConfirmMismatch(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/register",
		`{"userid":"newkid","email":"new@example.com","password":"Secret#123","password_confirm":"Other#456"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, shared.CodeValidationError, body["code"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "eqfield", fields["PasswordConfirm"])
	assert.Empty(t, f.actions.actions)
}

func TestRegisterDuplicateUserID(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/register",
		`{"userid":"stud1","email":"dup@example.com","password":"Secret#123","password_confirm":"Secret#123"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["message"], "already exists")
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	key, err := f.opaque.Ensure(context.Background(), 7)
	require.NoError(t, err)

	rec := f.do(&users.User{ID: 7, UserID: "stud1"}, "/api/v1/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = f.opaque.Find(context.Background(), key)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
	assert.Equal(t, []string{shared.ActionLogout}, f.actions.actions)
}

func TestLogoutWithoutCredentialIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.actions.actions)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	key, err := f.opaque.Ensure(context.Background(), 7)
	require.NoError(t, err)
	principal := &users.User{ID: 7, UserID: "stud1", Role: rbac.RoleStudent}

	rec := f.do(principal, "/api/v1/auth/change-password",
		`{"current_password":"Secret#123","new_password":"Fresh#456","new_password_confirm":"Fresh#456"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, users.VerifyPassword(stored.PasswordHash, "Fresh#456"))

	// existing opaque sessions are revoked with the old credential
	_, err = f.opaque.Find(context.Background(), key)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
	assert.Equal(t, []string{shared.ActionChangePassword}, f.actions.actions)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture(t)
	principal := &users.User{ID: 7, UserID: "stud1"}

	rec := f.do(principal, "/api/v1/auth/change-password",
		`{"current_password":"nope","new_password":"Fresh#456","new_password_confirm":"Fresh#456"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeJSON(t, rec)["message"], "current password")

	// The rejected attempt is still audited, marked unsuccessful.
	require.Len(t, f.actions.events, 1)
	assert.Equal(t, shared.ActionChangePassword, f.actions.events[0].Action)
	assert.False(t, f.actions.events[0].Success)
}

func TestChangePasswordConfirmMismatch(t *testing.T) {
	f := newAuthFixture(t)
	principal := &users.User{ID: 7, UserID: "stud1"}

	rec := f.do(principal, "/api/v1/auth/change-password",
		`{"current_password":"Secret#123","new_password":"New#Pass1","new_password_confirm":"Different#2"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, shared.CodeValidationError, body["code"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "eqfield", fields["NewPasswordConfirm"])

	// Password stays untouched when the confirmation does not match.
	stored, err := f.repo.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, users.VerifyPassword(stored.PasswordHash, "Secret#123"))
}

func TestChangePasswordRequiresCredential(t *testing.T) {
	f := newAuthFixture(t)

	rec := f.do(nil, "/api/v1/auth/change-password",
		`{"current_password":"Secret#123","new_password":"Fresh#456","new_password_confirm":"Fresh#456"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
