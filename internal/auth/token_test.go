package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/userservice/internal/rbac"
	"github.com/campuskit/userservice/internal/shared"
	"github.com/campuskit/userservice/internal/users"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenConfig{
		Secret:     testSecret,
		Algorithm:  "HS256",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func tokenUser() *users.User {
	return &users.User{ID: 7, UserID: "stud1", Role: rbac.RoleStudent, IsActive: true}
}

func TestNewTokenManagerConfig(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{Algorithm: "HS256"})
	assert.Error(t, err)

	_, err = NewTokenManager(TokenConfig{Secret: testSecret, Algorithm: "RS256"})
	assert.Error(t, err)

	for _, alg := range []string{"", "HS256", "HS384", "HS512"} {
		_, err = NewTokenManager(TokenConfig{Secret: testSecret, Algorithm: alg})
		assert.NoError(t, err, alg)
	}
}

func TestIssuePairClaims(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.IssuePair(tokenUser())
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.EqualValues(t, (15 * time.Minute).Seconds(), pair.ExpiresIn)

	access, err := m.Verify(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.EqualValues(t, 7, access.UserID)
	assert.Equal(t, "stud1", access.UserIdentity)
	assert.Equal(t, rbac.RoleStudent, access.Role)
	assert.Equal(t, TokenTypeAccess, access.Type)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), access.ExpiresAt, 5*time.Second)

	// refresh tokens carry only the id, not identity or role
	refresh, err := m.Verify(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.EqualValues(t, 7, refresh.UserID)
	assert.Empty(t, refresh.UserIdentity)
	assert.Empty(t, refresh.Role)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	m := newTestManager(t)
	pair, err := m.IssuePair(tokenUser())
	require.NoError(t, err)

	_, err = m.Verify(pair.AccessToken, TokenTypeRefresh)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)

	_, err = m.Verify(pair.RefreshToken, TokenTypeAccess)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	m, err := NewTokenManager(TokenConfig{
		Secret:     testSecret,
		AccessTTL:  -time.Minute,
		RefreshTTL: -time.Minute,
	})
	require.NoError(t, err)

	pair, err := m.IssuePair(tokenUser())
	require.NoError(t, err)

	_, err = m.Verify(pair.AccessToken, TokenTypeAccess)
	assert.ErrorIs(t, err, shared.ErrTokenExpired)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	m := newTestManager(t)
	other, err := NewTokenManager(TokenConfig{
		Secret:    []byte("ffffffffffffffffffffffffffffffff"),
		AccessTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	pair, err := other.IssuePair(tokenUser())
	require.NoError(t, err)

	_, err = m.Verify(pair.AccessToken, TokenTypeAccess)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	for _, raw := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		_, err := m.Verify(raw, TokenTypeAccess)
		assert.ErrorIs(t, err, shared.ErrInvalidToken, raw)
	}
}
