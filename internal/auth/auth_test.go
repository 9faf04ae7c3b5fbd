package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/config"
)

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	a, err := New(config.AuthConfig{
		JWTSecret: "test-secret-test-secret-test-secret",
		TokenTTL:  time.Hour,
		Users: []config.CredentialSpec{
			{Username: "alice", PasswordHash: hash, Role: RoleAdmin, RateTier: "enterprise"},
			{Username: "bob", PasswordHash: hash, Role: RoleUser, RateTier: "free"},
		},
	}, nil)
	require.NoError(t, err)
	return a
}

func TestRequiresSecret(t *testing.T) {
	_, err := New(config.AuthConfig{}, nil)
	assert.Error(t, err)
}

func TestLoginRoundTrip(t *testing.T) {
	a := testAuthenticator(t)

	token, err := a.Login("alice", "hunter2")
	require.NoError(t, err)

	p, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, RoleAdmin, p.Role)
	assert.Equal(t, "enterprise", p.RateTier)
	assert.True(t, p.Admin())
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	a := testAuthenticator(t)

	_, err := a.Login("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	a := testAuthenticator(t)

	_, err := a.Login("mallory", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	a := testAuthenticator(t)

	_, err := a.VerifyToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a := testAuthenticator(t)
	other, err := New(config.AuthConfig{JWTSecret: "a completely different secret"}, nil)
	require.NoError(t, err)

	token, err := a.IssueToken("bob", RoleUser, "free", time.Hour)
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	a := testAuthenticator(t)

	token, err := a.IssueToken("bob", RoleUser, "free", time.Minute)
	require.NoError(t, err)

	a.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = a.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueTokenDefaults(t *testing.T) {
	a := testAuthenticator(t)

	token, err := a.IssueToken("carol", "", "", time.Hour)
	require.NoError(t, err)

	p, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, p.Role)
	assert.Equal(t, "free", p.RateTier)
	assert.False(t, p.Admin())
}
