package httpserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlab/cardsmith/internal/domain"
)

func TestHashPassword_Roundtrip(t *testing.T) {
	t.Parallel()
	encoded, err := HashPassword("hunter2", DefaultArgon2Params())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "argon2id$"))
	assert.True(t, VerifyPassword("hunter2", encoded))
	assert.False(t, VerifyPassword("hunter3", encoded))
}

func TestVerifyPassword_MalformedEncodings(t *testing.T) {
	t.Parallel()
	assert.False(t, VerifyPassword("x", "not-a-hash"))
	assert.False(t, VerifyPassword("x", "argon2id$3$65536$2$only-four"))
	assert.False(t, VerifyPassword("x", "argon2id$nan$65536$2$c2FsdA$aGFzaA"))
}

func TestVerifyCredential_PlainFallback(t *testing.T) {
	t.Parallel()
	assert.True(t, VerifyCredential("dev-secret", "dev-secret"))
	assert.False(t, VerifyCredential("wrong", "dev-secret"))

	encoded, err := HashPassword("prod-secret", DefaultArgon2Params())
	require.NoError(t, err)
	assert.True(t, VerifyCredential("prod-secret", encoded))
	assert.False(t, VerifyCredential("dev-secret", encoded))
}

func TestTokenManager_IssueValidate(t *testing.T) {
	t.Parallel()
	m := NewTokenManager("test-secret", time.Hour)

	token, expires := m.Issue("sess-abc123")
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	sessionID, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "sess-abc123", sessionID)
}

func TestTokenManager_Expired(t *testing.T) {
	t.Parallel()
	m := NewTokenManager("test-secret", 0)
	token, _ := m.Issue("sess-abc123")

	_, err := m.Validate(token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenManager_TamperedSignature(t *testing.T) {
	t.Parallel()
	m := NewTokenManager("test-secret", time.Hour)
	token, _ := m.Issue("sess-abc123")

	tampered := token[:len(token)-2] + "xx"
	_, err := m.Validate(tampered)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.NotErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	t.Parallel()
	token, _ := NewTokenManager("secret-a", time.Hour).Issue("sess-abc123")
	_, err := NewTokenManager("secret-b", time.Hour).Validate(token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestTokenManager_Malformed(t *testing.T) {
	t.Parallel()
	m := NewTokenManager("test-secret", time.Hour)
	for _, token := range []string{"", "nodot", "a.b", "!!!.sig"} {
		_, err := m.Validate(token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated, "token %q", token)
	}
}
