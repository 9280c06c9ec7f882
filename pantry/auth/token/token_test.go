package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("s", 32))

func TestNewManager_Config(t *testing.T) {
	_, err := NewManager(Config{Secret: []byte("short")})
	assert.ErrorIs(t, err, ErrShortSecret)

	_, err = NewManager(Config{Secret: testSecret, TTL: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidTTL)

	_, err = NewManager(Config{Secret: testSecret, Leeway: time.Hour})
	assert.ErrorIs(t, err, ErrInvalidLeeway)

	m, err := NewManager(Config{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, m.TTL())
}

func TestIssueAndParse(t *testing.T) {
	m, err := NewManager(Config{Secret: testSecret, Issuer: "docverify", Audience: "web", TTL: 15 * time.Minute})
	require.NoError(t, err)

	tok, exp, err := m.Issue("user-1", "owner@example.com", "owner", "email")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.Equal(t, "owner", claims.Role)
	assert.Equal(t, "email", claims.Provider)
	assert.Equal(t, "docverify", claims.Issuer)
}

func TestParse_Rejects(t *testing.T) {
	m, err := NewManager(Config{Secret: testSecret, Issuer: "docverify"})
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other, err := NewManager(Config{Secret: []byte(strings.Repeat("x", 32)), Issuer: "docverify"})
		require.NoError(t, err)
		tok, _, err := other.Issue("u", "", "", "")
		require.NoError(t, err)
		_, err = m.Parse(tok)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		past, err := NewManager(Config{Secret: testSecret, Issuer: "docverify", TTL: time.Minute})
		require.NoError(t, err)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, _, err := past.Issue("u", "", "", "")
		require.NoError(t, err)
		_, err = m.Parse(tok)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewManager(Config{Secret: testSecret, Issuer: "someone-else"})
		require.NoError(t, err)
		tok, _, err := other.Issue("u", "", "", "")
		require.NoError(t, err)
		_, err = m.Parse(tok)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not.a.token")
		assert.Error(t, err)
	})
}

func TestParseUnverified(t *testing.T) {
	m, err := NewManager(Config{Secret: testSecret})
	require.NoError(t, err)
	tok, exp, err := m.Issue("u-2", "v@example.com", "validator", "github")
	require.NoError(t, err)

	claims, err := ParseUnverified(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-2", claims.Subject)
	assert.Equal(t, "validator", claims.Role)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())

	_, err = ParseUnverified("nope")
	assert.Error(t, err)
}
