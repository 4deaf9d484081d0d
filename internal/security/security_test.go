package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("grimpe-en-tete")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(hash), "$argon2id$"))

	ok, err := VerifyPassword("grimpe-en-tete", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("moulinette", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHostToken(t *testing.T) {
	raw, err := GenerateHostToken("secret", 42, "member-token", true, time.Hour)
	require.NoError(t, err)

	claims, err := ParseHostToken(raw, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "member-token", claims.MemberToken)
	assert.True(t, claims.Remember)

	_, err = ParseHostToken(raw, "other-secret")
	assert.Error(t, err)
}

func TestExpiredHostTokenRejected(t *testing.T) {
	raw, err := GenerateHostToken("secret", 42, "", false, -time.Minute)
	require.NoError(t, err)

	claims, err := ParseHostToken(raw, "secret")
	assert.ErrorIs(t, err, ErrHostTokenExpired)
	require.NotNil(t, claims)
	assert.Equal(t, int64(42), claims.UserID)

	_, err = ParseHostToken(raw, "other-secret")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrHostTokenExpired)
}

func TestSessionTokenHash(t *testing.T) {
	token, hash, err := GenerateSessionToken(32)
	require.NoError(t, err)
	assert.Len(t, token, 43)
	assert.Equal(t, HashToken(token), hash)
	assert.Len(t, hash, 64)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("s", "ip", "203.0.113.5")
	assert.Equal(t, a, Fingerprint("s", "ip", " 203.0.113.5 "))
	assert.NotEqual(t, a, Fingerprint("s", "ua", "203.0.113.5"))
	assert.NotEqual(t, a, Fingerprint("t", "ip", "203.0.113.5"))
}

func TestObfuscateID(t *testing.T) {
	a := ObfuscateID("s", 7)
	assert.Equal(t, a, ObfuscateID("s", 7))
	assert.NotEqual(t, a, ObfuscateID("s", 8))
}
