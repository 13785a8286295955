package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue(42, "cs23btech1001", RoleStudent, "classtrack", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, "test-key", "classtrack")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "cs23btech1001", claims.Subject)
	assert.Equal(t, RoleStudent, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue(1, "admin", RoleAdmin, "classtrack", "key-a", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "key-b", "classtrack")
	assert.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue(1, "admin", RoleAdmin, "other-app", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "classtrack")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue(1, "admin", RoleAdmin, "classtrack", "test-key", -time.Minute, -time.Minute)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "test-key", "classtrack")
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
