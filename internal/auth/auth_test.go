package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, CheckPassword("s3cret", hash))
	require.False(t, CheckPassword("wrong", hash))
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-signing-secret")
	token, err := svc.GenerateToken("admin", "admin")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Subject)
	require.Equal(t, "admin", claims.Role)
}

func TestJWTRejectsTamperedSecret(t *testing.T) {
	svc := NewJWTService("secret-a")
	token, err := svc.GenerateToken("admin", "admin")
	require.NoError(t, err)

	other := NewJWTService("secret-b")
	_, err = other.ValidateToken(token)
	require.Error(t, err)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	svc := &JWTService{secret: []byte("x"), ttl: -time.Minute}
	token, err := svc.GenerateToken("admin", "admin")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestCheckSharedSecret(t *testing.T) {
	require.True(t, CheckSharedSecret("abc123", "abc123"))
	require.False(t, CheckSharedSecret("abc123", "abc124"))
	require.False(t, CheckSharedSecret("", "abc123"))
	require.False(t, CheckSharedSecret("abc123", ""))
}
