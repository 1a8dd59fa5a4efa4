package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	service := NewTokenService("test-secret", time.Hour)

	token, err := service.GenerateToken(RoleOperator)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.GenerateToken(RoleOperator)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	service := NewTokenService("test-secret", time.Nanosecond)

	token, err := service.GenerateToken(RoleOperator)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenRejectsGarbage(t *testing.T) {
	service := NewTokenService("test-secret", time.Hour)

	_, err := service.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestGenerateTokenRequiresRole(t *testing.T) {
	service := NewTokenService("test-secret", time.Hour)

	_, err := service.GenerateToken("")
	assert.Error(t, err)
}
