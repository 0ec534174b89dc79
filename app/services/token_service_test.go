package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenSecret = "test-secret-key-for-jwt-signing-32-chars"

func createTestTokenService(t *testing.T, ttl time.Duration) TokenService {
	t.Helper()
	service, err := NewTokenService(testTokenSecret, ttl, "wanotifier")
	require.NoError(t, err)
	return service
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		secretKey   string
		expectError bool
	}{
		{
			name:        "valid secret",
			secretKey:   testTokenSecret,
			expectError: false,
		},
		{
			name:        "secret too short",
			secretKey:   "short",
			expectError: true,
		},
		{
			name:        "empty secret",
			secretKey:   "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(tt.secretKey, time.Hour, "wanotifier")
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	service := createTestTokenService(t, time.Hour)

	token, err := service.GenerateToken(42, "acme.myshopify.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.MerchantID)
	assert.Equal(t, "acme.myshopify.com", claims.Shop)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestValidateTokenExpired(t *testing.T) {
	service := createTestTokenService(t, -time.Minute)

	token, err := service.GenerateToken(42, "acme.myshopify.com")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateTokenInvalid(t *testing.T) {
	service := createTestTokenService(t, time.Hour)

	t.Run("garbage token", func(t *testing.T) {
		_, err := service.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other, err := NewTokenService("another-secret-key-for-jwt-signing-32ch", time.Hour, "wanotifier")
		require.NoError(t, err)

		token, err := other.GenerateToken(42, "acme.myshopify.com")
		require.NoError(t, err)

		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("tampered token", func(t *testing.T) {
		token, err := service.GenerateToken(42, "acme.myshopify.com")
		require.NoError(t, err)

		_, err = service.ValidateToken(token + "x")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
