package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return &JWTService{
		secretKey: []byte("test-secret-key"),
		expiry:    time.Hour,
	}
}

func TestNewJWTService(t *testing.T) {
	service := NewJWTService()

	assert.NotNil(t, service)
	assert.NotEmpty(t, service.secretKey)
	assert.Equal(t, 12*time.Hour, service.expiry)
}

func TestJWTService_GenerateAndValidateToken(t *testing.T) {
	service := newTestJWTService()

	token, err := service.GenerateToken("SHOP1", "shop1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "SHOP1", claims.MerchantID)
	assert.Equal(t, "shop1", claims.Username)
	assert.NotZero(t, claims.LastLogin)
	assert.Equal(t, "SHOP1", claims.Issuer)
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "empty", token: ""},
		{name: "truncated", token: "eyJhbGciOiJIUzI1NiJ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateToken_WrongKey(t *testing.T) {
	service := newTestJWTService()

	token, err := service.GenerateToken("SHOP1", "shop1")
	require.NoError(t, err)

	other := &JWTService{secretKey: []byte("different-secret"), expiry: time.Hour}
	claims, err := other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := &JWTService{
		secretKey: []byte("test-secret-key"),
		expiry:    -time.Hour, // Already expired on issue
	}

	token, err := service.GenerateToken("SHOP1", "shop1")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_MissingMerchant(t *testing.T) {
	service := newTestJWTService()

	token, err := service.GenerateToken("", "shop1")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrMissingMerchant)
	assert.Nil(t, claims)
}

func TestJWTService_RefreshToken(t *testing.T) {
	service := newTestJWTService()

	token, err := service.GenerateToken("SHOP1", "shop1")
	require.NoError(t, err)

	refreshed, err := service.RefreshToken(token)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed)

	claims, err := service.ValidateToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "SHOP1", claims.MerchantID)
	assert.Equal(t, "shop1", claims.Username)
}

func TestJWTService_RefreshToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	refreshed, err := service.RefreshToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, refreshed)
}

func TestJWTService_ExtractMerchantID(t *testing.T) {
	service := newTestJWTService()

	token, err := service.GenerateToken("SHOP1", "shop1")
	require.NoError(t, err)

	merchantID, err := service.ExtractMerchantID(token)
	require.NoError(t, err)
	assert.Equal(t, "SHOP1", merchantID)

	_, err = service.ExtractMerchantID("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
