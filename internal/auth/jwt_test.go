package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTripCarriesTenant(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()

	token, err := svc.Generate(id, "a@acme.test", "sales", "acme")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "sales", claims.Role)
	assert.Equal(t, "acme", claims.Tenant)
}

func TestJWTRejectsForeignSecretAndExpiry(t *testing.T) {
	token, err := NewJWTService("other", 1).Generate(uuid.New(), "a@acme.test", "sales", "acme")
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewJWTService("secret", -1).Generate(uuid.New(), "a@acme.test", "sales", "acme")
	require.NoError(t, err)
	_, err = NewJWTService("secret", 1).Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRequiresTenantClaim(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate(uuid.New(), "a@acme.test", "sales", "")
	require.NoError(t, err)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
