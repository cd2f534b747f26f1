package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Sign(42, "alice", time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("secret-a").Sign(1, "bob", time.Minute)
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").Verify(token)
	assert.Error(t, err)
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign(1, "bob", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifierRejectsMissingUserID(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierRejectsNonHMACToken(t *testing.T) {
	v := NewVerifier("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Username: "eve"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	token, err = BearerToken("bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = BearerToken("")
	assert.Error(t, err)

	_, err = BearerToken("Token abc")
	assert.Error(t, err)

	_, err = BearerToken("Bearer")
	assert.Error(t, err)
}
