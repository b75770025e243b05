package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking/auth"
)

func TestContextAuthenticator(t *testing.T) {
	var a auth.ContextAuthenticator

	_, err := a.Authenticate(context.Background())
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = a.Authenticate(auth.WithAccount(context.Background(), ""))
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	account, err := a.Authenticate(auth.WithAccount(context.Background(), "alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", account)
}

func TestAuthenticatorFunc(t *testing.T) {
	var a auth.Authenticator = auth.AuthenticatorFunc(func(context.Context) (string, error) {
		return "svc", nil
	})
	account, err := a.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "svc", account)
}

func TestWithTokenStripsBearer(t *testing.T) {
	ctx := auth.WithToken(context.Background(), "  Bearer abc.def.ghi ")
	token, ok := auth.TokenFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestJWTAuthenticator(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	secret := []byte("test-secret")
	a := auth.NewJWTAuthenticator(secret, auth.WithIssuer("parking"), auth.WithTimeFunc(clock))

	valid, err := a.Issue("bob", time.Hour)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		account, err := a.Authenticate(auth.WithToken(context.Background(), "Bearer "+valid))
		require.NoError(t, err)
		assert.Equal(t, "bob", account)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := a.Authenticate(context.Background())
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := a.Authenticate(auth.WithToken(context.Background(), "not-a-jwt"))
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("expired token", func(t *testing.T) {
		later := auth.NewJWTAuthenticator(secret, auth.WithIssuer("parking"),
			auth.WithTimeFunc(func() time.Time { return now.Add(2 * time.Hour) }))
		_, err := later.Authenticate(auth.WithToken(context.Background(), valid))
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := auth.NewJWTAuthenticator([]byte("other"), auth.WithIssuer("parking"), auth.WithTimeFunc(clock))
		_, err := other.Authenticate(auth.WithToken(context.Background(), valid))
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := auth.NewJWTAuthenticator(secret, auth.WithIssuer("elsewhere"), auth.WithTimeFunc(clock))
		_, err := other.Authenticate(auth.WithToken(context.Background(), valid))
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("no subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Issuer:    "parking",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		signed, err := token.SignedString(secret)
		require.NoError(t, err)
		_, err = a.Authenticate(auth.WithToken(context.Background(), signed))
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("other algorithm rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "mallory",
			Issuer:    "parking",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		signed, err := token.SignedString(secret)
		require.NoError(t, err)
		_, err = a.Authenticate(auth.WithToken(context.Background(), signed))
		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})
}
