package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator verifies an HS256 bearer token from the context and
// returns its subject as the account.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// JWTOption configures a JWTAuthenticator.
type JWTOption func(*JWTAuthenticator)

// WithIssuer requires the token's iss claim to match.
func WithIssuer(issuer string) JWTOption {
	return func(a *JWTAuthenticator) { a.issuer = issuer }
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(a *JWTAuthenticator) { a.leeway = d }
}

// WithTimeFunc sets the clock used for expiry checks.
func WithTimeFunc(now func() time.Time) JWTOption {
	return func(a *JWTAuthenticator) { a.now = now }
}

// NewJWTAuthenticator creates an authenticator for tokens signed with secret.
func NewJWTAuthenticator(secret []byte, opts ...JWTOption) *JWTAuthenticator {
	a := &JWTAuthenticator{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(ctx context.Context) (string, error) {
	raw, ok := TokenFrom(ctx)
	if !ok {
		return "", ErrUnauthorized
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("%w: malformed token", ErrUnauthorized)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("%w: token expired", ErrUnauthorized)
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return "", fmt.Errorf("%w: token not valid yet", ErrUnauthorized)
		}
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// Issue signs a token for account valid for ttl. It is meant for tests and
// for hosts that mint their own tokens.
func (a *JWTAuthenticator) Issue(account string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   account,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
