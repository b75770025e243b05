// Package auth resolves the account behind a request. The engine asks an
// Authenticator for the caller on every mutating operation; it never
// inspects credentials itself.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthorized is returned when no authenticated account can be
// resolved from the context.
var ErrUnauthorized = errors.New("parking: unauthorized")

// Authenticator yields the account identifier of the caller.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (string, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context) (string, error) {
	return f(ctx)
}

type ctxKey int

const (
	accountKey ctxKey = iota
	tokenKey
)

// WithAccount returns a context carrying an already authenticated account.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFrom returns the account set by WithAccount.
func AccountFrom(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountKey).(string)
	return account, ok && account != ""
}

// WithToken returns a context carrying a bearer token. A leading
// "Bearer " is stripped.
func WithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFrom returns the token set by WithToken.
func TokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

// ContextAuthenticator trusts the account placed in the context by an
// upstream layer (middleware, a test, a host framework).
type ContextAuthenticator struct{}

// Authenticate implements Authenticator.
func (ContextAuthenticator) Authenticate(ctx context.Context) (string, error) {
	if account, ok := AccountFrom(ctx); ok {
		return account, nil
	}
	return "", ErrUnauthorized
}
