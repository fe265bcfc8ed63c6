package auth

import (
	"context"
	"errors"
)

type ctxKey int

const principalKey ctxKey = 1

var ErrPrincipalAlreadySet = errors.New("principal already attached to request")

// WithPrincipal returns a child context carrying p. A context holds at most
// one principal; attaching a second one is refused.
func WithPrincipal(ctx context.Context, p Principal) (context.Context, error) {
	if _, ok := PrincipalFrom(ctx); ok {
		return ctx, ErrPrincipalAlreadySet
	}
	return context.WithValue(ctx, principalKey, p), nil
}

// PrincipalFrom returns the principal attached by the authentication gateway
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
