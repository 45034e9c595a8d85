package auth

import (
	"context"
	"errors"

	"lighthouse-crm/pkg/logger"
)

type ctxKey int

const (
	ctxPrincipal ctxKey = iota
	ctxCredential
)

// Gin context keys shared with the request logger.
const (
	KeyAccountID = logger.KeyAccountID
	KeyOrgID     = logger.KeyOrgID
)

var ErrNoPrincipal = errors.New("auth: principal not in context")

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipal, p)
}

func PrincipalFrom(ctx context.Context) (Principal, error) {
	if p, ok := ctx.Value(ctxPrincipal).(Principal); ok && p.Account.ID != "" {
		return p, nil
	}
	return Principal{}, ErrNoPrincipal
}

func withCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, ctxCredential, credential)
}

// Credential returns the bearer credential the request authenticated with.
func Credential(ctx context.Context) string {
	s, _ := ctx.Value(ctxCredential).(string)
	return s
}
