package httpx

import (
	"context"
	"slices"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	AccountID string
	Username  string
	Groups    []string
	SessionID string
	AMR       []string
}

// InGroup reports whether the principal belongs to any of groups.
func (p Principal) InGroup(groups ...string) bool {
	for _, g := range groups {
		if slices.Contains(p.Groups, g) {
			return true
		}
	}
	return false
}

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the principal set by Authenticate, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
