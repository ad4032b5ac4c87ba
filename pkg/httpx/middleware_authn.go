package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// Authenticator resolves a session token to a principal. Every failure
// must be reported the same way; the reason is only for logs.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// TokenFromRequest reads the session cookie, falling back to a bearer token
// for API clients.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Authenticate rejects requests without a valid session with a uniform 401.
func Authenticate(a Authenticator, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := TokenFromRequest(r, cookieName)
			if token == "" {
				WriteUnauthenticated(w)
				return
			}

			p, err := a.Authenticate(ctx, token)
			if err != nil {
				slogx.AuthDebug(ctx, "session rejected", "err", err)
				WriteUnauthenticated(w)
				return
			}

			ctx = slogx.WithAccount(ctx, p.AccountID, p.SessionID)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// OptionalAuthenticate attaches a principal when the request carries a valid
// session and otherwise passes the request through untouched.
func OptionalAuthenticate(a Authenticator, cookieName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token := TokenFromRequest(r, cookieName); token != "" {
				if p, err := a.Authenticate(ctx, token); err == nil {
					ctx = slogx.WithAccount(ctx, p.AccountID, p.SessionID)
					r = r.WithContext(WithPrincipal(ctx, p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole lets the request through if the principal is in any of groups.
func RequireRole(groups ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				WriteUnauthenticated(w)
				return
			}
			if !p.InGroup(groups...) {
				WriteError(w, http.StatusForbidden, "forbidden", "insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
