package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/authsdk"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// writeError maps err onto its wire form. Server errors are logged; every
// other code is an expected outcome.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := authsdk.FromError(err)
	if apiErr.Code == authsdk.ErrorCodeServerError {
		slogx.FromContext(r.Context()).ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	apiErr.WriteError(w)
}

// redirectError sends a browser flow back to path with ?error=<code>.
func redirectError(w http.ResponseWriter, r *http.Request, path string, err error) {
	apiErr := authsdk.FromError(err)
	if apiErr.Code == authsdk.ErrorCodeServerError {
		slogx.FromContext(r.Context()).ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	if s := apiErr.RetryAfterSeconds(); s > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(s))
	}
	httpx.NoCache(w)
	http.Redirect(w, r, path+"?error="+url.QueryEscape(apiErr.Code), http.StatusFound)
}

// safeNext keeps post-login redirects on this site. Anything that is not a
// plain absolute path becomes "/".
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	if strings.ContainsAny(next, "\r\n\t") {
		return "/"
	}
	return next
}

func untilCookie(t time.Time) time.Duration {
	d := time.Until(t)
	if d < time.Second {
		return time.Second
	}
	return d
}

// principal returns the authenticated caller. Routes using it are always
// behind httpx.Authenticate.
func principal(r *http.Request) (httpx.Principal, bool) {
	return httpx.PrincipalFrom(r.Context())
}

func principalIdentity(p httpx.Principal) *domain.Identity {
	return &domain.Identity{
		AccountID: p.AccountID,
		Username:  p.Username,
		Groups:    p.Groups,
		SessionID: p.SessionID,
		AMR:       p.AMR,
	}
}

// rateLimit counts one call against key and returns a RateLimitedError when
// the policy is exhausted. Limiter failures fail open and are logged.
func rateLimit(ctx context.Context, l guard.Limiter, key string, p guard.RatePolicy) error {
	if l == nil || p.Max <= 0 {
		return nil
	}
	res, err := guard.Allow(ctx, l, key, p)
	if err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "rate limiter unavailable", "err", err)
		return nil
	}
	if !res.OK {
		return &domain.RateLimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}
