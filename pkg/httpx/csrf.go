package httpx

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HeaderCSRF carries the double-submit token on unsafe requests. Plain HTML
// forms that cannot set headers post it as FormFieldCSRF instead.
const (
	HeaderCSRF    = "X-XSRF-TOKEN"
	FormFieldCSRF = "_csrf"
)

var (
	ErrCSRFOrigin   = errors.New("httpx: request origin not allowed")
	ErrCSRFMissing  = errors.New("httpx: csrf token missing")
	ErrCSRFMismatch = errors.New("httpx: csrf token mismatch")
)

// CSRFGuard implements the double-submit cookie pattern plus an origin
// check. Session validation still runs separately.
type CSRFGuard struct {
	origin  string // scheme://host[:port]
	host    string
	cookies Cookies
	maxAge  time.Duration
}

// NewCSRFGuard trusts exactly one origin, e.g. "https://requests.example.com".
func NewCSRFGuard(origin string, cookies Cookies) (*CSRFGuard, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("httpx: csrf origin must be scheme://host[:port]")
	}
	return &CSRFGuard{
		origin:  u.Scheme + "://" + strings.ToLower(u.Host),
		host:    strings.ToLower(u.Host),
		cookies: cookies,
		maxAge:  365 * 24 * time.Hour,
	}, nil
}

// Issue sets the XSRF-TOKEN cookie on any request that does not have one.
func (g *CSRFGuard) Issue() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(CookieCSRF); err != nil || c.Value == "" {
				token := newCSRFToken()
				g.cookies.SetReadable(w, CookieCSRF, token, g.maxAge)
				r.AddCookie(&http.Cookie{Name: CookieCSRF, Value: token})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require rejects unsafe requests that fail Check with 403 invalid_challenge.
func (g *CSRFGuard) Require() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Check(r); err != nil {
				WriteError(w, http.StatusForbidden, "invalid_challenge", "csrf check failed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Check validates an unsafe request. Safe methods always pass.
func (g *CSRFGuard) Check(r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return nil
	}

	// Bearer-only requests carry no ambient credentials.
	if _, err := r.Cookie(CookieSession); err != nil && r.Header.Get("Authorization") != "" {
		return nil
	}

	if err := g.checkOrigin(r); err != nil {
		return err
	}

	c, err := r.Cookie(CookieCSRF)
	submitted := r.Header.Get(HeaderCSRF)
	if submitted == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		submitted = r.PostFormValue(FormFieldCSRF)
	}
	if err != nil || c.Value == "" || submitted == "" {
		return ErrCSRFMissing
	}
	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(submitted)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

// checkOrigin uses Origin, then Referer, then Host.
func (g *CSRFGuard) checkOrigin(r *http.Request) error {
	if origin := r.Header.Get("Origin"); origin != "" {
		if strings.EqualFold(strings.TrimRight(origin, "/"), g.origin) {
			return nil
		}
		return ErrCSRFOrigin
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		u, err := url.Parse(ref)
		if err == nil && strings.EqualFold(u.Scheme+"://"+u.Host, g.origin) {
			return nil
		}
		return ErrCSRFOrigin
	}
	if strings.EqualFold(r.Host, g.host) {
		return nil
	}
	return ErrCSRFOrigin
}

func newCSRFToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
