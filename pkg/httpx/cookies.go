package httpx

import (
	"net/http"
	"time"
)

// Cookie names used by the auth flows.
const (
	CookieSession           = "marquee_session"
	CookieCSRF              = "XSRF-TOKEN"
	CookieOAuthState        = "oauth_state"
	CookieOAuthVerifier     = "oauth_verifier"
	CookieWebAuthnChallenge = "webauthn_challenge_id"
	CookieMFAToken          = "mfa_token"
)

// Cookies writes cookies with the deployment's domain and Secure setting.
type Cookies struct {
	Domain string
	Secure bool
}

// Set writes an httpOnly, SameSite=Lax cookie on "/". A zero maxAge makes
// a browser-session cookie.
func (c Cookies) Set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, c.cookie(name, value, maxAge, true))
}

// SetReadable is Set without httpOnly, for values scripts must read.
func (c Cookies) SetReadable(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, c.cookie(name, value, maxAge, false))
}

// Clear expires name. When a domain is configured both the domain cookie and
// any host-only cookie left from an earlier configuration are cleared.
func (c Cookies) Clear(w http.ResponseWriter, name string) {
	expired := c.cookie(name, "", 0, true)
	expired.MaxAge = -1
	expired.Expires = time.Unix(0, 0)
	http.SetCookie(w, expired)

	if c.Domain != "" {
		hostOnly := *expired
		hostOnly.Domain = ""
		http.SetCookie(w, &hostOnly)
	}
}

func (c Cookies) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.MaxAge = int(maxAge / time.Second)
		ck.Expires = time.Now().Add(maxAge)
	}
	return ck
}
