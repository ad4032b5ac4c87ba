package http

import (
	"net/http"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// authCookies are cleared on logout.
var authCookies = []string{
	httpx.CookieSession,
	httpx.CookieMFAToken,
	httpx.CookieOAuthState,
	httpx.CookieOAuthVerifier,
	httpx.CookieWebAuthnChallenge,
}

// LogoutHandler revokes the current session.
type LogoutHandler struct {
	Accounts   *service.AccountService
	Handshakes *service.HandshakeManager
	Cookies    httpx.Cookies

	meta func(*http.Request) domain.RequestMeta
}

// ServeHTTP handles GET /logout
//
//	@Summary		Log out
//	@Description	Revokes the current session and clears every auth cookie. With ?provider= the browser is sent on to
//	@Description	that provider's end-session endpoint when it has one.
//	@Tags			Login
//	@Param			provider	query	string	false	"External provider to sign out of"
//	@Success		302			"Redirect to /login or the provider's end-session endpoint"
//	@Router			/logout [get].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if p, ok := principal(r); ok {
		if err := h.Accounts.Logout(ctx, *principalIdentity(p), h.meta(r)); err != nil {
			slogx.FromContext(ctx).ErrorContext(ctx, "logout failed", "err", err)
		}
	}
	for _, name := range authCookies {
		h.Cookies.Clear(w, name)
	}

	target := "/login"
	if provider := r.URL.Query().Get("provider"); provider != "" && h.Handshakes != nil {
		end, err := h.Handshakes.EndSessionURL(ctx, provider)
		if err != nil {
			slogx.FromContext(ctx).WarnContext(ctx, "end session lookup failed", "provider", provider, "err", err)
		} else if end != "" {
			target = end
		}
	}

	httpx.NoCache(w)
	http.Redirect(w, r, target, http.StatusFound)
}
