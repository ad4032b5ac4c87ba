package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/authsdk"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// SSOHandler runs external provider handshakes.
type SSOHandler struct {
	Handshakes *service.HandshakeManager
	Accounts   *service.AccountService
	Guard      guard.Limiter
	Rate       guard.RatePolicy
	Cookies    httpx.Cookies

	clientIP httpx.KeyExtractor
	meta     func(*http.Request) domain.RequestMeta
}

func (h *SSOHandler) allow(r *http.Request) error {
	return rateLimit(r.Context(), h.Guard, "sso:"+h.clientIP(r), h.Rate)
}

// setHandshakeCookies binds the handshake to this browser.
func (h *SSOHandler) setHandshakeCookies(w http.ResponseWriter, start service.HandshakeStart) {
	h.Cookies.Set(w, httpx.CookieOAuthState, start.State, domain.HandshakeMaxAge)
	if start.PKCE {
		h.Cookies.Set(w, httpx.CookieOAuthVerifier, start.State, domain.HandshakeMaxAge)
	}
}

// HandleLogin handles GET /sso/login
//
//	@Summary		Start an external login
//	@Description	Redirects to the provider's authorization endpoint with state, nonce and PKCE parameters.
//	@Tags			SSO
//	@Param			provider	query	string	true	"Configured provider name"
//	@Param			next		query	string	false	"Path to return to after login"
//	@Param			login_hint	query	string	false	"Username, required by Duo"
//	@Success		302			"Redirect to the provider"
//	@Failure		302			"Redirect to /login?error=..."
//	@Router			/sso/login [get].
func (h *SSOHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := h.allow(r); err != nil {
		redirectError(w, r, "/login", err)
		return
	}
	q := r.URL.Query()
	start, err := h.Handshakes.StartLogin(r.Context(), q.Get("provider"), safeNext(q.Get("next")), q.Get("login_hint"))
	if err != nil {
		redirectError(w, r, "/login", err)
		return
	}
	h.setHandshakeCookies(w, start)
	httpx.NoCache(w)
	http.Redirect(w, r, start.RedirectURL, http.StatusFound)
}

// HandleCallback handles GET /sso/callback
//
//	@Summary		External login callback
//	@Description	Consumes the authorization code and state. Issues a session, continues to MFA, or completes a
//	@Description	link started from /sso/link. Failures redirect to /login?error=... and create nothing.
//	@Tags			SSO
//	@Param			code	query	string	true	"Authorization code"
//	@Param			state	query	string	true	"State issued by /sso/login"
//	@Success		302		"Redirect to the next step"
//	@Router			/sso/callback [get].
func (h *SSOHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.allow(r); err != nil {
		redirectError(w, r, "/login", err)
		return
	}

	var cookieState string
	if c, err := r.Cookie(httpx.CookieOAuthState); err == nil {
		cookieState = c.Value
	}
	h.Cookies.Clear(w, httpx.CookieOAuthState)
	h.Cookies.Clear(w, httpx.CookieOAuthVerifier)

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		slogx.AuthDebug(ctx, "provider returned error", "error", e)
		redirectError(w, r, "/login", domain.ErrInvalidChallenge)
		return
	}

	req := service.CallbackRequest{
		Code:        q.Get("code"),
		State:       q.Get("state"),
		CookieState: cookieState,
		Meta:        h.meta(r),
	}
	if p, ok := principal(r); ok {
		req.Session = principalIdentity(p)
	}

	res, err := h.Handshakes.HandleCallback(ctx, req)
	if err != nil {
		redirectError(w, r, "/login", err)
		return
	}
	if res.Purpose == domain.HandshakeLink {
		httpx.NoCache(w)
		http.Redirect(w, r, safeNext(res.Next), http.StatusFound)
		return
	}
	completeLogin(w, r, h.Cookies, res.Outcome)
}

// HandleLink handles POST /sso/link
//
//	@Summary		Link an external identity
//	@Description	Starts a handshake that attaches a provider identity to the signed-in account. Accounts with MFA
//	@Description	must include a current TOTP code.
//	@Tags			SSO
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LinkRequest			true	"Provider and re-auth code"
//	@Success		200		{object}	authsdk.RedirectResponse	"Where to send the browser"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Unknown provider"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Not signed in or wrong code"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Re-authentication required"
//	@Failure		429		{object}	authsdk.ErrorResponse		"Too many requests"
//	@Router			/sso/link [post].
func (h *SSOHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)
	if err := h.allow(r); err != nil {
		writeError(w, r, err)
		return
	}

	var req authsdk.LinkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Provider == "" {
		writeError(w, r, domain.ErrInvalidRequest)
		return
	}
	account, err := h.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start, err := h.Handshakes.StartLink(ctx, req.Provider, account, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.setHandshakeCookies(w, start)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RedirectResponse{RedirectURL: start.RedirectURL})
}

// HandleListIdentities handles GET /v1/account/identities
//
//	@Summary		List linked identities
//	@Tags			Account
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{array}		authsdk.IdentityView	"Linked identities"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Router			/v1/account/identities [get].
func (h *SSOHandler) HandleListIdentities(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	idents, err := h.Handshakes.ListIdentities(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]authsdk.IdentityView, 0, len(idents))
	for _, i := range idents {
		out = append(out, authsdk.IdentityView{
			Provider:  i.Provider,
			Subject:   i.Subject,
			Email:     i.Email,
			CreatedAt: i.CreatedAt.UTC().Truncate(time.Second),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleUnlink handles DELETE /v1/account/identities/{provider}
//
//	@Summary		Unlink an external identity
//	@Description	Removes a provider link. The last remaining sign-in method cannot be removed.
//	@Tags			Account
//	@Security		SessionAuth
//	@Accept			json
//	@Param			provider	path	string					true	"Provider name"
//	@Param			request		body	authsdk.ReauthRequest	false	"Re-auth code"
//	@Success		204			"Unlinked"
//	@Failure		404			{object}	authsdk.ErrorResponse	"Not linked"
//	@Failure		409			{object}	authsdk.ErrorResponse	"Last sign-in method"
//	@Router			/v1/account/identities/{provider} [delete].
func (h *SSOHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)

	req, ok := decodeReauth(w, r)
	if !ok {
		return
	}
	account, err := h.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Handshakes.Unlink(ctx, account, r.PathValue("provider"), req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeReauth reads an optional ReauthRequest body.
func decodeReauth(w http.ResponseWriter, r *http.Request) (authsdk.ReauthRequest, bool) {
	var req authsdk.ReauthRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, domain.ErrInvalidRequest)
		return req, false
	}
	return req, true
}
