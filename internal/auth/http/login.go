package http

import (
	"net/http"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/authsdk"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
)

// LoginHandler serves the password and TOTP steps of a browser login.
type LoginHandler struct {
	Login   *service.LoginService
	MFA     *service.MFAService
	Cookies httpx.Cookies

	meta func(*http.Request) domain.RequestMeta
}

// HandleLogin handles POST /login
//
//	@Summary		Password login
//	@Description	Verifies a username and password. Redirects to /mfa or /mfa_setup when a second factor is needed,
//	@Description	to the requested page once a session is issued, or back to /login with an error code.
//	@Tags			Login
//	@Accept			x-www-form-urlencoded
//	@Param			username	formData	string	true	"Username"
//	@Param			password	formData	string	true	"Password"
//	@Param			next		formData	string	false	"Path to return to after login"
//	@Param			_csrf		formData	string	false	"CSRF token when the header cannot be set"
//	@Success		302			"Redirect to the next step"
//	@Failure		403			{object}	authsdk.ErrorResponse	"CSRF check failed"
//	@Failure		429			{object}	authsdk.ErrorResponse	"Too many requests"
//	@Router			/login [post].
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, "/login", domain.ErrInvalidRequest)
		return
	}

	out, err := h.Login.PasswordLogin(r.Context(), service.LoginRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
		Next:     safeNext(r.PostForm.Get("next")),
		Meta:     h.meta(r),
	})
	if err != nil {
		redirectError(w, r, "/login", err)
		return
	}
	completeLogin(w, r, h.Cookies, out)
}

// HandleMFA handles POST /mfa
//
//	@Summary		Submit a TOTP code
//	@Description	Completes a pending login with a TOTP code. The pending login is identified by the mfa_token cookie.
//	@Tags			Login
//	@Accept			x-www-form-urlencoded
//	@Param			code	formData	string	true	"TOTP code"
//	@Success		302		"Redirect to the next page, or back to /mfa with an error code"
//	@Router			/mfa [post].
func (h *LoginHandler) HandleMFA(w http.ResponseWriter, r *http.Request) {
	h.submitCode(w, r, "/mfa")
}

// HandleMFASetupSubmit handles POST /mfa_setup
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Confirms the secret shown by GET /mfa_setup with a TOTP code and issues the session.
//	@Tags			Login
//	@Accept			x-www-form-urlencoded
//	@Param			code	formData	string	true	"TOTP code"
//	@Success		302		"Redirect to the next page, or back to /mfa_setup with an error code"
//	@Router			/mfa_setup [post].
func (h *LoginHandler) HandleMFASetupSubmit(w http.ResponseWriter, r *http.Request) {
	h.submitCode(w, r, "/mfa_setup")
}

func (h *LoginHandler) submitCode(w http.ResponseWriter, r *http.Request, retry string) {
	token := mfaToken(r)
	if token == "" {
		redirectError(w, r, "/login", domain.ErrInvalidChallenge)
		return
	}
	if err := r.ParseForm(); err != nil {
		redirectError(w, r, retry, domain.ErrInvalidRequest)
		return
	}

	out, err := h.MFA.SubmitCode(r.Context(), token, r.PostForm.Get("code"), h.meta(r))
	switch {
	case err == nil:
		completeLogin(w, r, h.Cookies, out)
	case isRestart(err):
		// The pending login is gone; start over from the password step.
		h.Cookies.Clear(w, httpx.CookieMFAToken)
		redirectError(w, r, "/login", err)
	default:
		redirectError(w, r, retry, err)
	}
}

// HandleMFASetup handles GET /mfa_setup
//
//	@Summary		Pending TOTP enrollment
//	@Description	Returns the provisioning URI of the secret being enrolled, for rendering a QR code.
//	@Tags			Login
//	@Produce		json
//	@Success		200	{object}	authsdk.MFASetupResponse	"Provisioning URI"
//	@Failure		400	{object}	authsdk.ErrorResponse		"No pending enrollment"
//	@Router			/mfa_setup [get].
func (h *LoginHandler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	out, err := h.MFA.PendingSetup(r.Context(), mfaToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFASetupResponse{
		ProvisioningURI: out.ProvisioningURI,
		Issuer:          h.MFA.Issuer,
		Account:         out.Account.Username,
	})
}

func mfaToken(r *http.Request) string {
	c, err := r.Cookie(httpx.CookieMFAToken)
	if err != nil {
		return ""
	}
	return c.Value
}

// isRestart reports errors after which the pending MFA session no longer
// exists.
func isRestart(err error) bool {
	return domain.Code(err) == authsdk.ErrorCodeInvalidChallenge || domain.Code(err) == authsdk.ErrorCodeMFAExhausted
}

// completeLogin turns a login outcome into cookies and a redirect.
func completeLogin(w http.ResponseWriter, r *http.Request, c httpx.Cookies, out domain.LoginOutcome) {
	httpx.NoCache(w)
	switch out.State {
	case domain.StateSessionIssued:
		c.Set(w, httpx.CookieSession, out.SessionToken, untilCookie(out.Session.ExpiresAt))
		c.Clear(w, httpx.CookieMFAToken)
		http.Redirect(w, r, safeNext(out.Next), http.StatusFound)
	case domain.StateMFAPendingVerify:
		c.Set(w, httpx.CookieMFAToken, out.MFAToken, untilCookie(out.MFAExpiresAt))
		http.Redirect(w, r, "/mfa", http.StatusFound)
	case domain.StateMFAPendingSetup:
		c.Set(w, httpx.CookieMFAToken, out.MFAToken, untilCookie(out.MFAExpiresAt))
		http.Redirect(w, r, "/mfa_setup", http.StatusFound)
	default:
		redirectError(w, r, "/login", domain.ErrInvalidChallenge)
	}
}
