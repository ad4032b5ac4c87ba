package http

import (
	"encoding/base64"
	"net/http"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/authsdk"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
)

const maxWebAuthnBody = 64 << 10

// WebAuthnHandler registers passkeys and signs in with them. The challenge
// id travels in the webauthn_challenge_id cookie between options and verify.
type WebAuthnHandler struct {
	WebAuthn *service.WebAuthnService
	Accounts *service.AccountService
	Guard    guard.Limiter
	Rate     guard.RatePolicy
	Cookies  httpx.Cookies

	clientIP httpx.KeyExtractor
	meta     func(*http.Request) domain.RequestMeta
}

func (h *WebAuthnHandler) allow(r *http.Request) error {
	return rateLimit(r.Context(), h.Guard, "webauthn:"+h.clientIP(r), h.Rate)
}

// takeChallenge reads and clears the challenge cookie.
func (h *WebAuthnHandler) takeChallenge(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(httpx.CookieWebAuthnChallenge)
	if err != nil {
		return ""
	}
	h.Cookies.Clear(w, httpx.CookieWebAuthnChallenge)
	return c.Value
}

// HandleRegisterOptions handles POST /webauthn/register/options
//
//	@Summary		Passkey registration options
//	@Description	Returns PublicKeyCredentialCreationOptions for navigator.credentials.create.
//	@Tags			WebAuthn
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	object					"Credential creation options"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Too many requests"
//	@Router			/webauthn/register/options [post].
func (h *WebAuthnHandler) HandleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)
	if err := h.allow(r); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := h.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts, err := h.WebAuthn.BeginRegistration(ctx, account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.Set(w, httpx.CookieWebAuthnChallenge, opts.ChallengeID, untilCookie(opts.ExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, opts.Options)
}

// HandleRegisterVerify handles POST /webauthn/register/verify
//
//	@Summary		Finish passkey registration
//	@Description	Verifies the attestation returned by navigator.credentials.create and stores the credential.
//	@Tags			WebAuthn
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			name	query		string					false	"Display name for the credential"
//	@Success		201		{object}	authsdk.CredentialView	"Registered credential"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Challenge missing, expired or already used"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Attestation rejected"
//	@Router			/webauthn/register/verify [post].
func (h *WebAuthnHandler) HandleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)
	if err := h.allow(r); err != nil {
		writeError(w, r, err)
		return
	}
	challenge := h.takeChallenge(w, r)
	if challenge == "" {
		writeError(w, r, domain.ErrInvalidChallenge)
		return
	}
	account, err := h.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxWebAuthnBody)
	cred, err := h.WebAuthn.FinishRegistration(ctx, account, challenge, r.URL.Query().Get("name"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, credentialView(cred))
}

// HandleLoginOptions handles POST /webauthn/login/options
//
//	@Summary		Passkey login options
//	@Description	Returns PublicKeyCredentialRequestOptions. With an mfa_token cookie the request is bound to that
//	@Description	pending login and lists its credentials; without one it is a discoverable passkey login.
//	@Tags			WebAuthn
//	@Produce		json
//	@Success		200	{object}	object					"Credential request options"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Pending login expired or has no passkeys"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Too many requests"
//	@Router			/webauthn/login/options [post].
func (h *WebAuthnHandler) HandleLoginOptions(w http.ResponseWriter, r *http.Request) {
	if err := h.allow(r); err != nil {
		writeError(w, r, err)
		return
	}
	opts, err := h.WebAuthn.BeginLogin(r.Context(), mfaToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cookies.Set(w, httpx.CookieWebAuthnChallenge, opts.ChallengeID, untilCookie(opts.ExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, opts.Options)
}

// HandleLoginVerify handles POST /webauthn/login/verify
//
//	@Summary		Finish passkey login
//	@Description	Verifies the assertion returned by navigator.credentials.get. The session or MFA cookies are set
//	@Description	on the response, which names the page to load next.
//	@Tags			WebAuthn
//	@Accept			json
//	@Produce		json
//	@Param			next	query		string						false	"Path to return to after login"
//	@Success		200		{object}	authsdk.LoginResultResponse	"Next step"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Challenge missing, expired or already used"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Assertion rejected"
//	@Router			/webauthn/login/verify [post].
func (h *WebAuthnHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	if err := h.allow(r); err != nil {
		writeError(w, r, err)
		return
	}
	challenge := h.takeChallenge(w, r)
	if challenge == "" {
		writeError(w, r, domain.ErrInvalidChallenge)
		return
	}

	out, err := h.WebAuthn.FinishLogin(r.Context(), service.FinishLoginRequest{
		ChallengeID: challenge,
		Body:        http.MaxBytesReader(w, r.Body, maxWebAuthnBody),
		MFAToken:    mfaToken(r),
		Meta:        h.meta(r),
		Next:        safeNext(r.URL.Query().Get("next")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := authsdk.LoginResultResponse{State: string(out.State)}
	switch out.State {
	case domain.StateSessionIssued:
		h.Cookies.Set(w, httpx.CookieSession, out.SessionToken, untilCookie(out.Session.ExpiresAt))
		h.Cookies.Clear(w, httpx.CookieMFAToken)
		res.RedirectURL = safeNext(out.Next)
	case domain.StateMFAPendingVerify:
		h.Cookies.Set(w, httpx.CookieMFAToken, out.MFAToken, untilCookie(out.MFAExpiresAt))
		res.RedirectURL = "/mfa"
	case domain.StateMFAPendingSetup:
		h.Cookies.Set(w, httpx.CookieMFAToken, out.MFAToken, untilCookie(out.MFAExpiresAt))
		res.RedirectURL = "/mfa_setup"
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// HandleListCredentials handles GET /v1/account/webauthn
//
//	@Summary		List passkeys
//	@Tags			Account
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{array}		authsdk.CredentialView	"Registered credentials"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Router			/v1/account/webauthn [get].
func (h *WebAuthnHandler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	creds, err := h.WebAuthn.ListCredentials(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]authsdk.CredentialView, 0, len(creds))
	for _, c := range creds {
		out = append(out, credentialView(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleDeleteCredential handles DELETE /v1/account/webauthn/{id}
//
//	@Summary		Delete a passkey
//	@Tags			Account
//	@Security		SessionAuth
//	@Accept			json
//	@Param			id		path	string					true	"Credential id (base64url)"
//	@Param			request	body	authsdk.ReauthRequest	false	"Re-auth code"
//	@Success		204		"Deleted"
//	@Failure		404		{object}	authsdk.ErrorResponse	"Unknown credential"
//	@Router			/v1/account/webauthn/{id} [delete].
func (h *WebAuthnHandler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)

	id, err := base64.RawURLEncoding.DecodeString(r.PathValue("id"))
	if err != nil || len(id) == 0 {
		writeError(w, r, domain.ErrInvalidRequest)
		return
	}
	req, ok := decodeReauth(w, r)
	if !ok {
		return
	}
	account, err := h.Accounts.Get(ctx, p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.WebAuthn.DeleteCredential(ctx, account, id, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func credentialView(c domain.WebAuthnCredential) authsdk.CredentialView {
	return authsdk.CredentialView{
		ID:         base64.RawURLEncoding.EncodeToString(c.ID),
		Name:       c.Name,
		DeviceType: c.DeviceType,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}
