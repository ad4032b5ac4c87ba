package http

import (
	"net/http"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/authsdk"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
)

// AccountHandler serves the caller's own account and sessions.
type AccountHandler struct {
	Accounts *service.AccountService
	MFA      *service.MFAService
	Sessions *service.SessionService
	Cookies  httpx.Cookies
}

// HandleMe handles GET /v1/me
//
//	@Summary		Current identity
//	@Description	Returns the account behind the session token.
//	@Tags			Account
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MeResponse		"Identity"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Router			/v1/me [get].
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	account, err := h.Accounts.Get(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
		AccountID:  p.AccountID,
		Username:   p.Username,
		Groups:     p.Groups,
		SessionID:  p.SessionID,
		AMR:        p.AMR,
		MFAEnabled: account.HasMFA(),
	})
}

// HandleListSessions handles GET /v1/sessions
//
//	@Summary		List sessions
//	@Description	Lists the caller's active sessions, newest first.
//	@Tags			Sessions
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionsResponse	"Active sessions"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Not signed in"
//	@Router			/v1/sessions [get].
func (h *AccountHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	sessions, err := h.Sessions.ListForAccount(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := authsdk.SessionsResponse{Sessions: make([]authsdk.SessionView, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, authsdk.SessionView{
			ID:         s.ID,
			Current:    s.ID == p.SessionID,
			UserAgent:  s.UserAgent,
			IP:         s.IP,
			AMR:        s.AMR,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevokeSession handles DELETE /v1/sessions/{jti}
//
//	@Summary		Revoke a session
//	@Description	Revokes one of the caller's sessions. Revoking the current session also clears its cookie.
//	@Tags			Sessions
//	@Security		SessionAuth
//	@Param			jti	path	string	true	"Session id"
//	@Success		204	"Revoked"
//	@Failure		404	{object}	authsdk.ErrorResponse	"No such session"
//	@Router			/v1/sessions/{jti} [delete].
func (h *AccountHandler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	jti := r.PathValue("jti")
	if err := h.Sessions.RevokeOwned(r.Context(), p.AccountID, jti); err != nil {
		writeError(w, r, err)
		return
	}
	if jti == p.SessionID {
		h.Cookies.Clear(w, httpx.CookieSession)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeOthers handles POST /v1/sessions/revoke-others
//
//	@Summary		Sign out other sessions
//	@Tags			Sessions
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RevokedResponse	"Number of sessions revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Router			/v1/sessions/revoke-others [post].
func (h *AccountHandler) HandleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	n, err := h.Accounts.RevokeOtherSessions(r.Context(), p.AccountID, p.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleChangePassword handles POST /v1/account/password
//
//	@Summary		Change password
//	@Description	Checks the current password and, for accounts with MFA, a TOTP code. Every other session is revoked.
//	@Tags			Account
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.PasswordChangeRequest	true	"Passwords and re-auth code"
//	@Success		200		{object}	authsdk.RevokedResponse			"Sessions revoked"
//	@Failure		400		{object}	authsdk.ErrorResponse			"New password rejected"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Wrong password or code"
//	@Failure		423		{object}	authsdk.ErrorResponse			"Locked out"
//	@Router			/v1/account/password [post].
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := principal(r)
	var req authsdk.PasswordChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, domain.ErrInvalidRequest)
		return
	}

	n, err := h.Accounts.ChangePassword(r.Context(), service.ChangePasswordRequest{
		AccountID:       p.AccountID,
		SessionID:       p.SessionID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Code:            req.Code,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleDisableMFA handles POST /v1/account/mfa/disable
//
//	@Summary		Disable TOTP
//	@Tags			Account
//	@Security		SessionAuth
//	@Accept			json
//	@Param			request	body	authsdk.ReauthRequest	true	"Current TOTP code"
//	@Success		204		"Disabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"MFA is not enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Wrong code"
//	@Router			/v1/account/mfa/disable [post].
func (h *AccountHandler) HandleDisableMFA(w http.ResponseWriter, r *http.Request) {
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
	if err := h.MFA.Disable(ctx, account, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
