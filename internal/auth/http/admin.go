package http

import (
	"net/http"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/authsdk"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
)

// AdminHandler serves account administration. Every route requires the
// admin group.
type AdminHandler struct {
	Admin *service.AdminService
}

func actor(r *http.Request) string {
	p, _ := principal(r)
	return p.AccountID
}

// HandleBan handles POST /v1/admin/accounts/{id}/ban
//
//	@Summary		Ban an account
//	@Description	Bans the account and revokes all of its sessions.
//	@Tags			Admin
//	@Security		SessionAuth
//	@Param			id	path	string	true	"Account id"
//	@Success		204	"Banned"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Not an admin"
//	@Failure		404	{object}	authsdk.ErrorResponse	"No such account"
//	@Router			/v1/admin/accounts/{id}/ban [post].
func (h *AdminHandler) HandleBan(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

// HandleUnban handles POST /v1/admin/accounts/{id}/unban
//
//	@Summary		Unban an account
//	@Tags			Admin
//	@Security		SessionAuth
//	@Param			id	path	string	true	"Account id"
//	@Success		204	"Unbanned"
//	@Failure		404	{object}	authsdk.ErrorResponse	"No such account"
//	@Router			/v1/admin/accounts/{id}/unban [post].
func (h *AdminHandler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *AdminHandler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	if err := h.Admin.SetBanned(r.Context(), actor(r), r.PathValue("id"), banned); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /v1/admin/accounts/{id}
//
//	@Summary		Delete an account
//	@Description	Deletes the account with its sessions, linked identities and passkeys.
//	@Tags			Admin
//	@Security		SessionAuth
//	@Param			id	path	string	true	"Account id"
//	@Success		204	"Deleted"
//	@Failure		404	{object}	authsdk.ErrorResponse	"No such account"
//	@Router			/v1/admin/accounts/{id} [delete].
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.DeleteAccount(r.Context(), actor(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetGroups handles POST /v1/admin/accounts/{id}/groups
//
//	@Summary		Replace groups
//	@Tags			Admin
//	@Security		SessionAuth
//	@Accept			json
//	@Param			id		path	string					true	"Account id"
//	@Param			request	body	authsdk.GroupsRequest	true	"New groups"
//	@Success		204		"Updated"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid group name"
//	@Failure		404		{object}	authsdk.ErrorResponse	"No such account"
//	@Router			/v1/admin/accounts/{id}/groups [post].
func (h *AdminHandler) HandleSetGroups(w http.ResponseWriter, r *http.Request) {
	var req authsdk.GroupsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, domain.ErrInvalidRequest)
		return
	}
	if err := h.Admin.SetGroups(r.Context(), actor(r), r.PathValue("id"), req.Groups); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeSessions handles POST /v1/admin/accounts/{id}/revoke-sessions
//
//	@Summary		Sign an account out everywhere
//	@Tags			Admin
//	@Security		SessionAuth
//	@Produce		json
//	@Param			id	path		string					true	"Account id"
//	@Success		200	{object}	authsdk.RevokedResponse	"Sessions revoked"
//	@Failure		404	{object}	authsdk.ErrorResponse	"No such account"
//	@Router			/v1/admin/accounts/{id}/revoke-sessions [post].
func (h *AdminHandler) HandleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.Admin.RevokeSessions(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleGetSettings handles GET /v1/admin/settings
//
//	@Summary		Read settings
//	@Tags			Admin
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.SettingsResponse	"All settings"
//	@Router			/v1/admin/settings [get].
func (h *AdminHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Admin.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.SettingsResponse{Settings: settings})
}

// HandlePutSettings handles PUT /v1/admin/settings
//
//	@Summary		Write settings
//	@Description	Validates every key before writing any. Unknown keys are rejected.
//	@Tags			Admin
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SettingsResponse	true	"Settings to write"
//	@Success		200		{object}	authsdk.SettingsResponse	"All settings after the write"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Invalid setting"
//	@Router			/v1/admin/settings [put].
func (h *AdminHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SettingsResponse
	if err := httpx.DecodeJSON(r, &req); err != nil || len(req.Settings) == 0 {
		writeError(w, r, domain.ErrInvalidRequest)
		return
	}
	if err := h.Admin.PutSettings(r.Context(), req.Settings); err != nil {
		writeError(w, r, err)
		return
	}
	h.HandleGetSettings(w, r)
}
