package authsdk

import "time"

// ============================================================================
// Errors
// ============================================================================

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// System
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each dependency on /readyz.
type HealthChecks struct {
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
}

// ============================================================================
// Identity and sessions
// ============================================================================

// MeResponse describes the caller's identity.
type MeResponse struct {
	AccountID  string   `json:"account_id"`
	Username   string   `json:"username"`
	Groups     []string `json:"groups"`
	SessionID  string   `json:"session_id"`
	AMR        []string `json:"amr,omitempty"`
	MFAEnabled bool     `json:"mfa_enabled"`
}

// SessionView is one active session of the caller.
type SessionView struct {
	ID         string    `json:"id"`
	Current    bool      `json:"current"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	AMR        []string  `json:"amr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionsResponse lists the caller's active sessions.
type SessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// RevokedResponse reports how many sessions a bulk revoke closed.
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

// ============================================================================
// Account management
// ============================================================================

// ReauthRequest carries the TOTP code required by sensitive operations.
// Accounts without MFA may leave it empty.
type ReauthRequest struct {
	Code string `json:"code,omitempty"`
}

// PasswordChangeRequest changes the caller's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Code            string `json:"code,omitempty"`
}

// LinkRequest starts linking an external identity to the caller's account.
type LinkRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code,omitempty"`
}

// RedirectResponse carries the URL the browser should navigate to.
type RedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// MFASetupResponse is shown while an account is enrolling TOTP.
type MFASetupResponse struct {
	ProvisioningURI string `json:"provisioning_uri"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}

// LoginResultResponse tells a script-driven login where to go next.
type LoginResultResponse struct {
	State       string `json:"state"`
	RedirectURL string `json:"redirect_url"`
}

// IdentityView is an external identity linked to the caller.
type IdentityView struct {
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CredentialView is a registered WebAuthn credential.
type CredentialView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	DeviceType string     `json:"device_type"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// ============================================================================
// Admin
// ============================================================================

// GroupsRequest replaces an account's groups.
type GroupsRequest struct {
	Groups []string `json:"groups"`
}

// SettingsResponse is the full settings map.
type SettingsResponse struct {
	Settings map[string]string `json:"settings"`
}
