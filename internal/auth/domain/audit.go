package domain

import "time"

// Audit event names.
const (
	EventLogin              = "user.login"
	EventLoginFailed        = "user.login_failed"
	EventLogout             = "user.logout"
	EventPasswordChanged    = "user.password_changed"
	EventSessionsRevoked    = "user.sessions_revoked"
	EventMFAEnabled         = "user.mfa_enabled"
	EventMFADisabled        = "user.mfa_disabled"
	EventIdentityLinked     = "user.identity_linked"
	EventIdentityUnlinked   = "user.identity_unlinked"
	EventWebAuthnRegistered = "user.webauthn_registered"
	EventLockedOut          = "user.locked_out"
	EventBanned             = "user.banned"
	EventDeleted            = "user.deleted"
)

// AuditEvent is a security-relevant fact about an account. Attrs never
// contain secrets.
type AuditEvent struct {
	Name      string            `json:"event"`
	AccountID string            `json:"account_id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	At        time.Time         `json:"at"`
}
