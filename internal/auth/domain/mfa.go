package domain

import "time"

// LoginState is where a login attempt currently stands.
type LoginState string

const (
	StateAnonymous        LoginState = "anonymous"
	StatePrimaryVerified  LoginState = "primary_verified"
	StateMFAPendingVerify LoginState = "mfa_pending_verify"
	StateMFAPendingSetup  LoginState = "mfa_pending_setup"
	StateSessionIssued    LoginState = "session_issued"
)

// MFAKind says whether an MFA session verifies an existing secret or
// enrolls a new one.
type MFAKind string

const (
	MFAKindVerify MFAKind = "verify"
	MFAKindSetup  MFAKind = "setup"
)

// MFASession is a pending second-factor challenge. It is single use.
type MFASession struct {
	ID            string // opaque 256-bit token, also the mfa_token cookie value
	AccountID     string
	Kind          MFAKind
	PendingSecret string // encrypted TOTP secret, setup only
	AMR           []string
	Attempts      int
	Next          string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func (m MFASession) Expired(now time.Time) bool { return !now.Before(m.ExpiresAt) }

// LoginOutcome is the result of a login step.
type LoginOutcome struct {
	State LoginState

	// Set when State is session_issued.
	SessionToken string
	Session      Session

	// Set when State is one of the mfa_pending states.
	MFAToken        string
	MFAExpiresAt    time.Time
	ProvisioningURI string

	Account Account
	Next    string
}
