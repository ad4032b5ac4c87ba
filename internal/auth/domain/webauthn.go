package domain

import "time"

// ChallengePurpose is what a WebAuthn challenge was issued for.
type ChallengePurpose string

const (
	PurposeRegistration   ChallengePurpose = "registration"
	PurposeAuthentication ChallengePurpose = "authentication"
)

// WebAuthnChallenge holds the ceremony state between Begin and Finish.
// SessionData is the JSON encoding of the library's session data.
type WebAuthnChallenge struct {
	ID          string
	AccountID   string // empty for discoverable logins
	Purpose     ChallengePurpose
	SessionData []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

const (
	DeviceSingle = "single_device"
	DeviceMulti  = "multi_device"
)

// WebAuthnCredential is a registered authenticator.
type WebAuthnCredential struct {
	ID              []byte
	AccountID       string
	PublicKey       []byte
	AttestationType string
	AAGUID          []byte
	SignCount       uint32
	Transports      []string
	BackupEligible  bool
	BackupState     bool
	UserPresent     bool
	UserVerified    bool
	DeviceType      string
	Name            string
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// CheckSignCount enforces a strictly increasing signature counter. Two zero
// counters mean the authenticator does not implement one.
func CheckSignCount(stored, reported uint32) error {
	if stored == 0 && reported == 0 {
		return nil
	}
	if reported > stored {
		return nil
	}
	return ErrCloneSuspected
}
