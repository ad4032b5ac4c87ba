package domain

import (
	"slices"
	"strings"
	"time"
)

const (
	GroupAdmin = "admin"
	GroupUser  = "user"
)

// Account is a local user. PasswordHash is empty for accounts that only sign
// in through an external provider or a passkey.
type Account struct {
	ID             string
	Username       string
	Email          string
	PasswordHash   string
	Groups         []string
	Banned         bool
	MFASecret      string // encrypted with the secret cipher, empty when MFA is off
	MFALastStep    int64  // last accepted TOTP time step
	WebAuthnHandle []byte // opaque user handle, 16 bytes
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeUsername is the lookup key for usernames.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (a Account) InGroup(group string) bool {
	return slices.Contains(a.Groups, group)
}

func (a Account) HasMFA() bool { return a.MFASecret != "" }

func (a Account) HasPassword() bool { return a.PasswordHash != "" }
