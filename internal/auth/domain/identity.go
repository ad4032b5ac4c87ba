package domain

import "time"

// ProviderKind selects the handshake a provider speaks. It is configured
// explicitly.
type ProviderKind string

const (
	ProviderOIDC   ProviderKind = "oidc"
	ProviderOAuth2 ProviderKind = "oauth2"
	ProviderDuo    ProviderKind = "duo"
)

func (k ProviderKind) Valid() bool {
	switch k {
	case ProviderOIDC, ProviderOAuth2, ProviderDuo:
		return true
	}
	return false
}

// ExternalIdentity links a provider subject to a local account.
type ExternalIdentity struct {
	Provider     string
	Subject      string
	AccountID    string
	Email        string
	RefreshToken string // encrypted, may be empty
	CreatedAt    time.Time
}

// ExternalProfile is what a provider told us about the user.
type ExternalProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Username      string
	Name          string
}

// HandshakePurpose says what a completed handshake is used for.
type HandshakePurpose string

const (
	HandshakeLogin HandshakePurpose = "login"
	HandshakeLink  HandshakePurpose = "link"
)

// HandshakeMaxAge bounds how long a handshake may stay open.
const HandshakeMaxAge = 15 * time.Minute

// HandshakeState is the server-side half of an external login. It is
// consumed exactly once on callback.
type HandshakeState struct {
	State          string
	Provider       string
	Purpose        HandshakePurpose
	BoundAccountID string
	Nonce          string
	PKCEVerifier   string
	RedirectNext   string
	IssuedAt       time.Time

	// LoginHint is passed to providers that need a username up front, such
	// as Duo. It is not persisted.
	LoginHint string
}

// Fresh reports whether the handshake is still within HandshakeMaxAge.
func (h HandshakeState) Fresh(now time.Time) bool {
	age := now.Sub(h.IssuedAt)
	return age >= -time.Minute && age <= HandshakeMaxAge
}
