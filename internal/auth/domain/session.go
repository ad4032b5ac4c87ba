package domain

import "time"

// Authentication method references recorded on sessions.
const (
	AMRPassword     = "pwd"
	AMROTP          = "otp"
	AMRHardware     = "hwk"
	AMRExternal     = "ext"
	AMRUserVerified = "uv"
)

// Session is the server-side record behind a session token. The token's jti
// is the record id.
type Session struct {
	ID         string
	AccountID  string
	UserAgent  string
	IP         string
	AMR        []string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the session may still authenticate requests.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// RequestMeta describes the client a session is created for.
type RequestMeta struct {
	UserAgent string
	IP        string
}

// Identity is the trusted result of authenticating a request.
type Identity struct {
	AccountID string
	Username  string
	Groups    []string
	SessionID string
	AMR       []string
}
