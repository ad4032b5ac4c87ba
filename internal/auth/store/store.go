package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers implement it and expose
// sub-repositories so transactional code can only reach repos bound to the
// same transaction.
type Store interface {
	Accounts() Accounts
	Sessions() Sessions
	MFASessions() MFASessions
	WebAuthn() WebAuthn
	Identities() Identities
	Handshakes() Handshakes
	Settings() Settings

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST call Commit or
	// Rollback on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByUsername looks up by the normalized username.
	GetAccountByUsername(ctx context.Context, username string) (domain.Account, error)

	GetAccountByWebAuthnHandle(ctx context.Context, handle []byte) (domain.Account, error)

	// CreateAccount inserts a new account. Returns ErrAlreadyExists when the
	// username is taken.
	CreateAccount(ctx context.Context, a domain.Account) error

	ListAccounts(ctx context.Context) ([]domain.Account, error)
	CountAccounts(ctx context.Context) (int64, error)

	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetBanned(ctx context.Context, id string, banned bool) error
	SetGroups(ctx context.Context, id string, groups []string) error

	// SetMFA stores the encrypted TOTP secret together with the step that
	// enrolled it.
	SetMFA(ctx context.Context, id, secret string, lastStep int64) error

	// AdvanceMFAStep moves mfa_last_step forward. It returns false when the
	// stored step is already >= step, which means the code was replayed.
	AdvanceMFAStep(ctx context.Context, id string, step int64) (bool, error)

	ClearMFA(ctx context.Context, id string) error

	// DeleteAccount cascades to sessions, identities and credentials.
	DeleteAccount(ctx context.Context, id string) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)

	// TouchSession bumps last_seen_at only if the previous bump is older than
	// minInterval. Returns whether a write happened.
	TouchSession(ctx context.Context, id string, now time.Time, minInterval time.Duration) (bool, error)

	// RevokeSession revokes an active session. Returns false if it was
	// already revoked or does not exist.
	RevokeSession(ctx context.Context, id string, now time.Time) (bool, error)

	// ListSessionsForAccount returns active sessions, newest first.
	ListSessionsForAccount(ctx context.Context, accountID string, now time.Time) ([]domain.Session, error)

	RevokeAllExcept(ctx context.Context, accountID, keepID string, now time.Time) (int64, error)
	RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) (int64, error)

	// DeleteExpiredSessions removes sessions that expired before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type MFASessions interface {
	CreateMFASession(ctx context.Context, m domain.MFASession) error
	GetMFASession(ctx context.Context, id string) (domain.MFASession, error)

	// IncrementMFASessionAttempts returns the session with the new count.
	IncrementMFASessionAttempts(ctx context.Context, id string) (domain.MFASession, error)

	// DeleteMFASession returns false if the session was already gone.
	DeleteMFASession(ctx context.Context, id string) (bool, error)
	DeleteExpiredMFASessions(ctx context.Context, now time.Time) (int64, error)
}

type WebAuthn interface {
	CreateChallenge(ctx context.Context, c domain.WebAuthnChallenge) error

	// ConsumeChallenge deletes the challenge and returns it. A second call
	// returns ErrNotFound.
	ConsumeChallenge(ctx context.Context, id string) (domain.WebAuthnChallenge, error)
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)

	CreateCredential(ctx context.Context, c domain.WebAuthnCredential) error
	GetCredential(ctx context.Context, id []byte) (domain.WebAuthnCredential, error)
	ListCredentials(ctx context.Context, accountID string) ([]domain.WebAuthnCredential, error)

	// UpdateCredentialUse records a successful assertion.
	UpdateCredentialUse(ctx context.Context, c domain.WebAuthnCredential) error
	DeleteCredential(ctx context.Context, accountID string, id []byte) error
}

type Identities interface {
	CreateIdentity(ctx context.Context, i domain.ExternalIdentity) error
	GetIdentity(ctx context.Context, provider, subject string) (domain.ExternalIdentity, error)
	ListIdentitiesForAccount(ctx context.Context, accountID string) ([]domain.ExternalIdentity, error)
	UpdateRefreshToken(ctx context.Context, provider, subject, encrypted string) error
	DeleteIdentity(ctx context.Context, accountID, provider string) error
}

// Handshakes stores pending external handshakes. The sqlite driver and the
// redis driver both implement it.
type Handshakes interface {
	SaveHandshake(ctx context.Context, h domain.HandshakeState) error

	// ConsumeHandshake atomically removes and returns the state.
	ConsumeHandshake(ctx context.Context, state string) (domain.HandshakeState, error)

	DeleteExpiredHandshakes(ctx context.Context, issuedBefore time.Time) (int64, error)
}

type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	ListSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
}
