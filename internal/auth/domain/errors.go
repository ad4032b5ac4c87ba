package domain

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/marquee/pkg/cryptox"
)

// Error is a service error with a stable wire code.
type Error struct {
	code string
	msg  string
}

func (e *Error) Error() string     { return e.msg }
func (e *Error) ErrorCode() string { return e.code }

func newError(code, msg string) *Error { return &Error{code: code, msg: msg} }

var (
	ErrUnauthenticated     = newError("unauthenticated", "auth: unauthenticated")
	ErrForbidden           = newError("forbidden", "auth: forbidden")
	ErrInvalidChallenge    = newError("invalid_challenge", "auth: invalid or expired challenge")
	ErrRateLimited         = newError("rate_limited", "auth: rate limited")
	ErrLockedOut           = newError("locked_out", "auth: locked out")
	ErrCredentialInvalid   = newError("invalid_credentials", "auth: invalid credentials")
	ErrProviderUnavailable = newError("provider_unavailable", "auth: identity provider unavailable")

	ErrInvalidRequest   = newError("invalid_request", "auth: invalid request")
	ErrNotFound         = newError("not_found", "auth: not found")
	ErrConflict         = newError("conflict", "auth: already exists")
	ErrMFAExhausted     = newError("mfa_exhausted", "auth: mfa attempts exhausted")
	ErrAccountNotLinked = newError("account_not_linked", "auth: external identity not linked")
	ErrCloneSuspected   = newError("invalid_credentials", "auth: authenticator counter did not increase")
	ErrReauthRequired   = newError("forbidden", "auth: re-authentication required")
)

// ErrSecretIntegrity is returned when a stored secret fails to decrypt. It
// has no wire code so it is reported as a server error.
var ErrSecretIntegrity = cryptox.ErrSecretIntegrity

// RateLimitedError is ErrRateLimited with a retry hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string                     { return ErrRateLimited.msg }
func (e *RateLimitedError) ErrorCode() string                 { return ErrRateLimited.code }
func (e *RateLimitedError) RetryAfterDuration() time.Duration { return e.RetryAfter }
func (e *RateLimitedError) Is(target error) bool              { return target == ErrRateLimited }

// LockedOutError is ErrLockedOut with a retry hint.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string                     { return ErrLockedOut.msg }
func (e *LockedOutError) ErrorCode() string                 { return ErrLockedOut.code }
func (e *LockedOutError) RetryAfterDuration() time.Duration { return e.RetryAfter }
func (e *LockedOutError) Is(target error) bool              { return target == ErrLockedOut }

// Code returns the wire code of err, or "server_error".
func Code(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return "server_error"
}
