// Package guard implements per-key rate limiting and failure lockout for the
// authentication endpoints. Memory serves a single instance; Redis shares
// state between replicas.
package guard

import (
	"context"
	"time"
)

// RatePolicy is a fixed-window request budget.
type RatePolicy struct {
	Window time.Duration
	Max    int
}

// LockoutPolicy bans a key for Ban once Max failures land inside Window.
type LockoutPolicy struct {
	Window time.Duration
	Max    int
	Ban    time.Duration
}

// Defaults used when configuration leaves a policy unset.
var (
	DefaultLoginLockout = LockoutPolicy{Window: 15 * time.Minute, Max: 5, Ban: 15 * time.Minute}
	DefaultMFALockout   = LockoutPolicy{Window: 5 * time.Minute, Max: 5, Ban: 15 * time.Minute}
	DefaultSSORate      = RatePolicy{Window: time.Minute, Max: 20}
	DefaultWebAuthnRate = RatePolicy{Window: time.Minute, Max: 30}
)

// RateResult is the outcome of one rate-limited call.
type RateResult struct {
	OK         bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds is the Retry-After header value.
func (r RateResult) RetryAfterSeconds() int { return RetryAfterSeconds(r.RetryAfter) }

// LockoutStatus reports whether a key is banned and for how long.
type LockoutStatus struct {
	Locked     bool
	Failures   int
	RetryAfter time.Duration
}

// RetryAfterSeconds is the Retry-After header value.
func (s LockoutStatus) RetryAfterSeconds() int { return RetryAfterSeconds(s.RetryAfter) }

// RetryAfterSeconds rounds d up to whole seconds, never below 1.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter is implemented by Memory and Redis. All methods are safe for
// concurrent use and atomic per key.
type Limiter interface {
	// CheckRateLimit counts one call against key. The (max+1)th call in a
	// window is refused until the window rolls over.
	CheckRateLimit(ctx context.Context, key string, window time.Duration, max int) (RateResult, error)

	// CheckLockout reports the ban state of key without recording anything.
	CheckLockout(ctx context.Context, key string, policy LockoutPolicy) (LockoutStatus, error)

	// RecordFailure adds a failure and bans key once policy.Max is reached.
	RecordFailure(ctx context.Context, key string, policy LockoutPolicy) (LockoutStatus, error)

	// ClearFailures forgets recorded failures. An active ban stays.
	ClearFailures(ctx context.Context, key string) error
}

// Allow is CheckRateLimit for a RatePolicy.
func Allow(ctx context.Context, l Limiter, key string, p RatePolicy) (RateResult, error) {
	return l.CheckRateLimit(ctx, key, p.Window, p.Max)
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}
