package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// LoginRequest is a username/password sign-in attempt.
type LoginRequest struct {
	Username string
	Password string
	Next     string
	Meta     domain.RequestMeta
}

// LoginService verifies the first factor and hands off to MFAService.
type LoginService struct {
	Store   store.Store
	Hasher  *cryptox.Hasher
	Guard   guard.Limiter
	Lockout guard.LockoutPolicy
	MFA     *MFAService
	Audit   audit.Emitter

	dummyOnce sync.Once
	dummyHash string
}

func (s *LoginService) lockout() guard.LockoutPolicy {
	if s.Lockout.Max > 0 {
		return s.Lockout
	}
	return guard.DefaultLoginLockout
}

// dummyVerify spends as long as a real verify so unknown usernames are not
// distinguishable by timing.
func (s *LoginService) dummyVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("marquee-timing-equalizer")
	})
	_, _ = s.Hasher.Verify(password, s.dummyHash)
}

// PasswordLogin runs the first factor. Unknown users, accounts without a
// password and wrong passwords all fail with the same ErrCredentialInvalid.
func (s *LoginService) PasswordLogin(ctx context.Context, req LoginRequest) (domain.LoginOutcome, error) {
	norm := domain.NormalizeUsername(req.Username)
	if norm == "" || req.Password == "" {
		return domain.LoginOutcome{}, domain.ErrCredentialInvalid
	}

	lockKey := "login:" + norm + "|" + req.Meta.IP
	st, err := s.Guard.CheckLockout(ctx, lockKey, s.lockout())
	if err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("check login lockout: %w", err)
	}
	if st.Locked {
		slogx.AuthDebug(ctx, "login refused while locked", "user", slogx.Redact(norm))
		return domain.LoginOutcome{}, &domain.LockedOutError{RetryAfter: st.RetryAfter}
	}

	account, err := s.Store.Accounts().GetAccountByUsername(ctx, norm)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.dummyVerify(req.Password)
		return domain.LoginOutcome{}, s.fail(ctx, lockKey, "", norm, req.Meta)
	case err != nil:
		return domain.LoginOutcome{}, fmt.Errorf("load account: %w", err)
	}

	if !account.HasPassword() {
		s.dummyVerify(req.Password)
		return domain.LoginOutcome{}, s.fail(ctx, lockKey, account.ID, norm, req.Meta)
	}
	ok, err := s.Hasher.Verify(req.Password, account.PasswordHash)
	if err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.LoginOutcome{}, s.fail(ctx, lockKey, account.ID, norm, req.Meta)
	}

	if account.Banned {
		return domain.LoginOutcome{}, domain.ErrForbidden
	}

	if err := s.Guard.ClearFailures(ctx, lockKey); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "clear login failures", "err", err)
	}
	s.rehash(ctx, account, req.Password)

	return s.MFA.AfterPrimary(ctx, account, []string{domain.AMRPassword}, req.Meta, req.Next)
}

func (s *LoginService) fail(ctx context.Context, lockKey, accountID, norm string, meta domain.RequestMeta) error {
	st, err := s.Guard.RecordFailure(ctx, lockKey, s.lockout())
	if err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "record login failure", "err", err)
	}

	ev := audit.Event(domain.EventLoginFailed, accountID, "user", slogx.Redact(norm))
	ev.IP = meta.IP
	emit(ctx, s.Audit, ev)
	if st.Locked {
		ev := audit.Event(domain.EventLockedOut, accountID, "stage", "password", "user", slogx.Redact(norm))
		ev.IP = meta.IP
		emit(ctx, s.Audit, ev)
	}
	return domain.ErrCredentialInvalid
}

// rehash upgrades an outdated hash. Failure only costs the upgrade.
func (s *LoginService) rehash(ctx context.Context, account domain.Account, password string) {
	if !s.Hasher.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := s.Hasher.Hash(password)
	if err == nil {
		err = s.Store.Accounts().UpdatePasswordHash(ctx, account.ID, hash)
	}
	if err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "password rehash failed", "err", err)
		return
	}
	slogx.AuthDebug(ctx, "password hash upgraded", "account_id", account.ID)
}
