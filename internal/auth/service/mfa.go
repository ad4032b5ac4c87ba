package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

const (
	DefaultMFAMaxAttempts = 5
	DefaultMFASessionTTL  = 5 * time.Minute
)

// MFAService runs the second half of a login: it decides whether a second
// factor is needed, holds the pending MFA session, and checks TOTP codes.
type MFAService struct {
	Store    store.Store
	Sessions *SessionService
	Cipher   *cryptox.SecretCipher
	Guard    guard.Limiter
	Lockout  guard.LockoutPolicy
	Audit    audit.Emitter

	Issuer      string // shown in authenticator apps
	Skew        uint
	MaxAttempts int
	SessionTTL  time.Duration
	Now         func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *MFAService) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMFAMaxAttempts
}

func (s *MFAService) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultMFASessionTTL
}

func (s *MFAService) lockout() guard.LockoutPolicy {
	if s.Lockout.Max > 0 {
		return s.Lockout
	}
	return guard.DefaultMFALockout
}

// satisfiesMFA reports whether amr already proves two factors, which is the
// case for a passkey with user verification.
func satisfiesMFA(amr []string) bool {
	return slices.Contains(amr, domain.AMRHardware) && slices.Contains(amr, domain.AMRUserVerified)
}

// policyRequires reports whether account must enroll TOTP before it may sign
// in.
func (s *MFAService) policyRequires(ctx context.Context, account domain.Account) (bool, error) {
	required, err := settingEnabled(ctx, s.Store, domain.SettingMFARequired)
	if err != nil || required {
		return required, err
	}
	if !account.InGroup(domain.GroupAdmin) {
		return false, nil
	}
	return settingEnabled(ctx, s.Store, domain.SettingMFAEnforcedAdmins)
}

// AfterPrimary decides what follows a successful first factor.
func (s *MFAService) AfterPrimary(ctx context.Context, account domain.Account, amr []string, meta domain.RequestMeta, next string) (domain.LoginOutcome, error) {
	if satisfiesMFA(amr) {
		return s.issue(ctx, account, amr, meta, next)
	}
	if account.HasMFA() {
		return s.begin(ctx, account, domain.MFAKindVerify, "", amr, next)
	}

	required, err := s.policyRequires(ctx, account)
	if err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("read mfa policy: %w", err)
	}
	if !required {
		return s.issue(ctx, account, amr, meta, next)
	}

	key, err := newTOTPKey(s.Issuer, account.Username)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	pending, err := s.Cipher.EncryptString(key.Secret())
	if err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("encrypt pending secret: %w", err)
	}
	out, err := s.begin(ctx, account, domain.MFAKindSetup, pending, amr, next)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	out.ProvisioningURI = key.URL()
	return out, nil
}

func (s *MFAService) issue(ctx context.Context, account domain.Account, amr []string, meta domain.RequestMeta, next string) (domain.LoginOutcome, error) {
	issued, err := s.Sessions.Create(ctx, s.Store, account, meta, amr)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	s.emitLogin(ctx, account.ID, meta, issued.Session.AMR)
	return domain.LoginOutcome{
		State:        domain.StateSessionIssued,
		SessionToken: issued.Token,
		Session:      issued.Session,
		Account:      account,
		Next:         next,
	}, nil
}

func (s *MFAService) begin(ctx context.Context, account domain.Account, kind domain.MFAKind, pending string, amr []string, next string) (domain.LoginOutcome, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	now := s.now()
	m := domain.MFASession{
		ID:            token,
		AccountID:     account.ID,
		Kind:          kind,
		PendingSecret: pending,
		AMR:           dedupe(amr),
		Next:          next,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.sessionTTL()),
	}
	if err := s.Store.MFASessions().CreateMFASession(ctx, m); err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("store mfa session: %w", err)
	}

	state := domain.StateMFAPendingVerify
	if kind == domain.MFAKindSetup {
		state = domain.StateMFAPendingSetup
	}
	slogx.AuthDebug(ctx, "mfa session opened", "account_id", account.ID, "kind", string(kind))
	return domain.LoginOutcome{
		State:        state,
		MFAToken:     token,
		MFAExpiresAt: m.ExpiresAt,
		Account:      account,
		Next:         next,
	}, nil
}

// pending loads a live MFA session. Missing and expired sessions are both
// ErrInvalidChallenge.
func (s *MFAService) pending(ctx context.Context, token string) (domain.MFASession, error) {
	if token == "" {
		return domain.MFASession{}, domain.ErrInvalidChallenge
	}
	m, err := s.Store.MFASessions().GetMFASession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MFASession{}, domain.ErrInvalidChallenge
	}
	if err != nil {
		return domain.MFASession{}, err
	}
	if m.Expired(s.now()) {
		_, _ = s.Store.MFASessions().DeleteMFASession(ctx, m.ID)
		return domain.MFASession{}, domain.ErrInvalidChallenge
	}
	return m, nil
}

// PendingSetup returns the provisioning URI of a setup session again.
func (s *MFAService) PendingSetup(ctx context.Context, token string) (domain.LoginOutcome, error) {
	m, err := s.pending(ctx, token)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	if m.Kind != domain.MFAKindSetup {
		return domain.LoginOutcome{}, domain.ErrInvalidChallenge
	}
	account, err := s.Store.Accounts().GetAccountByID(ctx, m.AccountID)
	if err != nil {
		return domain.LoginOutcome{}, mapChallengeAccount(err)
	}
	secret, err := s.Cipher.DecryptString(m.PendingSecret)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	uri, err := provisioningURI(s.Issuer, account.Username, secret)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	return domain.LoginOutcome{
		State:           domain.StateMFAPendingSetup,
		MFAToken:        m.ID,
		MFAExpiresAt:    m.ExpiresAt,
		ProvisioningURI: uri,
		Account:         account,
		Next:            m.Next,
	}, nil
}

func mapChallengeAccount(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrInvalidChallenge
	}
	return err
}

// SubmitCode completes a pending MFA session with a TOTP code.
func (s *MFAService) SubmitCode(ctx context.Context, token, code string, meta domain.RequestMeta) (domain.LoginOutcome, error) {
	m, err := s.pending(ctx, token)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	lockKey := "mfa:" + m.AccountID + "|" + meta.IP
	st, err := s.Guard.CheckLockout(ctx, lockKey, s.lockout())
	if err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("check mfa lockout: %w", err)
	}
	if st.Locked {
		return domain.LoginOutcome{}, &domain.LockedOutError{RetryAfter: st.RetryAfter}
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, m.AccountID)
	if err != nil {
		return domain.LoginOutcome{}, mapChallengeAccount(err)
	}
	if account.Banned {
		return domain.LoginOutcome{}, domain.ErrForbidden
	}

	encrypted := account.MFASecret
	if m.Kind == domain.MFAKindSetup {
		encrypted = m.PendingSecret
	}
	if encrypted == "" {
		return domain.LoginOutcome{}, domain.ErrInvalidChallenge
	}
	secret, err := s.Cipher.DecryptString(encrypted)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	step, ok := matchTOTP(secret, code, s.now(), s.Skew, account.MFALastStep)
	if !ok {
		return domain.LoginOutcome{}, s.wrongCode(ctx, m, lockKey, meta)
	}

	amr := append(slices.Clone(m.AMR), domain.AMROTP)
	var issued IssuedSession
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if m.Kind == domain.MFAKindSetup {
			if err := tx.Accounts().SetMFA(ctx, account.ID, m.PendingSecret, step); err != nil {
				return err
			}
		} else {
			advanced, err := tx.Accounts().AdvanceMFAStep(ctx, account.ID, step)
			if err != nil {
				return err
			}
			if !advanced {
				return domain.ErrCredentialInvalid
			}
			if s.Cipher.NeedsRotation(account.MFASecret) {
				rotated, err := s.Cipher.EncryptString(secret)
				if err != nil {
					return err
				}
				if err := tx.Accounts().SetMFA(ctx, account.ID, rotated, step); err != nil {
					return err
				}
			}
		}

		deleted, err := tx.MFASessions().DeleteMFASession(ctx, m.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrInvalidChallenge
		}

		issued, err = s.Sessions.Create(ctx, tx, account, meta, amr)
		return err
	})
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	if err := s.Guard.ClearFailures(ctx, lockKey); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "clear mfa failures", "err", err)
	}
	if m.Kind == domain.MFAKindSetup {
		emit(ctx, s.Audit, audit.Event(domain.EventMFAEnabled, account.ID))
	}
	s.emitLogin(ctx, account.ID, meta, issued.Session.AMR)

	return domain.LoginOutcome{
		State:        domain.StateSessionIssued,
		SessionToken: issued.Token,
		Session:      issued.Session,
		Account:      account,
		Next:         m.Next,
	}, nil
}

func (s *MFAService) wrongCode(ctx context.Context, m domain.MFASession, lockKey string, meta domain.RequestMeta) error {
	updated, err := s.Store.MFASessions().IncrementMFASessionAttempts(ctx, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrInvalidChallenge
	}
	if err != nil {
		return err
	}

	st, err := s.Guard.RecordFailure(ctx, lockKey, s.lockout())
	if err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "record mfa failure", "err", err)
	}
	if st.Locked {
		ev := audit.Event(domain.EventLockedOut, m.AccountID, "stage", "mfa")
		ev.IP = meta.IP
		emit(ctx, s.Audit, ev)
	}

	if updated.Attempts >= s.maxAttempts() {
		if _, err := s.Store.MFASessions().DeleteMFASession(ctx, m.ID); err != nil {
			return err
		}
		return domain.ErrMFAExhausted
	}
	return domain.ErrCredentialInvalid
}

// VerifyMFACode checks a code against a plaintext secret with no replay
// tracking.
func (s *MFAService) VerifyMFACode(secret, code string) bool {
	_, ok := matchTOTP(secret, code, s.now(), s.Skew, 0)
	return ok
}

// RequireReauth gates sensitive account changes behind a fresh TOTP code.
// Accounts without MFA pass.
func (s *MFAService) RequireReauth(ctx context.Context, account domain.Account, code string) error {
	if !account.HasMFA() {
		return nil
	}
	if code == "" {
		return domain.ErrReauthRequired
	}

	lockKey := "reauth:" + account.ID
	st, err := s.Guard.CheckLockout(ctx, lockKey, s.lockout())
	if err != nil {
		return fmt.Errorf("check reauth lockout: %w", err)
	}
	if st.Locked {
		return &domain.LockedOutError{RetryAfter: st.RetryAfter}
	}

	secret, err := s.Cipher.DecryptString(account.MFASecret)
	if err != nil {
		return err
	}
	step, ok := matchTOTP(secret, code, s.now(), s.Skew, account.MFALastStep)
	if ok {
		ok, err = s.Store.Accounts().AdvanceMFAStep(ctx, account.ID, step)
		if err != nil {
			return err
		}
	}
	if !ok {
		if _, err := s.Guard.RecordFailure(ctx, lockKey, s.lockout()); err != nil {
			slogx.FromContext(ctx).WarnContext(ctx, "record reauth failure", "err", err)
		}
		return domain.ErrCredentialInvalid
	}
	return s.Guard.ClearFailures(ctx, lockKey)
}

// Disable removes TOTP from an account after a re-auth code.
func (s *MFAService) Disable(ctx context.Context, account domain.Account, code string) error {
	if !account.HasMFA() {
		return domain.ErrInvalidRequest
	}
	if err := s.RequireReauth(ctx, account, code); err != nil {
		return err
	}
	if err := s.Store.Accounts().ClearMFA(ctx, account.ID); err != nil {
		return mapNotFound(err)
	}
	emit(ctx, s.Audit, audit.Event(domain.EventMFADisabled, account.ID))
	return nil
}

func (s *MFAService) emitLogin(ctx context.Context, accountID string, meta domain.RequestMeta, amr []string) {
	ev := audit.Event(domain.EventLogin, accountID)
	ev.IP = meta.IP
	ev.Attrs = map[string]string{"amr": strings.Join(amr, " ")}
	emit(ctx, s.Audit, ev)
}
