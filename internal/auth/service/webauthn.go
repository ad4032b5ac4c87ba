package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

const DefaultChallengeTTL = 5 * time.Minute

// WebAuthnConfig is the relying party the browser checks against.
type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// NewWebAuthn builds the go-webauthn relying party.
func NewWebAuthn(cfg WebAuthnConfig) (*webauthn.WebAuthn, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return wa, nil
}

// waUser adapts an account and its credentials to webauthn.User.
type waUser struct {
	account domain.Account
	creds   []domain.WebAuthnCredential
}

func (u *waUser) WebAuthnID() []byte          { return u.account.WebAuthnHandle }
func (u *waUser) WebAuthnName() string        { return u.account.Username }
func (u *waUser) WebAuthnDisplayName() string { return u.account.Username }

func (u *waUser) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(u.creds))
	for _, c := range u.creds {
		transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
		for _, t := range c.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		out = append(out, webauthn.Credential{
			ID:              c.ID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       transports,
			Flags: webauthn.CredentialFlags{
				UserPresent:    c.UserPresent,
				UserVerified:   c.UserVerified,
				BackupEligible: c.BackupEligible,
				BackupState:    c.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				AAGUID:    c.AAGUID,
				SignCount: c.SignCount,
			},
		})
	}
	return out
}

// RegistrationOptions is handed to navigator.credentials.create.
type RegistrationOptions struct {
	ChallengeID string
	Options     *protocol.CredentialCreation
	ExpiresAt   time.Time
}

// LoginOptions is handed to navigator.credentials.get.
type LoginOptions struct {
	ChallengeID string
	Options     *protocol.CredentialAssertion
	ExpiresAt   time.Time
}

// FinishLoginRequest carries an assertion back from the browser. MFAToken
// is set when the passkey is the second factor of a pending login.
type FinishLoginRequest struct {
	ChallengeID string
	Body        io.Reader
	MFAToken    string
	Meta        domain.RequestMeta
	Next        string
}

// WebAuthnService registers passkeys and signs accounts in with them.
// Challenges are consumed before the response is verified, so each can be
// answered at most once.
type WebAuthnService struct {
	Store        store.Store
	WebAuthn     *webauthn.WebAuthn
	MFA          *MFAService
	Audit        audit.Emitter
	ChallengeTTL time.Duration
	Now          func() time.Time
}

func (s *WebAuthnService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *WebAuthnService) challengeTTL() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return DefaultChallengeTTL
}

func (s *WebAuthnService) user(ctx context.Context, account domain.Account) (*waUser, error) {
	creds, err := s.Store.WebAuthn().ListCredentials(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return &waUser{account: account, creds: creds}, nil
}

func (s *WebAuthnService) saveChallenge(ctx context.Context, accountID string, purpose domain.ChallengePurpose, sd *webauthn.SessionData) (string, time.Time, error) {
	raw, err := json.Marshal(sd)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode session data: %w", err)
	}
	id, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	ch := domain.WebAuthnChallenge{
		ID:          id,
		AccountID:   accountID,
		Purpose:     purpose,
		SessionData: raw,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.challengeTTL()),
	}
	if err := s.Store.WebAuthn().CreateChallenge(ctx, ch); err != nil {
		return "", time.Time{}, fmt.Errorf("store challenge: %w", err)
	}
	return id, ch.ExpiresAt, nil
}

// consume deletes the challenge first and only then inspects it.
func (s *WebAuthnService) consume(ctx context.Context, id string, purpose domain.ChallengePurpose) (domain.WebAuthnChallenge, webauthn.SessionData, error) {
	ch, err := s.Store.WebAuthn().ConsumeChallenge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ch, webauthn.SessionData{}, domain.ErrInvalidChallenge
	}
	if err != nil {
		return ch, webauthn.SessionData{}, err
	}
	if !s.now().Before(ch.ExpiresAt) || ch.Purpose != purpose {
		return ch, webauthn.SessionData{}, domain.ErrInvalidChallenge
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal(ch.SessionData, &sd); err != nil {
		return ch, webauthn.SessionData{}, fmt.Errorf("decode session data: %w", err)
	}
	return ch, sd, nil
}

func (s *WebAuthnService) BeginRegistration(ctx context.Context, account domain.Account) (RegistrationOptions, error) {
	if len(account.WebAuthnHandle) == 0 {
		return RegistrationOptions{}, domain.ErrInvalidRequest
	}
	u, err := s.user(ctx, account)
	if err != nil {
		return RegistrationOptions{}, err
	}

	exclude := make([]protocol.CredentialDescriptor, 0, len(u.creds))
	for _, c := range u.WebAuthnCredentials() {
		exclude = append(exclude, c.Descriptor())
	}

	opts, sd, err := s.WebAuthn.BeginRegistration(u,
		webauthn.WithExclusions(exclude),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return RegistrationOptions{}, fmt.Errorf("begin registration: %w", err)
	}
	id, exp, err := s.saveChallenge(ctx, account.ID, domain.PurposeRegistration, sd)
	if err != nil {
		return RegistrationOptions{}, err
	}
	return RegistrationOptions{ChallengeID: id, Options: opts, ExpiresAt: exp}, nil
}

func (s *WebAuthnService) FinishRegistration(ctx context.Context, account domain.Account, challengeID, name string, body io.Reader) (domain.WebAuthnCredential, error) {
	ch, sd, err := s.consume(ctx, challengeID, domain.PurposeRegistration)
	if err != nil {
		return domain.WebAuthnCredential{}, err
	}
	if ch.AccountID != account.ID {
		return domain.WebAuthnCredential{}, domain.ErrInvalidChallenge
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		slogx.AuthDebug(ctx, "webauthn attestation unparsable", "err", err)
		return domain.WebAuthnCredential{}, domain.ErrCredentialInvalid
	}
	u, err := s.user(ctx, account)
	if err != nil {
		return domain.WebAuthnCredential{}, err
	}
	cred, err := s.WebAuthn.CreateCredential(u, sd, parsed)
	if err != nil {
		slogx.AuthDebug(ctx, "webauthn attestation rejected", "err", err)
		return domain.WebAuthnCredential{}, domain.ErrCredentialInvalid
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	if name == "" {
		name = "Passkey"
	}
	stored := domain.WebAuthnCredential{
		ID:              cred.ID,
		AccountID:       account.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		Transports:      transports,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		UserPresent:     cred.Flags.UserPresent,
		UserVerified:    cred.Flags.UserVerified,
		DeviceType:      deviceType(cred.Flags),
		Name:            truncate(name, 64),
		CreatedAt:       s.now(),
	}
	if err := s.Store.WebAuthn().CreateCredential(ctx, stored); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.WebAuthnCredential{}, domain.ErrConflict
		}
		return domain.WebAuthnCredential{}, err
	}

	emit(ctx, s.Audit, audit.Event(domain.EventWebAuthnRegistered, account.ID, "device_type", stored.DeviceType))
	return stored, nil
}

func deviceType(f webauthn.CredentialFlags) string {
	if f.BackupEligible {
		return domain.DeviceMulti
	}
	return domain.DeviceSingle
}

// BeginLogin starts an assertion. With an MFA token the challenge is bound
// to that pending login's account; without one it is a discoverable
// passkey login.
func (s *WebAuthnService) BeginLogin(ctx context.Context, mfaToken string) (LoginOptions, error) {
	var (
		opts      *protocol.CredentialAssertion
		sd        *webauthn.SessionData
		accountID string
		err       error
	)
	if mfaToken != "" {
		m, err := s.MFA.pending(ctx, mfaToken)
		if err != nil {
			return LoginOptions{}, err
		}
		if m.Kind != domain.MFAKindVerify {
			return LoginOptions{}, domain.ErrInvalidChallenge
		}
		account, err := s.Store.Accounts().GetAccountByID(ctx, m.AccountID)
		if err != nil {
			return LoginOptions{}, mapChallengeAccount(err)
		}
		u, err := s.user(ctx, account)
		if err != nil {
			return LoginOptions{}, err
		}
		if len(u.creds) == 0 {
			return LoginOptions{}, domain.ErrInvalidRequest
		}
		opts, sd, err = s.WebAuthn.BeginLogin(u)
		if err != nil {
			return LoginOptions{}, fmt.Errorf("begin login: %w", err)
		}
		accountID = account.ID
	} else {
		opts, sd, err = s.WebAuthn.BeginDiscoverableLogin(
			webauthn.WithUserVerification(protocol.VerificationPreferred),
		)
		if err != nil {
			return LoginOptions{}, fmt.Errorf("begin discoverable login: %w", err)
		}
	}

	id, exp, err := s.saveChallenge(ctx, accountID, domain.PurposeAuthentication, sd)
	if err != nil {
		return LoginOptions{}, err
	}
	return LoginOptions{ChallengeID: id, Options: opts, ExpiresAt: exp}, nil
}

func (s *WebAuthnService) FinishLogin(ctx context.Context, req FinishLoginRequest) (domain.LoginOutcome, error) {
	ch, sd, err := s.consume(ctx, req.ChallengeID, domain.PurposeAuthentication)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(req.Body)
	if err != nil {
		slogx.AuthDebug(ctx, "webauthn assertion unparsable", "err", err)
		return domain.LoginOutcome{}, domain.ErrCredentialInvalid
	}

	stored, err := s.Store.WebAuthn().GetCredential(ctx, parsed.RawID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginOutcome{}, domain.ErrCredentialInvalid
	}
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	if ch.AccountID != "" && stored.AccountID != ch.AccountID {
		return domain.LoginOutcome{}, domain.ErrCredentialInvalid
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, stored.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginOutcome{}, domain.ErrCredentialInvalid
	}
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	u, err := s.user(ctx, account)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	var cred *webauthn.Credential
	if ch.AccountID != "" {
		cred, err = s.WebAuthn.ValidateLogin(u, sd, parsed)
	} else {
		cred, err = s.WebAuthn.ValidateDiscoverableLogin(func(_, userHandle []byte) (webauthn.User, error) {
			if !bytes.Equal(userHandle, account.WebAuthnHandle) {
				return nil, errors.New("user handle does not match credential owner")
			}
			return u, nil
		}, sd, parsed)
	}
	if err != nil {
		slogx.AuthDebug(ctx, "webauthn assertion rejected", "err", err)
		return domain.LoginOutcome{}, domain.ErrCredentialInvalid
	}

	// The library keeps the stored counter on a clone warning, so the
	// check reads the value the authenticator sent.
	reported := parsed.Response.AuthenticatorData.Counter
	if err := domain.CheckSignCount(stored.SignCount, reported); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "authenticator counter did not increase",
			"account_id", account.ID, "stored", stored.SignCount, "reported", reported)
		return domain.LoginOutcome{}, err
	}

	now := s.now()
	stored.SignCount = reported
	stored.BackupState = cred.Flags.BackupState
	stored.UserPresent = cred.Flags.UserPresent
	stored.UserVerified = cred.Flags.UserVerified
	stored.DeviceType = deviceType(cred.Flags)
	stored.LastUsedAt = &now
	if err := s.Store.WebAuthn().UpdateCredentialUse(ctx, stored); err != nil {
		return domain.LoginOutcome{}, fmt.Errorf("update credential: %w", err)
	}

	if account.Banned {
		return domain.LoginOutcome{}, domain.ErrForbidden
	}

	amr := []string{domain.AMRHardware}
	if cred.Flags.UserVerified {
		amr = append(amr, domain.AMRUserVerified)
	}

	if ch.AccountID != "" {
		return s.completeSecondFactor(ctx, account, req, amr)
	}
	return s.MFA.AfterPrimary(ctx, account, amr, req.Meta, req.Next)
}

// completeSecondFactor finishes a pending MFA session with a passkey
// instead of a TOTP code.
func (s *WebAuthnService) completeSecondFactor(ctx context.Context, account domain.Account, req FinishLoginRequest, amr []string) (domain.LoginOutcome, error) {
	m, err := s.MFA.pending(ctx, req.MFAToken)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	if m.AccountID != account.ID || m.Kind != domain.MFAKindVerify {
		return domain.LoginOutcome{}, domain.ErrInvalidChallenge
	}

	var issued IssuedSession
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		deleted, err := tx.MFASessions().DeleteMFASession(ctx, m.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrInvalidChallenge
		}
		issued, err = s.MFA.Sessions.Create(ctx, tx, account, req.Meta, append(slices.Clone(m.AMR), amr...))
		return err
	})
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	s.MFA.emitLogin(ctx, account.ID, req.Meta, issued.Session.AMR)
	return domain.LoginOutcome{
		State:        domain.StateSessionIssued,
		SessionToken: issued.Token,
		Session:      issued.Session,
		Account:      account,
		Next:         m.Next,
	}, nil
}

func (s *WebAuthnService) ListCredentials(ctx context.Context, accountID string) ([]domain.WebAuthnCredential, error) {
	return s.Store.WebAuthn().ListCredentials(ctx, accountID)
}

// DeleteCredential removes a passkey after a re-auth code.
func (s *WebAuthnService) DeleteCredential(ctx context.Context, account domain.Account, id []byte, code string) error {
	if err := s.MFA.RequireReauth(ctx, account, code); err != nil {
		return err
	}
	return mapNotFound(s.Store.WebAuthn().DeleteCredential(ctx, account.ID, id))
}
