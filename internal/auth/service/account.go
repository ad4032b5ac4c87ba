package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/idx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
	maxUsernameLength = 64
)

// newAccount fills in the generated fields of a fresh account.
func newAccount(username, email, passwordHash string, groups []string) (domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return domain.Account{}, fmt.Errorf("%w: username must be 1-%d characters", domain.ErrInvalidRequest, maxUsernameLength)
	}
	handle := uuid.New()
	now := time.Now()
	return domain.Account{
		ID:             idx.New().String(),
		Username:       username,
		Email:          strings.TrimSpace(email),
		PasswordHash:   passwordHash,
		Groups:         dedupe(groups),
		WebAuthnHandle: handle[:],
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func validatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < MinPasswordLength || len(pw) > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", domain.ErrInvalidRequest, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

// CreateAccountRequest is used by the admin CLI and first-run setup.
type CreateAccountRequest struct {
	Username string
	Email    string
	Password string
	Groups   []string
}

// AccountService covers self-service account changes.
type AccountService struct {
	Store    store.Store
	Hasher   *cryptox.Hasher
	Sessions *SessionService
	MFA      *MFAService
	Cache    *AccountCache
	Audit    audit.Emitter
}

func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	a, err := s.Store.Accounts().GetAccountByID(ctx, id)
	return a, mapNotFound(err)
}

func (s *AccountService) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	a, err := s.Store.Accounts().GetAccountByUsername(ctx, username)
	return a, mapNotFound(err)
}

func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	return s.Store.Accounts().ListAccounts(ctx)
}

// Create adds a local account. An empty password creates an account that
// can only sign in through a provider or passkey.
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest) (domain.Account, error) {
	var hash string
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return domain.Account{}, err
		}
		var err error
		if hash, err = s.Hasher.Hash(req.Password); err != nil {
			return domain.Account{}, fmt.Errorf("hash password: %w", err)
		}
	}
	groups := req.Groups
	if len(groups) == 0 {
		groups = []string{domain.GroupUser}
	}
	a, err := newAccount(req.Username, req.Email, hash, groups)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.Store.Accounts().CreateAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, domain.ErrConflict
		}
		return domain.Account{}, err
	}
	return a, nil
}

// ChangePasswordRequest is a signed-in password change.
type ChangePasswordRequest struct {
	AccountID       string
	SessionID       string
	CurrentPassword string
	NewPassword     string
	Code            string
}

// ChangePassword checks the current password (if any) and the re-auth code,
// stores the new hash and revokes every other session of the account.
func (s *AccountService) ChangePassword(ctx context.Context, req ChangePasswordRequest) (int64, error) {
	account, err := s.Get(ctx, req.AccountID)
	if err != nil {
		return 0, err
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return 0, err
	}
	if account.HasPassword() {
		ok, err := s.Hasher.Verify(req.CurrentPassword, account.PasswordHash)
		if err != nil {
			return 0, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return 0, domain.ErrCredentialInvalid
		}
	}
	if err := s.MFA.RequireReauth(ctx, account, req.Code); err != nil {
		return 0, err
	}

	hash, err := s.Hasher.Hash(req.NewPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var revoked int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
		revoked, err = tx.Sessions().RevokeAllExcept(ctx, account.ID, req.SessionID, s.Sessions.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.Cache.Invalidate(account.ID)

	emit(ctx, s.Audit, audit.Event(domain.EventPasswordChanged, account.ID))
	if revoked > 0 {
		emit(ctx, s.Audit, audit.Event(domain.EventSessionsRevoked, account.ID, "reason", "password_changed"))
	}
	return revoked, nil
}

// RevokeOtherSessions signs out everywhere except the current session.
func (s *AccountService) RevokeOtherSessions(ctx context.Context, accountID, keepID string) (int64, error) {
	n, err := s.Sessions.RevokeAllExcept(ctx, accountID, keepID)
	if err != nil {
		return 0, err
	}
	s.Cache.Invalidate(accountID)
	emit(ctx, s.Audit, audit.Event(domain.EventSessionsRevoked, accountID, "reason", "user"))
	return n, nil
}

// Logout revokes the current session.
func (s *AccountService) Logout(ctx context.Context, identity domain.Identity, meta domain.RequestMeta) error {
	if _, err := s.Sessions.Revoke(ctx, identity.SessionID); err != nil {
		return err
	}
	ev := audit.Event(domain.EventLogout, identity.AccountID)
	ev.IP = meta.IP
	emit(ctx, s.Audit, ev)
	return nil
}
