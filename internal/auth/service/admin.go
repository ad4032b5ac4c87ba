package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/idx"
)

// AdminService holds the operations reserved for the admin group. Each
// write that changes account validity invalidates the cache.
type AdminService struct {
	Store    store.Store
	Sessions *SessionService
	Cache    *AccountCache
	Audit    audit.Emitter
}

// accountRef normalizes an account id taken from a path. Anything that is
// not a ULID cannot name an account.
func accountRef(accountID string) (string, error) {
	id, err := idx.Parse(accountID)
	if err != nil {
		return "", domain.ErrNotFound
	}
	return id.String(), nil
}

func (s *AdminService) SetBanned(ctx context.Context, actor, accountID string, banned bool) error {
	accountID, err := accountRef(accountID)
	if err != nil {
		return err
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().SetBanned(ctx, accountID, banned); err != nil {
			return err
		}
		if !banned {
			return nil
		}
		_, err := tx.Sessions().RevokeAllForAccount(ctx, accountID, s.Sessions.now())
		return err
	})
	if err != nil {
		return mapNotFound(err)
	}
	s.Cache.Invalidate(accountID)

	if banned {
		ev := audit.Event(domain.EventBanned, accountID)
		ev.Actor = actor
		emit(ctx, s.Audit, ev)
	}
	return nil
}

func (s *AdminService) SetGroups(ctx context.Context, actor, accountID string, groups []string) error {
	accountID, err := accountRef(accountID)
	if err != nil {
		return err
	}
	clean := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" || strings.ContainsAny(g, ", ") {
			return fmt.Errorf("%w: invalid group %q", domain.ErrInvalidRequest, g)
		}
		clean = append(clean, g)
	}
	if err := s.Store.Accounts().SetGroups(ctx, accountID, dedupe(clean)); err != nil {
		return mapNotFound(err)
	}
	s.Cache.Invalidate(accountID)
	return nil
}

// RevokeSessions signs an account out everywhere.
func (s *AdminService) RevokeSessions(ctx context.Context, actor, accountID string) (int64, error) {
	accountID, err := accountRef(accountID)
	if err != nil {
		return 0, err
	}
	if _, err := s.Store.Accounts().GetAccountByID(ctx, accountID); err != nil {
		return 0, mapNotFound(err)
	}
	n, err := s.Sessions.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.Cache.Invalidate(accountID)

	ev := audit.Event(domain.EventSessionsRevoked, accountID, "reason", "admin")
	ev.Actor = actor
	emit(ctx, s.Audit, ev)
	return n, nil
}

// DeleteAccount removes the account. Sessions, identities and credentials
// go with it.
func (s *AdminService) DeleteAccount(ctx context.Context, actor, accountID string) error {
	accountID, err := accountRef(accountID)
	if err != nil {
		return err
	}
	if err := s.Store.Accounts().DeleteAccount(ctx, accountID); err != nil {
		return mapNotFound(err)
	}
	s.Cache.Invalidate(accountID)

	ev := audit.Event(domain.EventDeleted, accountID)
	ev.Actor = actor
	emit(ctx, s.Audit, ev)
	return nil
}

func (s *AdminService) Settings(ctx context.Context) (map[string]string, error) {
	return s.Store.Settings().ListSettings(ctx)
}

// PutSettings validates and writes known settings.
func (s *AdminService) PutSettings(ctx context.Context, settings map[string]string) error {
	for k, v := range settings {
		if err := validateSetting(k, v); err != nil {
			return err
		}
	}
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		for k, v := range settings {
			if err := tx.Settings().PutSetting(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Cache.InvalidateAll()
	return nil
}

func validateSetting(key, value string) error {
	switch key {
	case domain.SettingMFARequired, domain.SettingMFAEnforcedAdmins:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s must be a boolean", domain.ErrInvalidRequest, key)
		}
	case domain.SettingSessionMaxAge:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 60 {
			return fmt.Errorf("%w: %s must be at least 60", domain.ErrInvalidRequest, key)
		}
	default:
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidRequest, key)
	}
	return nil
}

var ErrNoAdmin = errors.New("service: no admin account exists")

// EnsureAdmin returns ErrNoAdmin when no account is in the admin group, so
// startup can warn that the CLI must create one.
func (s *AdminService) EnsureAdmin(ctx context.Context) error {
	accounts, err := s.Store.Accounts().ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.InGroup(domain.GroupAdmin) {
			return nil
		}
	}
	return ErrNoAdmin
}
