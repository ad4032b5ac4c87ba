package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
)

const (
	DefaultSessionTTL    = 30 * 24 * time.Hour
	DefaultTouchInterval = time.Minute
)

// IssuedSession is a freshly signed token and the record behind it.
type IssuedSession struct {
	Token   string
	Session domain.Session
}

// SessionService issues session tokens and owns their server-side records.
// A token is only honoured while its record is active.
type SessionService struct {
	Store         store.Store
	Issuer        *jwtx.SessionIssuer
	TTL           time.Duration
	TouchInterval time.Duration
	Now           func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ttl honours the session.max_age_seconds setting when it is set.
func (s *SessionService) ttl(ctx context.Context, st store.Store) time.Duration {
	if raw, err := st.Settings().GetSetting(ctx, domain.SettingSessionMaxAge); err == nil {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

// Create signs a token and stores its record through st, which may be a
// transaction so the record commits with the rest of a login step.
func (s *SessionService) Create(ctx context.Context, st store.Store, account domain.Account, meta domain.RequestMeta, amr []string) (IssuedSession, error) {
	if st == nil {
		st = s.Store
	}
	now := s.now()
	ttl := s.ttl(ctx, st)
	jti := jwtx.NewJTI()

	token, err := s.Issuer.Issue(account.ID, account.Username, account.Groups, ttl, jti)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("issue session token: %w", err)
	}

	sess := domain.Session{
		ID:         jti,
		AccountID:  account.ID,
		UserAgent:  truncate(meta.UserAgent, 512),
		IP:         meta.IP,
		AMR:        dedupe(amr),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := st.Sessions().CreateSession(ctx, sess); err != nil {
		return IssuedSession{}, fmt.Errorf("store session: %w", err)
	}
	return IssuedSession{Token: token, Session: sess}, nil
}

// Active returns the record for jti if it can still authenticate requests,
// and ErrUnauthenticated otherwise.
func (s *SessionService) Active(ctx context.Context, jti string) (domain.Session, error) {
	sess, err := s.Store.Sessions().GetSession(ctx, jti)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.Active(s.now()) {
		return domain.Session{}, domain.ErrUnauthenticated
	}
	return sess, nil
}

func (s *SessionService) IsActive(ctx context.Context, jti string) (bool, error) {
	_, err := s.Active(ctx, jti)
	if errors.Is(err, domain.ErrUnauthenticated) {
		return false, nil
	}
	return err == nil, err
}

// Touch records activity, at most once per TouchInterval.
func (s *SessionService) Touch(ctx context.Context, jti string) (bool, error) {
	interval := s.TouchInterval
	if interval <= 0 {
		interval = DefaultTouchInterval
	}
	return s.Store.Sessions().TouchSession(ctx, jti, s.now(), interval)
}

func (s *SessionService) Revoke(ctx context.Context, jti string) (bool, error) {
	return s.Store.Sessions().RevokeSession(ctx, jti, s.now())
}

// RevokeOwned revokes jti only if it belongs to accountID. Other accounts'
// sessions are reported as not found.
func (s *SessionService) RevokeOwned(ctx context.Context, accountID, jti string) error {
	sess, err := s.Store.Sessions().GetSession(ctx, jti)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.AccountID != accountID) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := s.Revoke(ctx, jti); err != nil {
		return err
	}
	return nil
}

func (s *SessionService) ListForAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	return s.Store.Sessions().ListSessionsForAccount(ctx, accountID, s.now())
}

func (s *SessionService) RevokeAllExcept(ctx context.Context, accountID, keepID string) (int64, error) {
	return s.Store.Sessions().RevokeAllExcept(ctx, accountID, keepID, s.now())
}

func (s *SessionService) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	return s.Store.Sessions().RevokeAllForAccount(ctx, accountID, s.now())
}
