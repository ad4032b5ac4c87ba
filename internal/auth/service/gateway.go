package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// Gateway turns a session token into a trusted identity. Checks run in a
// fixed order: signature and expiry, then the session record, then the
// account. Every failure is ErrUnauthenticated.
type Gateway struct {
	Sessions *SessionService
	Accounts *AccountCache
}

func (g *Gateway) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	res := g.Sessions.Issuer.Verify(token)
	if !res.Valid() {
		slogx.AuthDebug(ctx, "session token rejected", "reason", string(res.Reason))
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	claims := res.Claims

	sess, err := g.Sessions.Active(ctx, claims.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			slogx.FromContext(ctx).ErrorContext(ctx, "session lookup failed", "err", err)
		}
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if sess.AccountID != claims.Subject {
		slogx.AuthDebug(ctx, "session subject mismatch", "jti", claims.ID)
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	acct, err := g.Accounts.Get(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).ErrorContext(ctx, "account lookup failed", "err", err)
		}
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	if acct.Banned {
		slogx.AuthDebug(ctx, "session for banned account", "account_id", acct.ID)
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	if _, err := g.Sessions.Touch(ctx, sess.ID); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "session touch failed", "err", err)
	}

	return domain.Identity{
		AccountID: acct.ID,
		Username:  acct.Username,
		Groups:    acct.Groups,
		SessionID: sess.ID,
		AMR:       sess.AMR,
	}, nil
}
