package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type handshakesRepo struct {
	db dbtx
}

func (r *handshakesRepo) SaveHandshake(ctx context.Context, h domain.HandshakeState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO handshake_states (state, provider, purpose, bound_account_id, nonce, pkce_verifier, redirect_next, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.State, h.Provider, string(h.Purpose), mapStringNull(h.BoundAccountID),
		h.Nonce, h.PKCEVerifier, h.RedirectNext, millis(h.IssuedAt))
	return mapConstraint(err)
}

func (r *handshakesRepo) ConsumeHandshake(ctx context.Context, state string) (domain.HandshakeState, error) {
	var (
		h        domain.HandshakeState
		purpose  string
		bound    sql.NullString
		issuedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM handshake_states WHERE state = ?
		RETURNING state, provider, purpose, bound_account_id, nonce, pkce_verifier, redirect_next, issued_at`,
		state,
	).Scan(&h.State, &h.Provider, &purpose, &bound, &h.Nonce, &h.PKCEVerifier, &h.RedirectNext, &issuedAt)
	if err != nil {
		return domain.HandshakeState{}, mapNotFound(err)
	}
	h.Purpose = domain.HandshakePurpose(purpose)
	h.BoundAccountID = mapNullString(bound)
	h.IssuedAt = fromMillis(issuedAt)
	return h, nil
}

func (r *handshakesRepo) DeleteExpiredHandshakes(ctx context.Context, issuedBefore time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM handshake_states WHERE issued_at < ?`, millis(issuedBefore)))
}
