package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, account_id, user_agent, ip, amr, created_at, last_seen_at, expires_at, revoked_at`

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s                              domain.Session
		amr                            string
		createdAt, lastSeen, expiresAt int64
		revokedAt                      sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.UserAgent, &s.IP, &amr,
		&createdAt, &lastSeen, &expiresAt, &revokedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.AMR = splitList(amr)
	s.CreatedAt = fromMillis(createdAt)
	s.LastSeenAt = fromMillis(lastSeen)
	s.ExpiresAt = fromMillis(expiresAt)
	s.RevokedAt = mapNullMillis(revokedAt)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	if s.LastSeenAt.IsZero() {
		s.LastSeenAt = s.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, user_agent, ip, amr, created_at, last_seen_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AccountID, s.UserAgent, s.IP, joinList(s.AMR),
		millis(s.CreatedAt), millis(s.LastSeenAt), millis(s.ExpiresAt), mapOptionalMillis(s.RevokedAt))
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id string, now time.Time, minInterval time.Duration) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx, `
		UPDATE sessions SET last_seen_at = ?
		WHERE id = ? AND revoked_at IS NULL AND last_seen_at < ?`,
		millis(now), id, millis(now.Add(-minInterval))))
	return n == 1, err
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		millis(now), id))
	return n == 1, err
}

func (r *sessionsRepo) ListSessionsForAccount(ctx context.Context, accountID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE account_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC, id DESC`,
		accountID, millis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) RevokeAllExcept(ctx context.Context, accountID, keepID string, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?
		WHERE account_id = ? AND id <> ? AND revoked_at IS NULL`,
		millis(now), accountID, keepID))
}

func (r *sessionsRepo) RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE account_id = ? AND revoked_at IS NULL`,
		millis(now), accountID))
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, millis(now)))
}
