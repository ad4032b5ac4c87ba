package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type mfaSessionsRepo struct {
	db dbtx
}

const mfaSessionColumns = `id, account_id, kind, pending_secret, amr, attempts, next, created_at, expires_at`

func scanMFASession(row rowScanner) (domain.MFASession, error) {
	var (
		m                    domain.MFASession
		kind, amr            string
		pending              sql.NullString
		createdAt, expiresAt int64
	)
	err := row.Scan(&m.ID, &m.AccountID, &kind, &pending, &amr, &m.Attempts, &m.Next, &createdAt, &expiresAt)
	if err != nil {
		return domain.MFASession{}, mapNotFound(err)
	}
	m.Kind = domain.MFAKind(kind)
	m.PendingSecret = mapNullString(pending)
	m.AMR = splitList(amr)
	m.CreatedAt = fromMillis(createdAt)
	m.ExpiresAt = fromMillis(expiresAt)
	return m, nil
}

func (r *mfaSessionsRepo) CreateMFASession(ctx context.Context, m domain.MFASession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_sessions (id, account_id, kind, pending_secret, amr, attempts, next, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, string(m.Kind), mapStringNull(m.PendingSecret), joinList(m.AMR),
		m.Attempts, m.Next, millis(m.CreatedAt), millis(m.ExpiresAt))
	return mapConstraint(err)
}

// GetMFASession returns the session even if expired; the caller decides.
func (r *mfaSessionsRepo) GetMFASession(ctx context.Context, id string) (domain.MFASession, error) {
	return scanMFASession(r.db.QueryRowContext(ctx,
		`SELECT `+mfaSessionColumns+` FROM mfa_sessions WHERE id = ?`, id))
}

func (r *mfaSessionsRepo) IncrementMFASessionAttempts(ctx context.Context, id string) (domain.MFASession, error) {
	return scanMFASession(r.db.QueryRowContext(ctx,
		`UPDATE mfa_sessions SET attempts = attempts + 1 WHERE id = ? RETURNING `+mfaSessionColumns, id))
}

func (r *mfaSessionsRepo) DeleteMFASession(ctx context.Context, id string) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx, `DELETE FROM mfa_sessions WHERE id = ?`, id))
	return n == 1, err
}

func (r *mfaSessionsRepo) DeleteExpiredMFASessions(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM mfa_sessions WHERE expires_at <= ?`, millis(now)))
}
