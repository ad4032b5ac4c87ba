package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type identitiesRepo struct {
	db dbtx
}

const identityColumns = `provider, subject, account_id, email, refresh_token, created_at`

func scanIdentity(row rowScanner) (domain.ExternalIdentity, error) {
	var (
		i              domain.ExternalIdentity
		email, refresh sql.NullString
		createdAt      int64
	)
	if err := row.Scan(&i.Provider, &i.Subject, &i.AccountID, &email, &refresh, &createdAt); err != nil {
		return domain.ExternalIdentity{}, mapNotFound(err)
	}
	i.Email = mapNullString(email)
	i.RefreshToken = mapNullString(refresh)
	i.CreatedAt = fromMillis(createdAt)
	return i, nil
}

func (r *identitiesRepo) CreateIdentity(ctx context.Context, i domain.ExternalIdentity) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO external_identities (provider, subject, account_id, email, refresh_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.Provider, i.Subject, i.AccountID, mapStringNull(i.Email), mapStringNull(i.RefreshToken),
		millis(i.CreatedAt))
	return mapConstraint(err)
}

func (r *identitiesRepo) GetIdentity(ctx context.Context, provider, subject string) (domain.ExternalIdentity, error) {
	return scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM external_identities WHERE provider = ? AND subject = ?`,
		provider, subject))
}

func (r *identitiesRepo) ListIdentitiesForAccount(ctx context.Context, accountID string) ([]domain.ExternalIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM external_identities WHERE account_id = ? ORDER BY provider`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExternalIdentity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *identitiesRepo) UpdateRefreshToken(ctx context.Context, provider, subject, encrypted string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE external_identities SET refresh_token = ? WHERE provider = ? AND subject = ?`,
		mapStringNull(encrypted), provider, subject))
}

func (r *identitiesRepo) DeleteIdentity(ctx context.Context, accountID, provider string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`DELETE FROM external_identities WHERE account_id = ? AND provider = ?`, accountID, provider))
}
