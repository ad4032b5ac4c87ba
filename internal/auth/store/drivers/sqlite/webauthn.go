package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type webauthnRepo struct {
	db dbtx
}

func (r *webauthnRepo) CreateChallenge(ctx context.Context, c domain.WebAuthnChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webauthn_challenges (id, account_id, purpose, session_data, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, mapStringNull(c.AccountID), string(c.Purpose), c.SessionData,
		millis(c.CreatedAt), millis(c.ExpiresAt))
	return mapConstraint(err)
}

func (r *webauthnRepo) ConsumeChallenge(ctx context.Context, id string) (domain.WebAuthnChallenge, error) {
	var (
		c                    domain.WebAuthnChallenge
		accountID            sql.NullString
		purpose              string
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM webauthn_challenges WHERE id = ?
		RETURNING id, account_id, purpose, session_data, created_at, expires_at`, id,
	).Scan(&c.ID, &accountID, &purpose, &c.SessionData, &createdAt, &expiresAt)
	if err != nil {
		return domain.WebAuthnChallenge{}, mapNotFound(err)
	}
	c.AccountID = mapNullString(accountID)
	c.Purpose = domain.ChallengePurpose(purpose)
	c.CreatedAt = fromMillis(createdAt)
	c.ExpiresAt = fromMillis(expiresAt)
	return c, nil
}

func (r *webauthnRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM webauthn_challenges WHERE expires_at <= ?`, millis(now)))
}

const credentialColumns = `id, account_id, public_key, attestation_type, aaguid, sign_count, transports,
	backup_eligible, backup_state, user_present, user_verified, device_type, name, created_at, last_used_at`

func scanCredential(row rowScanner) (domain.WebAuthnCredential, error) {
	var (
		c              domain.WebAuthnCredential
		transports     string
		be, bs, up, uv int
		createdAt      int64
		lastUsed       sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.PublicKey, &c.AttestationType, &c.AAGUID, &c.SignCount,
		&transports, &be, &bs, &up, &uv, &c.DeviceType, &c.Name, &createdAt, &lastUsed)
	if err != nil {
		return domain.WebAuthnCredential{}, mapNotFound(err)
	}
	c.Transports = splitList(transports)
	c.BackupEligible = be != 0
	c.BackupState = bs != 0
	c.UserPresent = up != 0
	c.UserVerified = uv != 0
	c.CreatedAt = fromMillis(createdAt)
	c.LastUsedAt = mapNullMillis(lastUsed)
	return c, nil
}

func (r *webauthnRepo) CreateCredential(ctx context.Context, c domain.WebAuthnCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webauthn_credentials (id, account_id, public_key, attestation_type, aaguid, sign_count,
			transports, backup_eligible, backup_state, user_present, user_verified, device_type, name,
			created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.PublicKey, c.AttestationType, c.AAGUID, c.SignCount,
		joinList(c.Transports), boolInt(c.BackupEligible), boolInt(c.BackupState),
		boolInt(c.UserPresent), boolInt(c.UserVerified), c.DeviceType, c.Name,
		millis(c.CreatedAt), mapOptionalMillis(c.LastUsedAt))
	return mapConstraint(err)
}

func (r *webauthnRepo) GetCredential(ctx context.Context, id []byte) (domain.WebAuthnCredential, error) {
	return scanCredential(r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM webauthn_credentials WHERE id = ?`, id))
}

func (r *webauthnRepo) ListCredentials(ctx context.Context, accountID string) ([]domain.WebAuthnCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM webauthn_credentials WHERE account_id = ? ORDER BY created_at`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WebAuthnCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *webauthnRepo) UpdateCredentialUse(ctx context.Context, c domain.WebAuthnCredential) error {
	return requireAffected(r.db.ExecContext(ctx, `
		UPDATE webauthn_credentials
		SET sign_count = ?, backup_state = ?, user_present = ?, user_verified = ?, device_type = ?, last_used_at = ?
		WHERE id = ?`,
		c.SignCount, boolInt(c.BackupState), boolInt(c.UserPresent), boolInt(c.UserVerified),
		c.DeviceType, mapOptionalMillis(c.LastUsedAt), c.ID))
}

func (r *webauthnRepo) DeleteCredential(ctx context.Context, accountID string, id []byte) error {
	return requireAffected(r.db.ExecContext(ctx,
		`DELETE FROM webauthn_credentials WHERE account_id = ? AND id = ?`, accountID, id))
}
