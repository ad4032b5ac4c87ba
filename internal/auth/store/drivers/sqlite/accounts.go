package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type accountsRepo struct {
	db dbtx
}

const accountColumns = `id, username, email, password_hash, group_list, banned,
	mfa_secret, mfa_last_step, webauthn_handle, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var (
		a                    domain.Account
		email, hash, secret  sql.NullString
		groups               string
		banned               int
		createdAt, updatedAt int64
	)
	err := row.Scan(&a.ID, &a.Username, &email, &hash, &groups, &banned,
		&secret, &a.MFALastStep, &a.WebAuthnHandle, &createdAt, &updatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.Email = mapNullString(email)
	a.PasswordHash = mapNullString(hash)
	a.Groups = splitList(groups)
	a.Banned = banned != 0
	a.MFASecret = mapNullString(secret)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

func (r *accountsRepo) GetAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username_norm = ?`,
		domain.NormalizeUsername(username)))
}

func (r *accountsRepo) GetAccountByWebAuthnHandle(ctx context.Context, handle []byte) (domain.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE webauthn_handle = ?`, handle))
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, username_norm, email, password_hash, group_list,
			banned, mfa_secret, mfa_last_step, webauthn_handle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, domain.NormalizeUsername(a.Username), mapStringNull(a.Email),
		mapStringNull(a.PasswordHash), joinList(a.Groups), boolInt(a.Banned),
		mapStringNull(a.MFASecret), a.MFALastStep, a.WebAuthnHandle,
		millis(a.CreatedAt), millis(now))
	return mapConstraint(err)
}

func (r *accountsRepo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY username_norm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountsRepo) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(hash), millis(time.Now()), id))
}

func (r *accountsRepo) SetBanned(ctx context.Context, id string, banned bool) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE accounts SET banned = ?, updated_at = ? WHERE id = ?`,
		boolInt(banned), millis(time.Now()), id))
}

func (r *accountsRepo) SetGroups(ctx context.Context, id string, groups []string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE accounts SET group_list = ?, updated_at = ? WHERE id = ?`,
		joinList(groups), millis(time.Now()), id))
}

func (r *accountsRepo) SetMFA(ctx context.Context, id, secret string, lastStep int64) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE accounts SET mfa_secret = ?, mfa_last_step = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(secret), lastStep, millis(time.Now()), id))
}

func (r *accountsRepo) AdvanceMFAStep(ctx context.Context, id string, step int64) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE accounts SET mfa_last_step = ? WHERE id = ? AND mfa_last_step < ?`,
		step, id, step))
	return n == 1, err
}

func (r *accountsRepo) ClearMFA(ctx context.Context, id string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE accounts SET mfa_secret = NULL, updated_at = ? WHERE id = ?`,
		millis(time.Now()), id))
}

func (r *accountsRepo) DeleteAccount(ctx context.Context, id string) error {
	return requireAffected(r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id))
}
