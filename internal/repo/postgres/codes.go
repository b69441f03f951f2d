package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CodesRepo struct{ pool *pgxpool.Pool }

func NewCodesRepo(pool *pgxpool.Pool) *CodesRepo { return &CodesRepo{pool: pool} }

// Replace upserts on (account_id, purpose). The row gets a fresh id so a
// Consume racing against it with the old id finds nothing.
func (r *CodesRepo) Replace(ctx context.Context, accountID int64, purpose domain.Purpose, codeHash string, expiresAt time.Time) (*domain.OneTimeCode, error) {
	const q = `
INSERT INTO one_time_codes (account_id, purpose, code_hash, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (account_id, purpose) DO UPDATE
SET id         = nextval(pg_get_serial_sequence('one_time_codes', 'id')),
    code_hash  = EXCLUDED.code_hash,
    expires_at = EXCLUDED.expires_at,
    created_at = now()
RETURNING id, account_id, purpose, code_hash, created_at, expires_at`
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var c domain.OneTimeCode
	if err := r.pool.QueryRow(ctx, q, accountID, string(purpose), codeHash, expiresAt).Scan(
		&c.ID, &c.AccountID, &c.Purpose, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CodesRepo) FindActive(ctx context.Context, accountID int64, purpose domain.Purpose) (*domain.OneTimeCode, error) {
	const q = `
SELECT id, account_id, purpose, code_hash, created_at, expires_at
FROM one_time_codes
WHERE account_id = $1 AND purpose = $2 AND expires_at > now()`
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var c domain.OneTimeCode
	if err := r.pool.QueryRow(ctx, q, accountID, string(purpose)).Scan(
		&c.ID, &c.AccountID, &c.Purpose, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt,
	); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CodesRepo) Consume(ctx context.Context, id int64, codeHash string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM one_time_codes WHERE id = $1 AND code_hash = $2`, id, codeHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CodesRepo) DeleteFor(ctx context.Context, accountID int64, purpose domain.Purpose) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.pool.Exec(ctx, `DELETE FROM one_time_codes WHERE account_id = $1 AND purpose = $2`, accountID, string(purpose))
	return err
}

func (r *CodesRepo) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM one_time_codes WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
