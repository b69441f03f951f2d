package postgres

import (
	"context"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountsRepo struct{ pool *pgxpool.Pool }

func NewAccountsRepo(pool *pgxpool.Pool) *AccountsRepo { return &AccountsRepo{pool: pool} }

const accountColumns = `id, name, email, role, password_hash, email_verified, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.PasswordHash, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountsRepo) Create(ctx context.Context, in *domain.Account) (*domain.Account, error) {
	const q = `
INSERT INTO accounts (name, email, role, password_hash, email_verified)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + accountColumns
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	a, err := scanAccount(r.pool.QueryRow(ctx, q, in.Name, domain.NormalizeEmail(in.Email), role, in.PasswordHash, in.EmailVerified))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return a, nil
}

func (r *AccountsRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return scanAccount(r.pool.QueryRow(ctx, q, domain.NormalizeEmail(email)))
}

func (r *AccountsRepo) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return scanAccount(r.pool.QueryRow(ctx, q, id))
}

func (r *AccountsRepo) MarkVerified(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
UPDATE accounts
SET email_verified = true, updated_at = now()
WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
