// Package postgres implements the repo contracts on pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/signnatural-api/internal/repo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 3 * time.Second

const uniqueViolation = "23505"

func NewStores(pool *pgxpool.Pool) repo.Stores {
	return repo.Stores{
		Accounts:      NewAccountsRepo(pool),
		Codes:         NewCodesRepo(pool),
		Notifications: NewNotificationsRepo(pool),
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
