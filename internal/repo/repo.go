// Package repo declares the persistence contracts shared by the Postgres and
// in-memory stores. Lookups return (nil, nil) when nothing matches.
package repo

import (
	"context"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
)

type AccountStore interface {
	// Create returns domain.ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, a *domain.Account) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	MarkVerified(ctx context.Context, id int64) error
}

type CodeStore interface {
	// Replace atomically supersedes any code for (accountID, purpose), so at
	// most one code exists per pair no matter how calls interleave.
	Replace(ctx context.Context, accountID int64, purpose domain.Purpose, codeHash string, expiresAt time.Time) (*domain.OneTimeCode, error)
	// FindActive ignores codes whose expiry has passed.
	FindActive(ctx context.Context, accountID int64, purpose domain.Purpose) (*domain.OneTimeCode, error)
	// Consume deletes the code only if it is still the stored one. It reports
	// false when another caller consumed or replaced it first.
	Consume(ctx context.Context, id int64, codeHash string) (bool, error)
	DeleteFor(ctx context.Context, accountID int64, purpose domain.Purpose) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	FindByID(ctx context.Context, id int64) (*domain.Notification, error)
	// ListVisible returns unread first, newest first.
	ListVisible(ctx context.Context, v domain.Viewer, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, v domain.Viewer) (int64, error)
}

// Stores groups the backing stores so callers can swap implementations in one place.
type Stores struct {
	Accounts      AccountStore
	Codes         CodeStore
	Notifications NotificationStore
}
