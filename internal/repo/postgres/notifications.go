package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationsRepo struct{ pool *pgxpool.Pool }

func NewNotificationsRepo(pool *pgxpool.Pool) *NotificationsRepo {
	return &NotificationsRepo{pool: pool}
}

const notificationColumns = `id, user_id, audience, type, message, link, meta, read, created_at, updated_at`

// visibleTo matches domain.Notification.VisibleTo with $1 the account id and
// $2 whether the viewer is an admin.
const visibleTo = `(user_id = $1 OR audience = 'all' OR (audience = 'admin' AND $2::boolean))`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		n    domain.Notification
		aud  string
		meta []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &aud, &n.Type, &n.Message, &n.Link, &meta, &n.Read, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Audience = domain.Audience(aud)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Meta); err != nil {
			return nil, fmt.Errorf("decode notification meta: %w", err)
		}
	}
	return &n, nil
}

func (r *NotificationsRepo) Create(ctx context.Context, in *domain.Notification) (*domain.Notification, error) {
	const q = `
INSERT INTO notifications (user_id, audience, type, message, link, meta)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + notificationColumns
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var meta []byte
	if len(in.Meta) > 0 {
		b, err := json.Marshal(in.Meta)
		if err != nil {
			return nil, fmt.Errorf("encode notification meta: %w", err)
		}
		meta = b
	}
	return scanNotification(r.pool.QueryRow(ctx, q, in.UserID, string(in.Audience), in.Type, in.Message, in.Link, meta))
}

func (r *NotificationsRepo) FindByID(ctx context.Context, id int64) (*domain.Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	n, err := scanNotification(r.pool.QueryRow(ctx, q, id))
	if isNoRows(err) {
		return nil, nil
	}
	return n, err
}

func (r *NotificationsRepo) ListVisible(ctx context.Context, v domain.Viewer, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > domain.MaxListedNotifications {
		limit = domain.MaxListedNotifications
	}
	q := `SELECT ` + notificationColumns + ` FROM notifications
WHERE ` + visibleTo + `
ORDER BY read ASC, created_at DESC, id DESC
LIMIT $3`
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, v.AccountID, v.Role == domain.RoleAdmin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *NotificationsRepo) MarkRead(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
UPDATE notifications
SET read = true, updated_at = CASE WHEN read THEN updated_at ELSE now() END
WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationsRepo) MarkAllRead(ctx context.Context, v domain.Viewer) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
UPDATE notifications
SET read = true, updated_at = now()
WHERE read = false AND `+visibleTo, v.AccountID, v.Role == domain.RoleAdmin)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
