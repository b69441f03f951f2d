package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/repo"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
)

// Broadcaster pushes a stored notification to live subscribers.
type Broadcaster interface {
	Publish(n *domain.Notification) int
}

type NotificationService interface {
	List(ctx context.Context, v domain.Viewer) ([]domain.Notification, error)
	MarkRead(ctx context.Context, v domain.Viewer, id int64) error
	MarkAllRead(ctx context.Context, v domain.Viewer) (int64, error)
	Create(ctx context.Context, req *domain.CreateNotificationRequest) (*domain.Notification, error)
}

type notificationService struct {
	store   repo.NotificationStore
	hub     Broadcaster
	metrics *metrics.Metrics
}

func NewNotificationService(store repo.NotificationStore, hub Broadcaster, m *metrics.Metrics) NotificationService {
	if m == nil {
		m = metrics.New("signnatural")
	}
	return &notificationService{store: store, hub: hub, metrics: m}
}

func (s *notificationService) List(ctx context.Context, v domain.Viewer) ([]domain.Notification, error) {
	list, err := s.store.ListVisible(ctx, v, domain.MaxListedNotifications)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// MarkRead is idempotent. Notifications the viewer cannot see are reported
// as not found.
func (s *notificationService) MarkRead(ctx context.Context, v domain.Viewer, id int64) error {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find notification: %w", err)
	}
	if n == nil || !n.VisibleTo(v) {
		return domain.ErrNotificationNotFound
	}
	if n.Read {
		return nil
	}
	if err := s.store.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, v domain.Viewer) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, v)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// Create stores the notification, then offers it to live subscribers.
// Offline subscribers pick it up from List later.
func (s *notificationService) Create(ctx context.Context, req *domain.CreateNotificationRequest) (*domain.Notification, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	n, err := s.store.Create(ctx, &domain.Notification{
		UserID:   req.UserID,
		Audience: req.Audience,
		Type:     req.Type,
		Message:  req.Message,
		Link:     req.Link,
		Meta:     req.Meta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.Notifications.WithLabelValues(string(n.Audience)).Inc()

	delivered := 0
	if s.hub != nil {
		delivered = s.hub.Publish(n)
	}
	logger.InfoContext(ctx, "notification created", "notification_id", n.ID, "audience", n.Audience, "type", n.Type, "live_deliveries", delivered)
	return n, nil
}
