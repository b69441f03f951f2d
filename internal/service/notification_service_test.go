package service

import (
	"context"
	"testing"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/hub"
	"github.com/diagnosis/signnatural-api/internal/repo/memory"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func newNotificationEnv(t *testing.T) (NotificationService, *hub.Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("test")
	h := hub.New(hub.Config{Buffer: 8}, m)
	t.Cleanup(h.Close)
	return NewNotificationService(memory.New().Notifications(), h, m), h, m
}

func TestNotifications_CreateReachesLiveSubscriber(t *testing.T) {
	ctx := context.Background()
	svc, h, m := newNotificationEnv(t)

	sub, err := h.Subscribe(7, domain.RoleUser)
	require.NoError(t, err)

	n, err := svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(7), Message: "  Booking confirmed "})
	require.NoError(t, err)
	assert.Equal(t, domain.AudienceUser, n.Audience)
	assert.Equal(t, "Booking confirmed", n.Message)

	select {
	case f := <-sub.Frames():
		assert.Equal(t, hub.EventNotification, f.Event)
		got, ok := f.Data.(*domain.Notification)
		require.True(t, ok)
		assert.Equal(t, n.ID, got.ID)
	default:
		t.Fatal("expected a notification frame")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("user")))
}

func TestNotifications_CreateStoresForOfflineUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newNotificationEnv(t)

	_, err := svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(7), Message: "later"})
	require.NoError(t, err)

	list, err := svc.List(ctx, domain.Viewer{AccountID: 7, Role: domain.RoleUser})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "later", list[0].Message)
	assert.False(t, list[0].Read)
}

func TestNotifications_CreateValidation(t *testing.T) {
	svc, _, _ := newNotificationEnv(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &domain.CreateNotificationRequest{Message: "no user"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Create(ctx, &domain.CreateNotificationRequest{Audience: domain.AudienceAll})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Create(ctx, &domain.CreateNotificationRequest{Audience: "staff", Message: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNotifications_ListVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newNotificationEnv(t)

	_, err := svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(1), Message: "mine"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(2), Message: "theirs"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &domain.CreateNotificationRequest{Audience: domain.AudienceAdmin, Message: "ops"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &domain.CreateNotificationRequest{Audience: domain.AudienceAll, Message: "hello all"})
	require.NoError(t, err)

	user, err := svc.List(ctx, domain.Viewer{AccountID: 1, Role: domain.RoleUser})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mine", "hello all"}, messages(user))

	admin, err := svc.List(ctx, domain.Viewer{AccountID: 9, Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ops", "hello all"}, messages(admin))
}

func TestNotifications_MarkRead(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newNotificationEnv(t)
	owner := domain.Viewer{AccountID: 1, Role: domain.RoleUser}

	n, err := svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(1), Message: "mine"})
	require.NoError(t, err)

	err = svc.MarkRead(ctx, domain.Viewer{AccountID: 2, Role: domain.RoleUser}, n.ID)
	assert.ErrorIs(t, err, domain.ErrNotificationNotFound)

	require.NoError(t, svc.MarkRead(ctx, owner, n.ID))
	require.NoError(t, svc.MarkRead(ctx, owner, n.ID))

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Read)

	assert.ErrorIs(t, svc.MarkRead(ctx, owner, 12345), domain.ErrNotificationNotFound)
}

func TestNotifications_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newNotificationEnv(t)
	owner := domain.Viewer{AccountID: 1, Role: domain.RoleUser}

	for _, msg := range []string{"a", "b"} {
		_, err := svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(1), Message: msg})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, &domain.CreateNotificationRequest{UserID: int64Ptr(2), Message: "other"})
	require.NoError(t, err)

	n, err := svc.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = svc.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	other, err := svc.List(ctx, domain.Viewer{AccountID: 2, Role: domain.RoleUser})
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.False(t, other[0].Read)
}

func messages(list []domain.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.Message)
	}
	return out
}
