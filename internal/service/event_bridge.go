package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/pkg/events"
	"github.com/diagnosis/signnatural-api/pkg/logger"
)

const bridgeQueue = "notifications"

// EventBridge turns domain events from the bus into stored notifications.
type EventBridge struct {
	notifications NotificationService
	timeout       time.Duration
}

func NewEventBridge(notifications NotificationService) *EventBridge {
	return &EventBridge{notifications: notifications, timeout: 5 * time.Second}
}

// Register subscribes the bridge with a queue group so that several API
// instances store each event once.
func (b *EventBridge) Register(sub events.Subscriber) error {
	handlers := map[string]func(*events.Message) (*domain.CreateNotificationRequest, error){
		events.BookingCreated:       bookingCreatedNotification,
		events.BookingStatusChanged: bookingStatusNotification,
		events.TestimonialApproved:  testimonialApprovedNotification,
	}
	for subject, build := range handlers {
		build := build
		if err := sub.QueueSubscribe(subject, bridgeQueue, func(msg *events.Message) {
			b.handle(msg, build)
		}); err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}
	return nil
}

func (b *EventBridge) handle(msg *events.Message, build func(*events.Message) (*domain.CreateNotificationRequest, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, logger.RequestIDKey, msg.ID)
	ctx = context.WithValue(ctx, logger.ServiceKey, "event-bridge")

	req, err := build(msg)
	if err != nil {
		logger.WarnContext(ctx, "dropping malformed event", "subject", msg.Subject, "error", err)
		return
	}
	if _, err := b.notifications.Create(ctx, req); err != nil {
		logger.ErrorContext(ctx, "failed to store event notification", "subject", msg.Subject, "error", err)
	}
}

func bookingCreatedNotification(msg *events.Message) (*domain.CreateNotificationRequest, error) {
	var evt events.BookingCreatedEvent
	if err := msg.Decode(&evt); err != nil {
		return nil, err
	}
	itemType := strings.ToLower(strings.TrimSpace(evt.ItemType))
	message := "New booking created."
	if itemType != "" {
		message = fmt.Sprintf("New %s booking created.", itemType)
	}
	return &domain.CreateNotificationRequest{
		Audience: domain.AudienceAdmin,
		Type:     domain.TypeNewBooking,
		Message:  message,
		Link:     "/admin-dashboard?tab=bookings",
		Meta:     map[string]any{"booking_id": evt.BookingID, "item_type": evt.ItemType},
	}, nil
}

func bookingStatusNotification(msg *events.Message) (*domain.CreateNotificationRequest, error) {
	var evt events.BookingStatusChangedEvent
	if err := msg.Decode(&evt); err != nil {
		return nil, err
	}
	if evt.UserID <= 0 {
		return nil, fmt.Errorf("booking status event without user")
	}
	userID := evt.UserID
	return &domain.CreateNotificationRequest{
		UserID:   &userID,
		Audience: domain.AudienceUser,
		Type:     domain.TypeBookingStatus,
		Message:  fmt.Sprintf("Your booking status is now %q.", evt.Status),
		Link:     "/user-dashboard?tab=bookings",
		Meta:     map[string]any{"booking_id": evt.BookingID, "status": evt.Status},
	}, nil
}

func testimonialApprovedNotification(msg *events.Message) (*domain.CreateNotificationRequest, error) {
	var evt events.TestimonialApprovedEvent
	if err := msg.Decode(&evt); err != nil {
		return nil, err
	}
	if evt.UserID <= 0 {
		return nil, fmt.Errorf("testimonial event without user")
	}
	userID := evt.UserID
	return &domain.CreateNotificationRequest{
		UserID:   &userID,
		Audience: domain.AudienceUser,
		Type:     domain.TypeStoryApproved,
		Message:  "Your story has been approved and is now public.",
		Link:     "/user-dashboard?tab=stories",
		Meta:     map[string]any{"testimonial_id": evt.TestimonialID},
	}, nil
}
