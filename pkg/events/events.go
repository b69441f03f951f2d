package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Subject, err)
	}
	return nil
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject)

	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set("Nats-Msg-Id", uuid.NewString())
	return n.conn.PublishMsg(msg)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(fromNATS(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(fromNATS(msg))
	})
	return err
}

// Close drains pending deliveries before closing the connection.
func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func fromNATS(msg *nats.Msg) *Message {
	id := ""
	if msg.Header != nil {
		id = msg.Header.Get("Nats-Msg-Id")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        id,
	}
}

// Subjects
const (
	BookingCreated       = "booking.created"
	BookingStatusChanged = "booking.status_changed"
	TestimonialApproved  = "testimonial.approved"

	AccountRegistered = "account.registered"
	AccountVerified   = "account.verified"
)

// Event payloads
type BookingCreatedEvent struct {
	BookingID string    `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	ItemType  string    `json:"item_type"`
	CreatedAt time.Time `json:"created_at"`
}

type BookingStatusChangedEvent struct {
	BookingID string    `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TestimonialApprovedEvent struct {
	TestimonialID string    `json:"testimonial_id"`
	UserID        int64     `json:"user_id"`
	ApprovedAt    time.Time `json:"approved_at"`
}

// AccountRegisteredEvent never carries the verification code.
type AccountRegisteredEvent struct {
	AccountID     int64     `json:"account_id"`
	CodeDelivered bool      `json:"code_delivered"`
	CreatedAt     time.Time `json:"created_at"`
}

type AccountVerifiedEvent struct {
	AccountID  int64     `json:"account_id"`
	VerifiedAt time.Time `json:"verified_at"`
}
