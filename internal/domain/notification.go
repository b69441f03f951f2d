package domain

import (
	"strings"
	"time"
)

type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAdmin Audience = "admin"
	AudienceAll   Audience = "all"
)

func (a Audience) Valid() bool {
	return a == AudienceUser || a == AudienceAdmin || a == AudienceAll
}

// Notification types raised by domain events.
const (
	TypeNewBooking    = "new_booking"
	TypeBookingStatus = "booking_status"
	TypeStoryApproved = "story_approved"
	TypeAnnouncement  = "announcement"
)

type Notification struct {
	ID        int64          `json:"id"`
	UserID    *int64         `json:"user_id,omitempty"`
	Audience  Audience       `json:"audience"`
	Type      string         `json:"type,omitempty"`
	Message   string         `json:"message"`
	Link      string         `json:"link,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Viewer is the identity used for visibility checks.
type Viewer struct {
	AccountID int64
	Role      string
}

// VisibleTo reports whether v may see n: its own notifications, everything
// addressed to all, and admin-audience notifications when v is an admin.
func (n *Notification) VisibleTo(v Viewer) bool {
	if n.UserID != nil && *n.UserID == v.AccountID {
		return true
	}
	switch n.Audience {
	case AudienceAll:
		return true
	case AudienceAdmin:
		return v.Role == RoleAdmin
	}
	return false
}

type CreateNotificationRequest struct {
	UserID   *int64         `json:"user_id,omitempty"`
	Audience Audience       `json:"audience"`
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Link     string         `json:"link,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (r *CreateNotificationRequest) Normalize() {
	r.Message = strings.TrimSpace(r.Message)
	r.Type = strings.TrimSpace(r.Type)
	r.Link = strings.TrimSpace(r.Link)
	if r.Audience == "" {
		r.Audience = AudienceUser
	}
}

func (r *CreateNotificationRequest) Validate() error {
	if r.Message == "" {
		return Invalid("message is required")
	}
	if !r.Audience.Valid() {
		return Invalid("audience must be one of user, admin, all")
	}
	if r.Audience == AudienceUser && r.UserID == nil {
		return Invalid("user_id is required for audience user")
	}
	return nil
}

// MaxListedNotifications caps a single list response.
const MaxListedNotifications = 100
