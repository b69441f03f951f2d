// Package hub fans notifications out to connected stream subscribers.
// It is process-local and keeps nothing for subscribers that are offline.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
	"github.com/google/uuid"
)

const (
	EventHello        = "hello"
	EventNotification = "notification"
	EventHeartbeat    = "heartbeat"
)

var ErrHubClosed = errors.New("hub closed")

type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Config struct {
	Buffer    int
	Heartbeat time.Duration
}

type Hub struct {
	cfg     Config
	metrics *metrics.Metrics

	mu        sync.RWMutex
	closed    bool
	all       map[string]*Subscription
	byAccount map[int64]map[string]*Subscription
	admins    map[string]*Subscription
}

func New(cfg Config, m *metrics.Metrics) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	return &Hub{
		cfg:       cfg,
		metrics:   m,
		all:       make(map[string]*Subscription),
		byAccount: make(map[int64]map[string]*Subscription),
		admins:    make(map[string]*Subscription),
	}
}

// Subscribe registers a subscriber in its account group, the admin group
// when role is admin, and the global group.
func (h *Hub) Subscribe(accountID int64, role string) (*Subscription, error) {
	sub := &Subscription{
		id:        uuid.NewString(),
		accountID: accountID,
		role:      role,
		frames:    make(chan Frame, h.cfg.Buffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.all[sub.id] = sub
	group, ok := h.byAccount[accountID]
	if !ok {
		group = make(map[string]*Subscription)
		h.byAccount[accountID] = group
	}
	group[sub.id] = sub
	if role == domain.RoleAdmin {
		h.admins[sub.id] = sub
	}
	n := len(h.all)
	h.mu.Unlock()

	h.setGauge(n)
	logger.Debug("stream subscriber added", "subscription_id", sub.id, "account_id", accountID, "role", role)
	return sub, nil
}

// Unsubscribe removes sub from every group. Repeated calls are no-ops.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	removed := false
	if cur, ok := h.all[sub.id]; ok && cur == sub {
		delete(h.all, sub.id)
		if group, ok := h.byAccount[sub.accountID]; ok {
			delete(group, sub.id)
			if len(group) == 0 {
				delete(h.byAccount, sub.accountID)
			}
		}
		delete(h.admins, sub.id)
		removed = true
	}
	n := len(h.all)
	h.mu.Unlock()

	sub.close()
	if removed {
		h.setGauge(n)
		logger.Debug("stream subscriber removed", "subscription_id", sub.id, "account_id", sub.accountID)
	}
}

// Publish delivers n to every matching subscriber at most once and returns
// how many accepted it. Subscribers that cannot accept the frame are removed.
func (h *Hub) Publish(n *domain.Notification) int {
	if n == nil {
		return 0
	}
	targets := h.targets(n)
	frame := Frame{Event: EventNotification, Data: n}

	delivered := 0
	for _, sub := range targets {
		if sub.offer(frame) {
			delivered++
			continue
		}
		h.drop(sub)
	}
	return delivered
}

func (h *Hub) targets(n *domain.Notification) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]*Subscription)
	if n.UserID != nil {
		for id, sub := range h.byAccount[*n.UserID] {
			seen[id] = sub
		}
	}
	switch n.Audience {
	case domain.AudienceAdmin:
		for id, sub := range h.admins {
			seen[id] = sub
		}
	case domain.AudienceAll:
		for id, sub := range h.all {
			seen[id] = sub
		}
	}

	out := make([]*Subscription, 0, len(seen))
	for _, sub := range seen {
		out = append(out, sub)
	}
	return out
}

// Heartbeat offers a heartbeat frame to every subscriber.
func (h *Hub) Heartbeat() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.all))
	for _, sub := range h.all {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	frame := Frame{Event: EventHeartbeat}
	for _, sub := range subs {
		if !sub.offer(frame) {
			h.drop(sub)
		}
	}
}

// Run emits heartbeats until ctx ends, then closes the hub.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case <-ticker.C:
			h.Heartbeat()
		}
	}
}

// Close ends every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.all
	h.all = make(map[string]*Subscription)
	h.byAccount = make(map[int64]map[string]*Subscription)
	h.admins = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	h.setGauge(0)
	logger.Info("notification hub closed", "subscribers", len(subs))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) drop(sub *Subscription) {
	if h.metrics != nil {
		h.metrics.StreamDropped.Inc()
	}
	logger.Warn("dropping stream subscriber", "subscription_id", sub.id, "account_id", sub.accountID)
	h.Unsubscribe(sub)
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.StreamSubscribers.Set(float64(n))
	}
}
