package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/signnatural-api/internal/http/middleware"
	"github.com/diagnosis/signnatural-api/internal/http/response"
	"github.com/diagnosis/signnatural-api/internal/hub"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4 * 1024
)

type helloData struct {
	SubscriptionID string `json:"subscription_id"`
	AccountID      int64  `json:"account_id"`
	Role           string `json:"role"`
}

// StreamHandler serves live notifications over SSE and WebSocket. Both
// transports read from the same hub subscription.
type StreamHandler struct {
	Hub      *hub.Hub
	Auth     func(http.Handler) http.Handler
	upgrader websocket.Upgrader
}

func NewStreamHandler(h *hub.Hub, streamAuth func(http.Handler) http.Handler, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		Hub:  h,
		Auth: streamAuth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// ServeSSE streams frames as server-sent events until the client leaves.
func (h *StreamHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	v, ok := middleware.Viewer(r)
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	sub, err := h.Hub.Subscribe(v.AccountID, v.Role)
	if err != nil {
		response.WriteError(w, http.StatusServiceUnavailable, "Notification stream unavailable", response.CodeInternalError)
		return
	}
	defer h.Hub.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello := hub.Frame{Event: hub.EventHello, Data: helloData{SubscriptionID: sub.ID(), AccountID: v.AccountID, Role: v.Role}}
	if err := writeSSE(w, hello); err != nil || rc.Flush() != nil {
		return
	}
	logger.InfoContext(r.Context(), "sse stream opened", "subscription_id", sub.ID())

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case f := <-sub.Frames():
			if f.Event == hub.EventHeartbeat {
				_, err = fmt.Fprint(w, ":\n\n")
			} else {
				err = writeSSE(w, f)
			}
			if err == nil {
				err = rc.Flush()
			}
			if err != nil {
				logger.DebugContext(r.Context(), "sse write failed", "subscription_id", sub.ID(), "error", err)
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, f hub.Frame) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, data)
	return err
}

func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	v, ok := middleware.Viewer(r)
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	sub, err := h.Hub.Subscribe(v.AccountID, v.Role)
	if err != nil {
		response.WriteError(w, http.StatusServiceUnavailable, "Notification stream unavailable", response.CodeInternalError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Hub.Unsubscribe(sub)
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	logger.InfoContext(r.Context(), "websocket stream opened", "subscription_id", sub.ID())

	c := &wsClient{conn: conn, sub: sub}
	go c.writePump(hub.Frame{Event: hub.EventHello, Data: helloData{SubscriptionID: sub.ID(), AccountID: v.AccountID, Role: v.Role}})
	c.readPump()

	h.Hub.Unsubscribe(sub)
	conn.Close()
}

type wsClient struct {
	conn *websocket.Conn
	sub  *hub.Subscription
}

// readPump discards client messages and keeps the read deadline alive on
// pongs. It returns when the client goes away.
func (c *wsClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "subscription_id", c.sub.ID(), "error", err)
			}
			return
		}
	}
}

// writePump turns hub heartbeats into ping control frames and everything else
// into JSON text messages.
func (c *wsClient) writePump(hello hub.Frame) {
	defer c.conn.Close()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(hello); err != nil {
		return
	}

	for {
		select {
		case <-c.sub.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
			return
		case f := <-c.sub.Frames():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			var err error
			if f.Event == hub.EventHeartbeat {
				err = c.conn.WriteMessage(websocket.PingMessage, nil)
			} else {
				err = c.conn.WriteJSON(f)
			}
			if err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(strings.ToLower(origin), "/")]
		return ok
	}
}
