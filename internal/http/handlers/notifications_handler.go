package handlers

import (
	"net/http"
	"strconv"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/http/middleware"
	"github.com/diagnosis/signnatural-api/internal/http/response"
	"github.com/diagnosis/signnatural-api/internal/service"
	"github.com/go-chi/chi/v5"
)

type NotificationsHandler struct {
	Notifications service.NotificationService
	Stream        *StreamHandler
	Guards        Guards
}

func NewNotificationsHandler(svc service.NotificationService, stream *StreamHandler, guards Guards) *NotificationsHandler {
	return &NotificationsHandler{Notifications: svc, Stream: stream, Guards: guards}
}

func (h *NotificationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Streams take the token from the query string as well.
	if h.Stream != nil {
		r.Group(func(r chi.Router) {
			r.Use(h.Stream.Auth)
			r.Get("/stream", h.Stream.ServeSSE)
			r.Get("/ws", h.Stream.ServeWS)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(h.Guards.Auth)
		r.Get("/", h.list)
		r.Patch("/read-all", h.markAllRead)
		r.Patch("/{id}/read", h.markRead)
		r.With(h.Guards.Admin).Post("/", h.create)
	})
	return r
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	v, ok := middleware.Viewer(r)
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}
	list, err := h.Notifications.List(r.Context(), v)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (h *NotificationsHandler) markRead(w http.ResponseWriter, r *http.Request) {
	v, ok := middleware.Viewer(r)
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid notification id")
		return
	}
	if err := h.Notifications.MarkRead(r.Context(), v, id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"message": "Notification marked as read"})
}

func (h *NotificationsHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	v, ok := middleware.Viewer(r)
	if !ok {
		response.Unauthorized(w, "Unauthorized")
		return
	}
	n, err := h.Notifications.MarkAllRead(r.Context(), v)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"message": "All notifications marked as read", "updated": n})
}

func (h *NotificationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateNotificationRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Type == "" {
		in.Type = domain.TypeAnnouncement
	}
	n, err := h.Notifications.Create(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{"notification": n})
}
