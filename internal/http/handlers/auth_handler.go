package handlers

import (
	"net/http"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/http/middleware"
	"github.com/diagnosis/signnatural-api/internal/http/response"
	"github.com/diagnosis/signnatural-api/internal/service"
	"github.com/go-chi/chi/v5"
)

// Guards are the middlewares a handler needs for its protected routes.
// A nil limiter means the route is not rate limited.
type Guards struct {
	Auth          func(http.Handler) http.Handler
	Admin         func(http.Handler) http.Handler
	RegisterLimit func(http.Handler) http.Handler
	ResendLimit   func(http.Handler) http.Handler
}

type AuthHandler struct {
	Auth   service.AuthService
	Guards Guards
}

func NewAuthHandler(auth service.AuthService, guards Guards) *AuthHandler {
	return &AuthHandler{Auth: auth, Guards: guards}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/register", with(h.Guards.RegisterLimit, h.register))
	r.Post("/verify-email", h.verifyEmail)
	r.Method(http.MethodPost, "/resend-otp", with(h.Guards.ResendLimit, h.resendOTP))
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.Guards.Auth)
		r.Get("/me", h.me)
		r.With(h.Guards.Admin).Post("/admins", h.createAdmin)
	})
	return r
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.Auth.Register(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, res)
}

func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var in domain.VerifyEmailRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := h.Auth.VerifyEmail(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var in domain.ResendCodeRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.Auth.ResendCode(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := h.Auth.Login(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "Unauthorized")
		return
	}
	user, err := h.Auth.Me(r.Context(), claims.Sub)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandler) createAdmin(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.Auth.CreateAdmin(r.Context(), &in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Admin created", "user": user})
}
