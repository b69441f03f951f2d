// Package router assembles the public HTTP surface.
package router

import (
	"net/http"
	"time"

	"github.com/diagnosis/signnatural-api/internal/http/handlers"
	"github.com/diagnosis/signnatural-api/internal/http/middleware"
	"github.com/diagnosis/signnatural-api/internal/hub"
	"github.com/diagnosis/signnatural-api/internal/service"
	"github.com/diagnosis/signnatural-api/pkg/auth"
	"github.com/diagnosis/signnatural-api/pkg/config"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
	mw "github.com/diagnosis/signnatural-api/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	Config        *config.Config
	Auth          service.AuthService
	Notifications service.NotificationService
	Hub           *hub.Hub
	Issuer        *auth.Issuer
	Limiter       middleware.Limiter // nil disables rate limiting
	Metrics       *metrics.Metrics
}

func New(d Deps) http.Handler {
	cfg := d.Config

	guards := handlers.Guards{
		Auth:  middleware.RequireJWT(d.Issuer),
		Admin: middleware.RequireAdmin,
	}
	if d.Limiter != nil {
		guards.RegisterLimit = limit(d, "register", cfg.RateLimit.RegisterMax, cfg.RateLimit.RegisterWindow, middleware.IPKeyFunc)
		guards.ResendLimit = limit(d, "resend", cfg.RateLimit.ResendMax, cfg.RateLimit.ResendWindow, middleware.EmailKeyFunc)
	}

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(middleware.ClientIP(cfg.Server.TrustedProxies))
	r.Use(mw.ServiceName("signnatural-api"))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS(cfg.CORS.AllowedOrigins))
	r.Use(mw.Health)
	if d.Metrics != nil {
		r.Use(mw.Metrics(d.Metrics))
		r.Handle("/metrics", d.Metrics.Handler())
	}

	stream := handlers.NewStreamHandler(d.Hub, middleware.RequireStreamJWT(d.Issuer), cfg.CORS.AllowedOrigins)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/auth", handlers.NewAuthHandler(d.Auth, guards).Routes())
		r.Mount("/notifications", handlers.NewNotificationsHandler(d.Notifications, stream, guards).Routes())
	})

	return r
}

func limit(d Deps, name string, max int, window time.Duration, keys func(*http.Request) []string) func(http.Handler) http.Handler {
	return middleware.NewRateLimiter(d.Limiter, middleware.RateLimitConfig{
		Name:     name,
		Requests: max,
		Window:   window,
		KeyFunc:  keys,
	}, d.Metrics).Middleware()
}
