package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/signnatural-api/internal/http/router"
	"github.com/diagnosis/signnatural-api/internal/hub"
	"github.com/diagnosis/signnatural-api/internal/platform/mailer"
	"github.com/diagnosis/signnatural-api/internal/platform/ratelimit"
	"github.com/diagnosis/signnatural-api/internal/repo"
	"github.com/diagnosis/signnatural-api/internal/repo/memory"
	"github.com/diagnosis/signnatural-api/internal/repo/postgres"
	"github.com/diagnosis/signnatural-api/internal/service"
	"github.com/diagnosis/signnatural-api/pkg/auth"
	"github.com/diagnosis/signnatural-api/pkg/config"
	"github.com/diagnosis/signnatural-api/pkg/database"
	"github.com/diagnosis/signnatural-api/pkg/events"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", "error", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("API exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("API stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New("signnatural")

	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	var limiter *ratelimit.RedisLimiter
	if cfg.Redis.URL != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, "signnatural:ratelimit")
	} else {
		logger.Warn("REDIS_URL is empty, rate limiting disabled")
	}

	bus, err := openEventBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.Audience)
	h := hub.New(hub.Config{
		Buffer:    cfg.Notifications.SubscriberBuffer,
		Heartbeat: cfg.Notifications.HeartbeatInterval,
	}, m)

	otp := service.NewOTPEngine(stores.Codes, service.NewBcryptHasher(0), cfg.Auth.OTPTTL, m)
	authSvc := service.NewAuthService(service.AuthDeps{
		Accounts:    stores.Accounts,
		OTP:         otp,
		Passwords:   service.NewArgon2idHasher(nil),
		Mailer:      mailer.NewCodeMailer(newSender(cfg), cfg.Auth.OTPTTL),
		Issuer:      issuer,
		EventBus:    bus,
		Metrics:     m,
		SendTimeout: cfg.Email.SendTimeout,
	})
	notifications := service.NewNotificationService(stores.Notifications, h, m)

	if err := service.NewEventBridge(notifications).Register(bus); err != nil {
		return err
	}

	deps := router.Deps{
		Config:        cfg,
		Auth:          authSvc,
		Notifications: notifications,
		Hub:           h,
		Issuer:        issuer,
		Metrics:       m,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.New(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting API", "port", cfg.Server.Port, "environment", cfg.Environment, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error { return otp.RunReaper(gctx, cfg.Notifications.CodeReaperInterval) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API...")

		// Closing the hub ends open streams so Shutdown does not wait on them.
		h.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API shutdown error", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config) (repo.Stores, func(), error) {
	if cfg.Storage == "memory" {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.New().Stores(), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return repo.Stores{}, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return repo.Stores{}, nil, err
	}
	return postgres.NewStores(pool), pool.Close, nil
}

func openEventBus(cfg *config.Config) (events.EventBus, error) {
	if cfg.NATS.URL == "" {
		logger.Info("NATS_URL is empty, using in-process event bus")
		return events.NewLocalBus(), nil
	}
	bus, err := events.NewNATSEventBus(cfg.NATS.URL, cfg.NATS.Name)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	return bus, nil
}

func newSender(cfg *config.Config) mailer.Sender {
	e := cfg.Email
	switch {
	case e.DevMode:
		return mailer.NewDevMailer(os.Stdout)
	case e.MailerSendKey != "":
		return mailer.NewMailerSend(e.MailerSendKey, e.SMTPFromName, e.SMTPFrom)
	default:
		return mailer.NewSMTPMailer(e.SMTPHost, e.SMTPPort, e.SMTPFrom, e.SMTPFromName, e.SMTPUser, e.SMTPPass, e.SMTPUseTLS)
	}
}
