package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/platform/mailer"
	"github.com/diagnosis/signnatural-api/internal/repo"
	"github.com/diagnosis/signnatural-api/internal/utils"
	"github.com/diagnosis/signnatural-api/pkg/auth"
	"github.com/diagnosis/signnatural-api/pkg/events"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
)

const (
	msgRegistered         = "User registered. OTP sent to email. Verify email to finish signup."
	msgRegisteredDegraded = "User registered, but the verification email could not be sent. Use resend code to get a new one."
	msgResent             = "OTP resent to email."
	msgResendGeneric      = "If an unverified account exists for that email, a new code has been sent."
)

type RegisterResult struct {
	Message       string                 `json:"message"`
	User          *domain.AccountSummary `json:"user"`
	CodeDelivered bool                   `json:"code_delivered"`
}

type ResendResult struct {
	Message string `json:"message"`
}

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*RegisterResult, error)
	VerifyEmail(ctx context.Context, req *domain.VerifyEmailRequest) (*domain.SessionResponse, error)
	ResendCode(ctx context.Context, req *domain.ResendCodeRequest) (*ResendResult, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.SessionResponse, error)
	Me(ctx context.Context, accountID int64) (*domain.AccountSummary, error)
	CreateAdmin(ctx context.Context, req *domain.RegisterRequest) (*domain.AccountSummary, error)
}

type authService struct {
	accounts  repo.AccountStore
	otp       *OTPEngine
	passwords PasswordHasher
	mailer    mailer.Service
	issuer    *auth.Issuer
	eventBus  events.Publisher
	metrics   *metrics.Metrics
	sendTTL   time.Duration
}

type AuthDeps struct {
	Accounts    repo.AccountStore
	OTP         *OTPEngine
	Passwords   PasswordHasher
	Mailer      mailer.Service
	Issuer      *auth.Issuer
	EventBus    events.Publisher
	Metrics     *metrics.Metrics
	SendTimeout time.Duration
}

func NewAuthService(d AuthDeps) AuthService {
	if d.Metrics == nil {
		d.Metrics = metrics.New("signnatural")
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = 10 * time.Second
	}
	return &authService{
		accounts:  d.Accounts,
		otp:       d.OTP,
		passwords: d.Passwords,
		mailer:    d.Mailer,
		issuer:    d.Issuer,
		eventBus:  d.EventBus,
		metrics:   d.Metrics,
		sendTTL:   d.SendTimeout,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*RegisterResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc, err := s.accounts.Create(ctx, &domain.Account{
		Name:         req.Name,
		Email:        req.Email,
		Role:         domain.RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	logger.InfoContext(ctx, "account registered", "account_id", acc.ID, "email", utils.MaskEmail(acc.Email))

	// The account is committed from here on. Neither a code nor a delivery
	// failure rolls it back; the caller is pointed at resend instead.
	delivered := s.issueAndSend(ctx, acc)

	s.publish(ctx, events.AccountRegistered, events.AccountRegisteredEvent{
		AccountID:     acc.ID,
		CodeDelivered: delivered,
		CreatedAt:     acc.CreatedAt,
	})

	msg := msgRegistered
	if !delivered {
		msg = msgRegisteredDegraded
	}
	return &RegisterResult{Message: msg, User: acc.Summary(), CodeDelivered: delivered}, nil
}

func (s *authService) VerifyEmail(ctx context.Context, req *domain.VerifyEmailRequest) (*domain.SessionResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if acc == nil {
		// Same answer as a missing code so the endpoint does not reveal accounts.
		return nil, domain.ErrCodeNotFound
	}

	if err := s.otp.Verify(ctx, acc.ID, domain.PurposeEmailVerification, req.OTP); err != nil {
		return nil, err
	}

	if !acc.EmailVerified {
		if err := s.accounts.MarkVerified(ctx, acc.ID); err != nil {
			return nil, fmt.Errorf("failed to mark account verified: %w", err)
		}
		acc.EmailVerified = true

		// A resend racing this request may have stored a fresh code after the
		// consume. Verified accounts keep no verification code.
		if err := s.otp.Revoke(ctx, acc.ID, domain.PurposeEmailVerification); err != nil {
			logger.WarnContext(ctx, "failed to revoke leftover codes", "account_id", acc.ID, "error", err)
		}
		s.publish(ctx, events.AccountVerified, events.AccountVerifiedEvent{AccountID: acc.ID, VerifiedAt: time.Now()})
	}

	logger.InfoContext(ctx, "email verified", "account_id", acc.ID)
	return s.session(acc)
}

func (s *authService) ResendCode(ctx context.Context, req *domain.ResendCodeRequest) (*ResendResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if acc == nil {
		logger.InfoContext(ctx, "resend requested for unknown email")
		return &ResendResult{Message: msgResendGeneric}, nil
	}
	if acc.EmailVerified {
		return nil, domain.ErrAlreadyVerified
	}

	code, _, err := s.otp.Issue(ctx, acc.ID, domain.PurposeEmailVerification)
	if err != nil {
		return nil, fmt.Errorf("failed to issue code: %w", err)
	}
	if err := s.send(ctx, acc, code); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	return &ResendResult{Message: msgResent}, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.SessionResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if acc == nil {
		s.metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.passwords.Compare(req.Password, acc.PasswordHash)
	if err != nil {
		logger.ErrorContext(ctx, "password comparison failed", "error", err, "account_id", acc.ID)
		ok = false
	}
	if !ok {
		s.metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	if !acc.EmailVerified {
		s.metrics.Logins.WithLabelValues("unverified").Inc()
		return nil, domain.ErrEmailNotVerified
	}

	s.metrics.Logins.WithLabelValues("success").Inc()
	return s.session(acc)
}

func (s *authService) Me(ctx context.Context, accountID int64) (*domain.AccountSummary, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if acc == nil {
		return nil, domain.ErrAccountNotFound
	}
	return acc.Summary(), nil
}

// CreateAdmin creates an already verified admin. No code is issued.
func (s *authService) CreateAdmin(ctx context.Context, req *domain.RegisterRequest) (*domain.AccountSummary, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	acc, err := s.accounts.Create(ctx, &domain.Account{
		Name:          req.Name,
		Email:         req.Email,
		Role:          domain.RoleAdmin,
		PasswordHash:  hash,
		EmailVerified: true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	logger.InfoContext(ctx, "admin account created", "account_id", acc.ID)
	return acc.Summary(), nil
}

func (s *authService) issueAndSend(ctx context.Context, acc *domain.Account) bool {
	code, _, err := s.otp.Issue(ctx, acc.ID, domain.PurposeEmailVerification)
	if err != nil {
		logger.ErrorContext(ctx, "failed to issue verification code", "error", err, "account_id", acc.ID)
		return false
	}
	if err := s.send(ctx, acc, code); err != nil {
		// Don't fail registration if email fails
		return false
	}
	return true
}

func (s *authService) send(ctx context.Context, acc *domain.Account, code string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTTL)
	defer cancel()

	if err := s.mailer.SendCode(sendCtx, acc.Email, acc.Name, code); err != nil {
		s.metrics.EmailDeliveries.WithLabelValues("failure").Inc()
		logger.ErrorContext(ctx, "failed to send verification email", "error", err, "account_id", acc.ID)
		return err
	}
	s.metrics.EmailDeliveries.WithLabelValues("success").Inc()
	return nil
}

func (s *authService) session(acc *domain.Account) (*domain.SessionResponse, error) {
	token, exp, err := s.issuer.Issue(acc.ID, acc.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}
	return &domain.SessionResponse{Token: token, ExpiresAt: exp, User: acc.Summary()}, nil
}

func (s *authService) publish(ctx context.Context, subject string, data interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
