package domain

import (
	"strings"
	"time"

	"github.com/diagnosis/signnatural-api/internal/utils"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const MinPasswordLength = 6

type Account struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	PasswordHash  string    `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccountSummary is the public view returned next to session tokens.
type AccountSummary struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Role:          a.Role,
		EmailVerified: a.EmailVerified,
	}
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResendCodeRequest struct {
	Email string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *AccountSummary `json:"user"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = utils.NormalizeString(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

func (r *RegisterRequest) Validate() error {
	if r.Name == "" || r.Email == "" || r.Password == "" {
		return Invalid("name, email and password are required")
	}
	if !IsValidEmail(r.Email) {
		return Invalid("invalid email format")
	}
	if len(r.Password) < MinPasswordLength {
		return Invalid("password must be at least 6 characters")
	}
	return nil
}

func (r *VerifyEmailRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.OTP = strings.TrimSpace(r.OTP)
}

func (r *VerifyEmailRequest) Validate() error {
	if r.Email == "" || r.OTP == "" {
		return Invalid("email and otp required")
	}
	if !IsNumericCode(r.OTP) {
		return Invalid("otp must be 6 digits")
	}
	return nil
}

func (r *ResendCodeRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *ResendCodeRequest) Validate() error {
	if r.Email == "" {
		return Invalid("email required")
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return Invalid("email and password required")
	}
	return nil
}

func NormalizeEmail(email string) string {
	return utils.NormalizeEmail(email)
}

func IsValidEmail(email string) bool {
	return utils.IsValidEmail(email)
}

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
