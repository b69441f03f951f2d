package domain

import "time"

type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// CodeLength is the number of decimal digits in a one-time code.
const CodeLength = 6

func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

type OneTimeCode struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	CodeHash  string    `json:"-"`
	Purpose   Purpose   `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *OneTimeCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsNumericCode reports whether s has exactly CodeLength ASCII digits.
func IsNumericCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
