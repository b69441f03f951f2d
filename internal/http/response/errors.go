package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// Common error codes
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeEmailExists      = "EMAIL_EXISTS"
	CodeCodeNotFound     = "CODE_NOT_FOUND"
	CodeInvalidCode      = "INVALID_CODE"
	CodeAlreadyVerified  = "ALREADY_VERIFIED"
	CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	CodeDeliveryFailed   = "DELIVERY_FAILED"
)

// FromError maps a service error onto the envelope. Unknown errors become a
// bare 500; their detail only goes to the log.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		BadRequest(w, validationMessage(err))
	case errors.Is(err, domain.ErrEmailTaken):
		WriteError(w, http.StatusConflict, "Email already registered", CodeEmailExists)
	case errors.Is(err, domain.ErrAlreadyVerified):
		WriteError(w, http.StatusConflict, "Email already verified", CodeAlreadyVerified)
	case errors.Is(err, domain.ErrCodeMismatch):
		WriteError(w, http.StatusBadRequest, "Invalid OTP", CodeInvalidCode)
	case errors.Is(err, domain.ErrCodeNotFound):
		WriteError(w, http.StatusBadRequest, "OTP not found or expired", CodeCodeNotFound)
	case errors.Is(err, domain.ErrEmailNotVerified):
		WriteError(w, http.StatusForbidden, "Email not verified", CodeEmailNotVerified)
	case errors.Is(err, domain.ErrInvalidCredentials):
		Unauthorized(w, "Invalid credentials")
	case errors.Is(err, domain.ErrUnauthorized):
		Unauthorized(w, "Unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		Forbidden(w, "Forbidden")
	case errors.Is(err, domain.ErrDelivery):
		WriteError(w, http.StatusBadGateway, "Failed to send email", CodeDeliveryFailed)
	case errors.Is(err, domain.ErrConflict):
		Conflict(w, "Conflict")
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "Not found")
	default:
		logger.ErrorContext(r.Context(), "unhandled error", "error", err, "path", r.URL.Path)
		InternalError(w, "Internal server error")
	}
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
	if msg == "" {
		return "Invalid input"
	}
	return msg
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
