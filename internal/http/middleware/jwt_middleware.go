package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/internal/http/response"
	"github.com/diagnosis/signnatural-api/pkg/auth"
	"github.com/diagnosis/signnatural-api/pkg/logger"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireJWT accepts only a Bearer Authorization header.
func RequireJWT(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return requireToken(issuer, false)
}

// RequireStreamJWT also accepts ?token= because browser EventSource and
// WebSocket clients cannot set headers.
func RequireStreamJWT(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return requireToken(issuer, true)
}

func requireToken(issuer *auth.Issuer, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" && allowQuery {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				response.WriteError(w, http.StatusUnauthorized, "Missing authorization token", response.CodeUnauthorized)
				return
			}
			claims, err := issuer.Validate(raw)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "Invalid or expired token", response.CodeInvalidToken)
				return
			}
			ctx := context.WithValue(r.Context(), CtxClaims, claims)
			ctx = context.WithValue(ctx, logger.AccountIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireJWT.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := Claims(r)
		if claims == nil {
			response.Unauthorized(w, "Unauthorized")
			return
		}
		if !claims.IsAdmin() {
			response.Forbidden(w, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func Claims(r *http.Request) *auth.Claims {
	v, _ := r.Context().Value(CtxClaims).(*auth.Claims)
	return v
}

// Viewer returns the identity of the authenticated caller.
func Viewer(r *http.Request) (domain.Viewer, bool) {
	c := Claims(r)
	if c == nil {
		return domain.Viewer{}, false
	}
	return domain.Viewer{AccountID: c.Sub, Role: c.Role}, true
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}
