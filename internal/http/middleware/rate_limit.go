package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/diagnosis/signnatural-api/internal/http/response"
	"github.com/diagnosis/signnatural-api/internal/platform/ratelimit"
	"github.com/diagnosis/signnatural-api/internal/utils"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/diagnosis/signnatural-api/pkg/metrics"
)

// Limiter is satisfied by ratelimit.RedisLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (ratelimit.Decision, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Name     string                         // label for logs and metrics
	Requests int                            // Max requests per window
	Window   time.Duration                  // Time window duration
	KeyFunc  func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc func(r *http.Request) bool     // Function to skip rate limiting
}

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	limiter Limiter
	config  RateLimitConfig
	metrics *metrics.Metrics
}

func NewRateLimiter(limiter Limiter, config RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc
	}
	return &RateLimiter{limiter: limiter, config: config, metrics: m}
}

// Middleware returns the rate limiting middleware. Limiter errors let the
// request through.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.limiter == nil || (rl.config.SkipFunc != nil && rl.config.SkipFunc(r)) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				d, err := rl.limiter.Allow(r.Context(), rl.config.Name+":"+key, rl.config.Requests, rl.config.Window)
				if err != nil {
					logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request", "limiter", rl.config.Name, "error", err)
					break
				}
				if !d.Allowed {
					if rl.metrics != nil {
						rl.metrics.RateLimited.WithLabelValues(rl.config.Name).Inc()
					}
					secs := int(d.RetryAfter.Round(time.Second) / time.Second)
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc limits by client IP only.
func IPKeyFunc(r *http.Request) []string {
	if ip := getClientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

// maxPeekBytes bounds how much of a body EmailKeyFunc reads.
const maxPeekBytes = 64 << 10

type readCloser struct {
	io.Reader
	io.Closer
}

// EmailKeyFunc limits by client IP and by the "email" field of a JSON body.
// The body is restored for the handler.
func EmailKeyFunc(r *http.Request) []string {
	keys := IPKeyFunc(r)
	if r.Body == nil {
		return keys
	}

	orig := r.Body
	raw, err := io.ReadAll(io.LimitReader(orig, maxPeekBytes))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(raw), orig), Closer: orig}
	if err != nil || len(raw) == maxPeekBytes {
		return keys
	}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if email := utils.NormalizeEmail(body.Email); email != "" {
			keys = append(keys, "email:"+email)
		}
	}
	return keys
}

// getClientIP returns the address resolved by ClientIP, or the peer address
// when that middleware is not installed.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return remoteIP(r)
}

func remoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
